package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nurpe/agro-contracts/internal/model"
)

// DB opens an isolated in-memory database with every model migrated.
// A single connection serializes access so row-level races behave like a locked row.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&model.User{},
		&model.MarketItem{},
		&model.Contract{},
		&model.Notification{},
		&model.Message{},
	)
	if err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

func CreateUser(tb testing.TB, db *gorm.DB, username string) model.User {
	tb.Helper()
	user := model.User{ID: uuid.New(), Username: username, Name: username}
	if err := db.Create(&user).Error; err != nil {
		tb.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func CreateListing(tb testing.TB, db *gorm.DB, ownerID uuid.UUID, crop string) model.MarketItem {
	tb.Helper()
	item := model.MarketItem{ID: uuid.New(), UserID: ownerID, Crop: crop, Quantity: 10, Price: 1000}
	if err := db.Create(&item).Error; err != nil {
		tb.Fatalf("create listing: %v", err)
	}
	return item
}
