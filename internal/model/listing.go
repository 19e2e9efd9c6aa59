package model

import (
	"time"

	"github.com/google/uuid"
)

// MarketItem is a farmer's listing that a contract references and retires on acceptance.
type MarketItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	Crop      string    `gorm:"not null" json:"crop"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	Price     int64     `gorm:"not null" json:"price"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (MarketItem) TableName() string { return "market_items" }

type MarketItemWithOwner struct {
	MarketItem
	Username string `json:"username"`
	Name     string `json:"name"`
}
