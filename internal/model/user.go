package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null"`
	Name      string
	CreatedAt time.Time
}

func (User) TableName() string { return "users" }

// Principal is the verified identity attached to a request or push connection.
type Principal struct {
	UserID uuid.UUID
}

func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil
}
