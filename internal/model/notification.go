package model

import (
	"time"

	"github.com/google/uuid"
)

type PartyRole string

const (
	PartyRoleFarmer PartyRole = "farmer"
	PartyRoleBuyer  PartyRole = "buyer"
)

type Notification struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_notification_user_created,priority:1"`
	Message    string     `gorm:"not null"`
	ContractID *uuid.UUID `gorm:"type:uuid;index"`
	Role       PartyRole  `gorm:"type:varchar(16);not null"`
	Read       bool       `gorm:"not null;default:false"`
	CreatedAt  time.Time  `gorm:"index:idx_notification_user_created,priority:2"`
}

func (Notification) TableName() string { return "notifications" }

// ContractSnapshot is the slice of a contract expanded into a notification listing.
type ContractSnapshot struct {
	ID             uuid.UUID      `json:"id"`
	ContractNumber string         `json:"contractNumber"`
	Status         ContractStatus `json:"status"`
	Crop           string         `json:"crop"`
	Price          float64        `json:"price"`
	BuyerID        uuid.UUID      `json:"buyerId"`
	FarmerID       uuid.UUID      `json:"farmerId"`
}

type NotificationView struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"userId"`
	Message   string            `json:"message"`
	Role      PartyRole         `json:"role"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
	Contract  *ContractSnapshot `json:"contract,omitempty"`
}
