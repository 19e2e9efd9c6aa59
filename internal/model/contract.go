package model

import (
	"time"

	"github.com/google/uuid"
)

type ContractStatus string

const (
	ContractStatusPendingFarmer   ContractStatus = "PENDING_FARMER"
	ContractStatusAwaitingPayment ContractStatus = "AWAITING_PAYMENT"
	ContractStatusCompleted       ContractStatus = "COMPLETED"
	ContractStatusDissolved       ContractStatus = "DISSOLVED"
	ContractStatusDismissed       ContractStatus = "DISMISSED"
)

// IsTerminal reports whether no further transition can leave the status.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusCompleted, ContractStatusDissolved, ContractStatusDismissed:
		return true
	default:
		return false
	}
}

type Contract struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ContractNumber  string     `gorm:"uniqueIndex:uq_contract_number"`
	BuyerID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	FarmerID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	MarketItemID    *uuid.UUID `gorm:"type:uuid"`
	Crop            string     `gorm:"not null"`
	Price           float64    `gorm:"not null"`
	Terms           string     `gorm:"not null"`
	AgreementDate   time.Time  `gorm:"not null"`
	DeliveryDate    time.Time  `gorm:"not null"`
	BuyerSignature  string     `gorm:"not null"`
	FarmerSignature *string
	PaymentID       *string
	PaymentDeadline *time.Time
	Status          ContractStatus `gorm:"type:varchar(32);not null;default:PENDING_FARMER;index:idx_contract_status_created,priority:1"`
	CreatedAt       *time.Time     `gorm:"autoCreateTime:false;index:idx_contract_status_created,priority:2"`
	UpdatedAt       time.Time
}

func (Contract) TableName() string { return "contracts" }

// IsParty reports whether userID is the buyer or the farmer of the contract.
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return userID != uuid.Nil && (c.BuyerID == userID || c.FarmerID == userID)
}

// ContractView is the denormalized contract returned to either party.
type ContractView struct {
	ID              uuid.UUID      `json:"id"`
	ContractNumber  string         `json:"contractNumber"`
	BuyerID         uuid.UUID      `json:"buyerId"`
	FarmerID        uuid.UUID      `json:"farmerId"`
	BuyerUsername   string         `json:"buyerUsername"`
	FarmerUsername  string         `json:"farmerUsername"`
	MarketItemID    *uuid.UUID     `json:"marketItemId,omitempty"`
	Crop            string         `json:"crop"`
	Price           float64        `json:"price"`
	Terms           string         `json:"terms"`
	AgreementDate   string         `json:"agreementDate"`
	DeliveryDate    string         `json:"deliveryDate"`
	BuyerSignature  string         `json:"buyerSignature"`
	FarmerSignature *string        `json:"farmerSignature,omitempty"`
	PaymentID       *string        `json:"paymentId,omitempty"`
	PaymentDeadline *time.Time     `json:"paymentDeadline,omitempty"`
	Status          ContractStatus `json:"status"`
	CreatedAt       *time.Time     `json:"createdAt,omitempty"`
}
