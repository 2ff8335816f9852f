package models

import (
	"time"
)

// EscrowRecord is the persistence row for an escrow transaction aggregate.
// Frequently-filtered fields live in flat columns; the nested blocks (item,
// terms, payment, evidence, messages, dispute) are stored as JSON documents
// and rebuilt into the domain aggregate by the store. Rows are never
// physically deleted: terminal transactions remain as audit records.
type EscrowRecord struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	TransactionID string `gorm:"type:varchar(40);uniqueIndex;not null" json:"transaction_id"`

	BuyerID      uint `gorm:"not null;index" json:"buyer_id"`
	SellerID     uint `gorm:"not null;index" json:"seller_id"`
	SupervisorID uint `gorm:"index" json:"supervisor_id,omitempty"`

	Status      string `gorm:"type:varchar(30);not null;index" json:"status"`
	PriorStatus string `gorm:"type:varchar(30)" json:"prior_status,omitempty"`

	// Denormalized for list filters and stats.
	Category    string  `gorm:"type:varchar(20);index" json:"category"`
	Currency    string  `gorm:"type:varchar(3);not null" json:"currency"`
	Price       float64 `gorm:"not null;index" json:"price"`
	EscrowFee   float64 `gorm:"not null" json:"escrow_fee"`
	TotalAmount float64 `gorm:"not null" json:"total_amount"`

	CreatedAt           time.Time  `gorm:"index" json:"created_at"`
	AgreementDate       *time.Time `json:"agreement_date,omitempty"`
	PaymentDate         *time.Time `json:"payment_date,omitempty"`
	ShippingDate        *time.Time `json:"shipping_date,omitempty"`
	DeliveryDate        *time.Time `json:"delivery_date,omitempty"`
	InspectionStartDate *time.Time `json:"inspection_start_date,omitempty"`
	InspectionEndDate   *time.Time `json:"inspection_end_date,omitempty"`
	CompletionDate      *time.Time `json:"completion_date,omitempty"`
	ExpiryDate          time.Time  `gorm:"index;not null" json:"expiry_date"`
	BuyerApprovedAt     *time.Time `json:"buyer_approved_at,omitempty"`
	SellerApprovedAt    *time.Time `json:"seller_approved_at,omitempty"`

	ItemJSON     string `gorm:"type:json;not null" json:"-"`
	TermsJSON    string `gorm:"type:json;not null" json:"-"`
	PaymentJSON  string `gorm:"type:json" json:"-"`
	EvidenceJSON string `gorm:"type:json" json:"-"`
	MessagesJSON string `gorm:"type:json" json:"-"`
	DisputeJSON  string `gorm:"type:json" json:"-"`

	// Version backs the optimistic concurrency check: every save bumps it and
	// the UPDATE is predicated on the version the aggregate was loaded with.
	Version int64 `gorm:"not null;default:1" json:"version"`

	UpdatedAt time.Time `json:"updated_at"`

	Buyer  User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller User `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
}

func (EscrowRecord) TableName() string {
	return "escrow_transactions"
}
