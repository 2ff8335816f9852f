package models

import (
	"time"

	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationEscrowCreated    NotificationType = "escrow_created"
	NotificationTermsAccepted    NotificationType = "terms_accepted"
	NotificationPaymentReceived  NotificationType = "payment_received"
	NotificationItemShipped      NotificationType = "item_shipped"
	NotificationInspectionOpened NotificationType = "inspection_opened"
	NotificationApprovalRecorded NotificationType = "approval_recorded"
	NotificationFundsReleased    NotificationType = "funds_released"
	NotificationEscrowCancelled  NotificationType = "escrow_cancelled"
	NotificationEscrowExpired    NotificationType = "escrow_expired"
	NotificationDisputeRaised    NotificationType = "dispute_raised"
	NotificationDisputeResolved  NotificationType = "dispute_resolved"
	NotificationNewMessage       NotificationType = "new_message"
)

type Notification struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	UserID        uint             `json:"user_id" gorm:"not null;index"`
	TransactionID string           `json:"transaction_id" gorm:"type:varchar(40);index"`
	Type          NotificationType `json:"type" gorm:"type:varchar(50);not null"`
	Title         string           `json:"title" gorm:"type:varchar(255);not null"`
	Message       string           `json:"message" gorm:"type:text;not null"`
	IsRead        bool             `json:"is_read" gorm:"default:false;index"`
	Data          string           `json:"data" gorm:"type:json"`
	CreatedAt     time.Time        `json:"created_at"`
	ReadAt        *time.Time       `json:"read_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Notification) TableName() string {
	return "notifications"
}

// BeforeCreate hook
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return nil
}
