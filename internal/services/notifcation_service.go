package services

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"custodia/internal/escrow"
	"custodia/internal/models"
)

type NotificationService struct {
	db    *gorm.DB
	email *EmailService
}

func NewNotificationService(db *gorm.DB, email *EmailService) *NotificationService {
	return &NotificationService{db: db, email: email}
}

// CreateNotification creates a new notification
func (s *NotificationService) CreateNotification(userID uint, transactionID string, notifType models.NotificationType, title, message string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		dataJSON = string(jsonBytes)
	}

	notification := models.Notification{
		UserID:        userID,
		TransactionID: transactionID,
		Type:          notifType,
		Title:         title,
		Message:       message,
		Data:          dataJSON,
		IsRead:        false,
	}

	if err := s.db.Create(&notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if s.email != nil {
		s.email.SendTransactionEmail(userID, title, message)
	}

	return nil
}

func amountLabel(t *escrow.Transaction) string {
	return fmt.Sprintf("$%.2f %s", t.Terms.TotalAmount, t.Terms.Currency)
}

// NotifyEscrowCreated notifies the seller when a buyer opens a transaction
func (s *NotificationService) NotifyEscrowCreated(sellerID uint, buyerName string, t *escrow.Transaction) error {
	return s.CreateNotification(
		sellerID,
		t.TransactionID,
		models.NotificationEscrowCreated,
		"New Escrow Transaction",
		fmt.Sprintf("%s wants to buy %q through escrow for %s. Review and accept the terms to proceed.", buyerName, t.Item.Title, amountLabel(t)),
		map[string]interface{}{
			"buyer_name": buyerName,
			"amount":     t.Terms.TotalAmount,
		},
	)
}

// NotifyTermsAccepted notifies the buyer when the seller accepts
func (s *NotificationService) NotifyTermsAccepted(buyerID uint, sellerName string, t *escrow.Transaction) error {
	return s.CreateNotification(
		buyerID,
		t.TransactionID,
		models.NotificationTermsAccepted,
		"Terms Accepted",
		fmt.Sprintf("%s accepted the terms for %q. You can now pay %s into escrow.", sellerName, t.Item.Title, amountLabel(t)),
		map[string]interface{}{
			"seller_name": sellerName,
			"amount":      t.Terms.TotalAmount,
		},
	)
}

// NotifyPaymentReceived notifies the seller that funds are in custody
func (s *NotificationService) NotifyPaymentReceived(sellerID uint, t *escrow.Transaction) error {
	return s.CreateNotification(
		sellerID,
		t.TransactionID,
		models.NotificationPaymentReceived,
		"Payment Secured",
		fmt.Sprintf("%s is now held in escrow for %q. You can ship the item.", amountLabel(t), t.Item.Title),
		map[string]interface{}{
			"amount": t.Terms.TotalAmount,
		},
	)
}

// NotifyItemShipped notifies the buyer that the item is on its way
func (s *NotificationService) NotifyItemShipped(buyerID uint, trackingNumber string, t *escrow.Transaction) error {
	return s.CreateNotification(
		buyerID,
		t.TransactionID,
		models.NotificationItemShipped,
		"Item Shipped",
		fmt.Sprintf("The seller shipped %q. Tracking number: %s. Confirm delivery when it arrives.", t.Item.Title, trackingNumber),
		map[string]interface{}{
			"tracking_number": trackingNumber,
		},
	)
}

// NotifyInspectionOpened notifies the seller that the inspection window started
func (s *NotificationService) NotifyInspectionOpened(sellerID uint, t *escrow.Transaction) error {
	return s.CreateNotification(
		sellerID,
		t.TransactionID,
		models.NotificationInspectionOpened,
		"Inspection Started",
		fmt.Sprintf("The buyer received %q and has %d day(s) to inspect it.", t.Item.Title, t.Terms.InspectionDays),
		map[string]interface{}{
			"inspection_days": t.Terms.InspectionDays,
		},
	)
}

// NotifyApprovalRecorded notifies the counterpart that one side approved release
func (s *NotificationService) NotifyApprovalRecorded(userID uint, approverName string, t *escrow.Transaction) error {
	return s.CreateNotification(
		userID,
		t.TransactionID,
		models.NotificationApprovalRecorded,
		"Release Approved",
		fmt.Sprintf("%s approved releasing the funds for %q. Your approval completes the transaction.", approverName, t.Item.Title),
		map[string]interface{}{
			"approver_name": approverName,
		},
	)
}

// NotifyFundsReleased notifies the seller that the money left custody
func (s *NotificationService) NotifyFundsReleased(sellerID uint, t *escrow.Transaction) error {
	return s.CreateNotification(
		sellerID,
		t.TransactionID,
		models.NotificationFundsReleased,
		"Funds Released",
		fmt.Sprintf("%s has been released to you for %q.", amountLabel(t), t.Item.Title),
		map[string]interface{}{
			"amount": t.Terms.TotalAmount,
		},
	)
}

// NotifyEscrowCancelled notifies the other party of a cancellation
func (s *NotificationService) NotifyEscrowCancelled(userID uint, cancelledBy string, t *escrow.Transaction) error {
	return s.CreateNotification(
		userID,
		t.TransactionID,
		models.NotificationEscrowCancelled,
		"Transaction Cancelled",
		fmt.Sprintf("%s cancelled the escrow transaction for %q.", cancelledBy, t.Item.Title),
		map[string]interface{}{
			"cancelled_by": cancelledBy,
		},
	)
}

// NotifyEscrowExpired notifies a party that the transaction timed out
func (s *NotificationService) NotifyEscrowExpired(userID uint, t *escrow.Transaction) error {
	return s.CreateNotification(
		userID,
		t.TransactionID,
		models.NotificationEscrowExpired,
		"Transaction Expired",
		fmt.Sprintf("The escrow transaction for %q expired after %d days without completion.", t.Item.Title, escrow.ExpiryDays),
		nil,
	)
}

// NotifyDisputeRaised notifies the other party when a dispute is raised
func (s *NotificationService) NotifyDisputeRaised(userID uint, raisedByName, reason string, t *escrow.Transaction) error {
	return s.CreateNotification(
		userID,
		t.TransactionID,
		models.NotificationDisputeRaised,
		"Dispute Raised",
		fmt.Sprintf("%s raised a dispute on %q: %s", raisedByName, t.Item.Title, reason),
		map[string]interface{}{
			"raised_by_name": raisedByName,
			"reason":         reason,
		},
	)
}

// NotifyDisputeResolved notifies a party of the dispute outcome
func (s *NotificationService) NotifyDisputeResolved(userID uint, outcome escrow.DisputeOutcome, resolution string, t *escrow.Transaction) error {
	return s.CreateNotification(
		userID,
		t.TransactionID,
		models.NotificationDisputeResolved,
		"Dispute Resolved",
		fmt.Sprintf("The dispute on %q was resolved (%s): %s", t.Item.Title, outcome, resolution),
		map[string]interface{}{
			"outcome":    string(outcome),
			"resolution": resolution,
		},
	)
}

// NotifyNewMessage notifies the recipient of a new chat message
func (s *NotificationService) NotifyNewMessage(userID uint, senderName string, t *escrow.Transaction) error {
	return s.CreateNotification(
		userID,
		t.TransactionID,
		models.NotificationNewMessage,
		"New Message",
		fmt.Sprintf("%s sent a message on the transaction for %q.", senderName, t.Item.Title),
		map[string]interface{}{
			"sender_name": senderName,
		},
	)
}
