package escrow

import (
	"fmt"
	"time"
)

// AcceptTerms is the seller accepting the buyer's proposed terms, moving the
// transaction from pending_agreement to pending_payment and stamping the
// agreement date.
func (t *Transaction) AcceptTerms(actorID uint, now time.Time) error {
	if t.RoleOf(actorID) != RoleSeller {
		return &ForbiddenError{ActorID: actorID, Op: "accept terms"}
	}
	if t.Status != StatusPendingAgreement {
		return &InvalidTransitionError{From: t.Status, Op: "accept terms"}
	}
	if err := t.advance(StatusPendingPayment, "accept terms"); err != nil {
		return err
	}
	t.AgreementDate = &now
	t.appendSystemMessage(actorID, "Terms accepted. Waiting for buyer payment.", now)
	return nil
}

// BeginPayment validates that the buyer may pay right now, before the caller
// contacts the payment gateway. It mutates nothing: on gateway failure the
// transaction must remain in pending_payment untouched.
func (t *Transaction) BeginPayment(actorID uint, method PaymentMethod) error {
	if t.RoleOf(actorID) != RoleBuyer {
		return &ForbiddenError{ActorID: actorID, Op: "pay"}
	}
	if t.Status != StatusPendingPayment {
		return &InvalidTransitionError{From: t.Status, Op: "pay"}
	}
	if !ValidPaymentMethod(method) {
		return &ValidationError{Field: "payment_method", Reason: "unknown payment method"}
	}
	return nil
}

// CompletePayment records a successful gateway authorization: the payment
// sub-record is marked completed with the external reference and the
// transaction advances to payment_received. Callers must have gone through
// BeginPayment and the gateway first.
func (t *Transaction) CompletePayment(actorID uint, method PaymentMethod, reference string, now time.Time) error {
	if err := t.BeginPayment(actorID, method); err != nil {
		return err
	}
	if err := t.advance(StatusPaymentReceived, "pay"); err != nil {
		return err
	}
	t.PaymentDate = &now
	t.Payment = Payment{
		Method:      method,
		Reference:   reference,
		Amount:      t.Terms.TotalAmount,
		Status:      PaymentCompleted,
		ProcessedAt: &now,
	}
	t.appendSystemMessage(actorID, "Payment received. Funds are in custody.", now)
	return nil
}

// MarkShipped is the seller recording dispatch of the item, storing the
// shipping evidence and advancing to item_shipped.
func (t *Transaction) MarkShipped(actorID uint, trackingNumber, carrier string, now time.Time) error {
	if t.RoleOf(actorID) != RoleSeller {
		return &ForbiddenError{ActorID: actorID, Op: "mark shipped"}
	}
	if t.Status != StatusPaymentReceived {
		return &InvalidTransitionError{From: t.Status, Op: "mark shipped"}
	}
	if trackingNumber == "" {
		return &ValidationError{Field: "tracking_number", Reason: "required"}
	}
	if err := t.advance(StatusItemShipped, "mark shipped"); err != nil {
		return err
	}
	t.ShippingDate = &now
	t.Evidence.Shipping.TrackingNumber = trackingNumber
	t.Evidence.Shipping.Carrier = carrier
	t.Evidence.Shipping.ShippedAt = &now
	t.appendSystemMessage(actorID, fmt.Sprintf("Item shipped. Tracking number: %s.", trackingNumber), now)
	return nil
}

// MarkDelivered is the buyer confirming receipt. It stamps the delivery date
// and opens the inspection window, advancing to inspection_period.
func (t *Transaction) MarkDelivered(actorID uint, now time.Time) error {
	if t.RoleOf(actorID) != RoleBuyer {
		return &ForbiddenError{ActorID: actorID, Op: "confirm delivery"}
	}
	if t.Status != StatusItemShipped {
		return &InvalidTransitionError{From: t.Status, Op: "confirm delivery"}
	}
	if err := t.advance(StatusInspectionPeriod, "confirm delivery"); err != nil {
		return err
	}
	end := now.AddDate(0, 0, t.Terms.InspectionDays)
	t.DeliveryDate = &now
	t.InspectionStartDate = &now
	t.InspectionEndDate = &end
	t.appendSystemMessage(actorID, "Item received. Inspection period started.", now)
	return nil
}

// Approve records a party's consent to release the funds. Buyer approval
// alone moves the transaction to buyer_approved (and seller approval alone to
// seller_approved); once both parties have approved the dual-consent gate is
// satisfied and the transaction auto-advances through funds_released to
// transaction_completed, stamping the completion date.
func (t *Transaction) Approve(actorID uint, now time.Time) error {
	role := t.RoleOf(actorID)
	switch role {
	case RoleBuyer:
		return t.approveAsBuyer(actorID, now)
	case RoleSeller:
		return t.approveAsSeller(actorID, now)
	default:
		return &ForbiddenError{ActorID: actorID, Op: "approve"}
	}
}

func (t *Transaction) approveAsBuyer(actorID uint, now time.Time) error {
	switch t.Status {
	case StatusInspectionPeriod, StatusSellerApproved:
	default:
		return &InvalidTransitionError{From: t.Status, Op: "approve"}
	}
	if t.BuyerApprovedAt != nil {
		return &InvalidTransitionError{From: t.Status, Op: "approve again"}
	}
	t.BuyerApprovedAt = &now
	if t.SellerApprovedAt != nil {
		return t.releaseFunds(actorID, "Both parties approved. Funds released to the seller.", now)
	}
	if err := t.advance(StatusBuyerApproved, "approve"); err != nil {
		return err
	}
	t.appendSystemMessage(actorID, "Buyer approved the transaction. Waiting for seller approval.", now)
	return nil
}

func (t *Transaction) approveAsSeller(actorID uint, now time.Time) error {
	switch t.Status {
	case StatusInspectionPeriod, StatusBuyerApproved:
	default:
		return &InvalidTransitionError{From: t.Status, Op: "approve"}
	}
	if t.SellerApprovedAt != nil {
		return &InvalidTransitionError{From: t.Status, Op: "approve again"}
	}
	t.SellerApprovedAt = &now
	if t.BuyerApprovedAt != nil {
		return t.releaseFunds(actorID, "Both parties approved. Funds released to the seller.", now)
	}
	if err := t.advance(StatusSellerApproved, "approve"); err != nil {
		return err
	}
	t.appendSystemMessage(actorID, "Seller approved the transaction. Waiting for buyer approval.", now)
	return nil
}

// releaseFunds fires once the dual-consent gate is satisfied (or a dispute
// resolution overrides it): funds_released, then immediately
// transaction_completed with the completion date stamped once. The note is
// the audit trail entry; callers supply it because the gate can be satisfied
// by mutual approval or by the inspection timer.
func (t *Transaction) releaseFunds(actorID uint, note string, now time.Time) error {
	if err := t.advance(StatusFundsReleased, "release funds"); err != nil {
		return err
	}
	if err := t.advance(StatusTransactionCompleted, "complete"); err != nil {
		return err
	}
	if t.CompletionDate == nil {
		t.CompletionDate = &now
	}
	t.appendSystemMessage(actorID, note, now)
	return nil
}

// Cancel aborts the transaction while no funds are in custody. Either party
// may cancel from pending_agreement or pending_payment; once payment has been
// received the only ways out are completion or a dispute.
func (t *Transaction) Cancel(actorID uint, now time.Time) error {
	if !t.isParty(actorID) {
		return &ForbiddenError{ActorID: actorID, Op: "cancel"}
	}
	switch t.Status {
	case StatusPendingAgreement, StatusPendingPayment:
	default:
		return &InvalidTransitionError{From: t.Status, Op: "cancel"}
	}
	if err := t.advance(StatusCancelled, "cancel"); err != nil {
		return err
	}
	t.appendSystemMessage(actorID, "Transaction cancelled.", now)
	return nil
}

// CheckExpiry transitions a transaction past its expiry date into expired.
// It is idempotent housekeeping: terminal and disputed transactions are left
// alone, and a second call on an already-expired transaction changes nothing.
// It reports whether a transition happened so callers only persist real
// changes.
func (t *Transaction) CheckExpiry(now time.Time) bool {
	if t.Status.IsTerminal() || t.Status == StatusDisputed {
		return false
	}
	if !t.IsExpired(now) {
		return false
	}
	if err := t.advance(StatusExpired, "expire"); err != nil {
		return false
	}
	t.appendSystemMessage(0, "Transaction expired without settlement.", now)
	return true
}

// ResolveInspectionTimeout applies the inspection-window policy when the
// window elapsed without buyer action: approval is deemed given on the
// buyer's behalf, favoring the seller who has already surrendered the item.
// Idempotent like CheckExpiry; reports whether anything changed.
func (t *Transaction) ResolveInspectionTimeout(now time.Time) bool {
	if !t.InspectionElapsed(now) {
		return false
	}
	if t.BuyerApprovedAt != nil {
		return false
	}
	t.BuyerApprovedAt = &now
	if t.SellerApprovedAt != nil {
		note := "Inspection window elapsed without objection. Approval recorded on the buyer's behalf and funds released to the seller."
		if err := t.releaseFunds(t.BuyerID, note, now); err != nil {
			return false
		}
		return true
	}
	if err := t.advance(StatusBuyerApproved, "auto-approve"); err != nil {
		return false
	}
	t.appendSystemMessage(0, "Inspection window elapsed without objection. Approval recorded on the buyer's behalf.", now)
	return true
}

// RecordInspectionNotes stores a party's inspection photos and notes while
// the window is open. Notes do not move the state machine.
func (t *Transaction) RecordInspectionNotes(actorID uint, notes string, photos []string, now time.Time) error {
	role := t.RoleOf(actorID)
	if role != RoleBuyer && role != RoleSeller {
		return &ForbiddenError{ActorID: actorID, Op: "record inspection notes"}
	}
	if t.Status != StatusInspectionPeriod {
		return &InvalidTransitionError{From: t.Status, Op: "record inspection notes"}
	}
	if role == RoleBuyer {
		t.Evidence.Inspection.BuyerNotes = notes
		t.Evidence.Inspection.BuyerPhotos = append(t.Evidence.Inspection.BuyerPhotos, photos...)
	} else {
		t.Evidence.Inspection.SellerNotes = notes
		t.Evidence.Inspection.SellerPhotos = append(t.Evidence.Inspection.SellerPhotos, photos...)
	}
	return nil
}

// AddDocument attaches an uploader-attributed document to the evidence block.
func (t *Transaction) AddDocument(actor Actor, id string, docType DocumentType, filename, url string, now time.Time) error {
	if !t.isParty(actor.ID) && !t.canModerate(actor) {
		return &ForbiddenError{ActorID: actor.ID, Op: "attach a document"}
	}
	switch docType {
	case DocumentInvoice, DocumentReceipt, DocumentWarranty, DocumentCertificate, DocumentOther:
	default:
		return &ValidationError{Field: "document.type", Reason: "unknown document type"}
	}
	if url == "" {
		return &ValidationError{Field: "document.url", Reason: "required"}
	}
	t.Evidence.Documents = append(t.Evidence.Documents, Document{
		ID:         id,
		Type:       docType,
		Filename:   filename,
		URL:        url,
		UploadedBy: actor.ID,
		UploadedAt: now,
	})
	return nil
}
