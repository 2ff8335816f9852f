package escrow

import (
	"errors"
	"testing"
	"time"
)

func TestDisputeDuringInspection(t *testing.T) {
	tx := driveTo(t, StatusInspectionPeriod)

	if err := tx.InitiateDispute(testBuyer, "item_arrived_damaged", "cracked windshield", testNow); err != nil {
		t.Fatalf("InitiateDispute: %v", err)
	}
	if tx.Status != StatusDisputed {
		t.Fatalf("status = %s, want disputed", tx.Status)
	}
	if tx.PriorStatus != StatusInspectionPeriod {
		t.Fatalf("prior status = %s, want inspection_period", tx.PriorStatus)
	}
	if tx.Dispute == nil || tx.Dispute.Status != DisputeOpen || tx.Dispute.InitiatedBy != testBuyer {
		t.Fatalf("dispute = %+v", tx.Dispute)
	}

	supervisor := Actor{ID: testSupervisor}
	if err := tx.ResolveDispute(supervisor, OutcomeRelease, "item matches the listing", testNow); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if tx.Status != StatusFundsReleased {
		t.Fatalf("status = %s, want funds_released", tx.Status)
	}
	if tx.Dispute.Status != DisputeResolved || tx.Dispute.ResolvedBy != testSupervisor || tx.Dispute.ResolvedAt == nil {
		t.Fatalf("dispute after resolve = %+v", tx.Dispute)
	}
}

func TestSingleOpenDispute(t *testing.T) {
	tx := driveTo(t, StatusPaymentReceived)
	if err := tx.InitiateDispute(testBuyer, "item_not_received", "no tracking yet", testNow); err != nil {
		t.Fatalf("first dispute: %v", err)
	}
	err := tx.InitiateDispute(testSeller, "other", "counter claim", testNow)
	if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrValidation) {
		t.Fatalf("second dispute: got %v, want rejection", err)
	}

	// Resolving frees the slot for a new dispute.
	if err := tx.ResolveDispute(Actor{ID: testSupervisor}, OutcomeResume, "seller provided tracking", testNow); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if tx.Status != StatusPaymentReceived {
		t.Fatalf("resume: status = %s, want payment_received", tx.Status)
	}
	if err := tx.InitiateDispute(testBuyer, "item_not_received", "still nothing", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("dispute after resolution: %v", err)
	}
}

func TestDisputeAuthorization(t *testing.T) {
	tx := driveTo(t, StatusInspectionPeriod)
	if err := tx.InitiateDispute(testStranger, "other", "not my deal", testNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger dispute: got %v, want forbidden", err)
	}
	if err := tx.InitiateDispute(testSupervisor, "other", "hmm", testNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("supervisor dispute: got %v, want forbidden", err)
	}
	if err := tx.InitiateDispute(testBuyer, "incorrect_item_received", "wrong color", testNow); err != nil {
		t.Fatalf("buyer dispute: %v", err)
	}

	// Parties cannot resolve; the supervisor and platform admins can.
	if err := tx.ResolveDispute(Actor{ID: testBuyer}, OutcomeRefund, "give it back", testNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("buyer resolve: got %v, want forbidden", err)
	}
	if err := tx.ResolveDispute(Actor{ID: testStranger, Admin: true}, OutcomeRefund, "refund per policy", testNow); err != nil {
		t.Fatalf("admin resolve: %v", err)
	}
}

func TestDisputeRefundOutcome(t *testing.T) {
	tx := driveTo(t, StatusItemShipped)
	if err := tx.InitiateDispute(testBuyer, "item_significantly_not_as_described", "listing said new", testNow); err != nil {
		t.Fatalf("InitiateDispute: %v", err)
	}
	if err := tx.ResolveDispute(Actor{ID: testSupervisor}, OutcomeRefund, "refund the buyer", testNow); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if tx.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", tx.Status)
	}
	if tx.Payment.Status != PaymentRefunded || tx.Payment.RefundedAt == nil {
		t.Fatalf("payment = %+v, want refunded", tx.Payment)
	}
}

func TestDisputeFromTerminalStateRejected(t *testing.T) {
	tx := driveTo(t, StatusTransactionCompleted)
	if err := tx.InitiateDispute(testBuyer, "other", "too late", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want invalid transition", err)
	}
}

func TestReviewDispute(t *testing.T) {
	tx := driveTo(t, StatusInspectionPeriod)
	if err := tx.InitiateDispute(testSeller, "other", "buyer unresponsive", testNow); err != nil {
		t.Fatalf("InitiateDispute: %v", err)
	}
	if err := tx.ReviewDispute(Actor{ID: testBuyer}, testNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("party review: got %v, want forbidden", err)
	}
	if err := tx.ReviewDispute(Actor{ID: testSupervisor}, testNow); err != nil {
		t.Fatalf("ReviewDispute: %v", err)
	}
	if tx.Dispute.Status != DisputeUnderReview {
		t.Fatalf("dispute status = %s", tx.Dispute.Status)
	}
	// Still counts as active: no new dispute may open.
	if err := tx.InitiateDispute(testBuyer, "other", "me too", testNow); err == nil {
		t.Fatal("expected rejection while under review")
	}
}

func TestResolveRequiresResolution(t *testing.T) {
	tx := driveTo(t, StatusInspectionPeriod)
	if err := tx.InitiateDispute(testBuyer, "other", "x", testNow); err != nil {
		t.Fatalf("InitiateDispute: %v", err)
	}
	if err := tx.ResolveDispute(Actor{ID: testSupervisor}, OutcomeRelease, "", testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty resolution: got %v, want validation error", err)
	}
	if err := tx.ResolveDispute(Actor{ID: testSupervisor}, "split", "half each", testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown outcome: got %v, want validation error", err)
	}
}
