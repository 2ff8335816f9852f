package escrow

import "time"

// DisputeStatus is the state of the nested dispute process.
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeClosed      DisputeStatus = "closed"
)

// DisputeOutcome is the resolver's award. The original flow only released
// funds to the seller; refund and resume cover the outcomes real escrow
// arbitration needs.
type DisputeOutcome string

const (
	// OutcomeRelease awards the funds to the seller: the transaction moves to
	// funds_released, overriding the dual-consent gate.
	OutcomeRelease DisputeOutcome = "release"
	// OutcomeRefund awards the funds back to the buyer: the payment is marked
	// refunded and the transaction is cancelled.
	OutcomeRefund DisputeOutcome = "refund"
	// OutcomeResume dismisses the dispute and returns the transaction to the
	// status it held before being parked in disputed.
	OutcomeResume DisputeOutcome = "resume"
)

// Dispute is the single active dispute attached to a transaction. At most one
// dispute may be open at a time; a resolved dispute frees the slot.
type Dispute struct {
	InitiatedBy uint          `json:"initiated_by"`
	Reason      string        `json:"reason"`
	Description string        `json:"description"`
	Status      DisputeStatus `json:"status"`
	Resolution  string        `json:"resolution,omitempty"`
	ResolvedBy  uint          `json:"resolved_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Active reports whether d still blocks a new dispute from being opened.
func (d *Dispute) Active() bool {
	if d == nil {
		return false
	}
	return d.Status == DisputeOpen || d.Status == DisputeUnderReview
}

// InitiateDispute opens a dispute and parks the main state machine in
// disputed, remembering the prior status so resolution can resume it. Legal
// for buyer or seller from any non-terminal state, and only while no other
// dispute is active.
func (t *Transaction) InitiateDispute(actorID uint, reason, description string, now time.Time) error {
	if !t.isParty(actorID) {
		return &ForbiddenError{ActorID: actorID, Op: "open a dispute"}
	}
	if t.Status.IsTerminal() || t.Status == StatusDisputed {
		return &InvalidTransitionError{From: t.Status, Op: "open a dispute"}
	}
	if t.Dispute.Active() {
		return &ValidationError{Field: "dispute", Reason: "a dispute is already open"}
	}
	if reason == "" {
		return &ValidationError{Field: "dispute.reason", Reason: "required"}
	}
	prior := t.Status
	if err := t.advance(StatusDisputed, "open a dispute"); err != nil {
		return err
	}
	t.PriorStatus = prior
	t.Dispute = &Dispute{
		InitiatedBy: actorID,
		Reason:      reason,
		Description: description,
		Status:      DisputeOpen,
		CreatedAt:   now,
	}
	t.appendSystemMessage(actorID, "Dispute opened. The transaction is on hold pending review.", now)
	return nil
}

// ReviewDispute marks the open dispute as under review by a moderator.
func (t *Transaction) ReviewDispute(actor Actor, now time.Time) error {
	if !t.canModerate(actor) {
		return &ForbiddenError{ActorID: actor.ID, Op: "review the dispute"}
	}
	if t.Dispute == nil || t.Dispute.Status != DisputeOpen {
		return &InvalidTransitionError{From: t.Status, Op: "review the dispute"}
	}
	t.Dispute.Status = DisputeUnderReview
	return nil
}

// ResolveDispute closes the active dispute with the resolver's award and
// returns control to the main state machine. The resolver authority
// (supervisor or admin) is an authorization fact supplied by the caller.
func (t *Transaction) ResolveDispute(resolver Actor, outcome DisputeOutcome, resolution string, now time.Time) error {
	if !t.canModerate(resolver) {
		return &ForbiddenError{ActorID: resolver.ID, Op: "resolve the dispute"}
	}
	if t.Status != StatusDisputed || !t.Dispute.Active() {
		return &InvalidTransitionError{From: t.Status, Op: "resolve the dispute"}
	}
	if resolution == "" {
		return &ValidationError{Field: "resolution", Reason: "required"}
	}

	switch outcome {
	case OutcomeRelease:
		if err := t.advance(StatusFundsReleased, "resolve the dispute"); err != nil {
			return err
		}
		t.appendSystemMessage(resolver.ID, "Dispute resolved. Funds released to the seller.", now)
	case OutcomeRefund:
		if err := t.advance(StatusCancelled, "resolve the dispute"); err != nil {
			return err
		}
		if t.Payment.Status == PaymentCompleted {
			t.Payment.Status = PaymentRefunded
			t.Payment.RefundedAt = &now
		}
		t.appendSystemMessage(resolver.ID, "Dispute resolved. Payment refunded to the buyer.", now)
	case OutcomeResume:
		prior := t.PriorStatus
		if !prior.Valid() || prior.IsTerminal() || prior == StatusDisputed {
			return &InvalidTransitionError{From: t.Status, Op: "resume after dispute"}
		}
		// Resuming steps outside the successor table on purpose: disputed
		// parked the machine, it did not advance it.
		t.Status = prior
		t.appendSystemMessage(resolver.ID, "Dispute dismissed. The transaction resumes its previous stage.", now)
	default:
		return &ValidationError{Field: "outcome", Reason: "must be release, refund or resume"}
	}

	t.PriorStatus = ""
	t.Dispute.Status = DisputeResolved
	t.Dispute.Resolution = resolution
	t.Dispute.ResolvedBy = resolver.ID
	t.Dispute.ResolvedAt = &now
	return nil
}
