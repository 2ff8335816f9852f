package escrow

// Status is the lifecycle state of an escrow transaction.
type Status string

const (
	StatusPendingAgreement     Status = "pending_agreement"
	StatusPendingPayment       Status = "pending_payment"
	StatusPaymentReceived      Status = "payment_received"
	StatusItemShipped          Status = "item_shipped"
	StatusItemDelivered        Status = "item_delivered"
	StatusInspectionPeriod     Status = "inspection_period"
	StatusBuyerApproved        Status = "buyer_approved"
	StatusSellerApproved       Status = "seller_approved"
	StatusFundsReleased        Status = "funds_released"
	StatusTransactionCompleted Status = "transaction_completed"
	StatusDisputed             Status = "disputed"
	StatusCancelled            Status = "cancelled"
	StatusExpired              Status = "expired"
)

// successors is the allowed-successor table of the state machine. A transition
// whose target is not in the current status's set is rejected before any
// mutation. Entry into disputed is permitted from every non-terminal status;
// leaving disputed additionally allows resuming the remembered prior status
// (see resolveOutcomeResume).
var successors = map[Status]map[Status]bool{
	StatusPendingAgreement: {
		StatusPendingPayment: true,
		StatusDisputed:       true,
		StatusCancelled:      true,
		StatusExpired:        true,
	},
	StatusPendingPayment: {
		StatusPaymentReceived: true,
		StatusDisputed:        true,
		StatusCancelled:       true,
		StatusExpired:         true,
	},
	StatusPaymentReceived: {
		StatusItemShipped: true,
		StatusDisputed:    true,
		StatusExpired:     true,
	},
	StatusItemShipped: {
		StatusItemDelivered:    true,
		StatusInspectionPeriod: true,
		StatusDisputed:         true,
		StatusExpired:          true,
	},
	StatusItemDelivered: {
		StatusInspectionPeriod: true,
		StatusDisputed:         true,
		StatusExpired:          true,
	},
	StatusInspectionPeriod: {
		StatusBuyerApproved:  true,
		StatusSellerApproved: true,
		StatusDisputed:       true,
		StatusExpired:        true,
	},
	StatusBuyerApproved: {
		StatusFundsReleased: true,
		StatusDisputed:      true,
		StatusExpired:       true,
	},
	StatusSellerApproved: {
		StatusFundsReleased: true,
		StatusDisputed:      true,
		StatusExpired:       true,
	},
	StatusFundsReleased: {
		StatusTransactionCompleted: true,
	},
	StatusDisputed: {
		StatusFundsReleased: true,
		StatusCancelled:     true,
	},
	StatusTransactionCompleted: {},
	StatusCancelled:            {},
	StatusExpired:              {},
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusTransactionCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the table permits moving from s to next.
func (s Status) CanTransition(next Status) bool {
	return successors[s][next]
}

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	_, ok := successors[s]
	return ok
}

// advance moves the transaction to next after consulting the transition table.
// It is the single chokepoint every operation goes through, so a table
// violation can never mutate the aggregate.
func (t *Transaction) advance(next Status, op string) error {
	if !t.Status.CanTransition(next) {
		return &InvalidTransitionError{From: t.Status, Op: op}
	}
	t.Status = next
	return nil
}
