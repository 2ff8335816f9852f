package escrow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown transaction id.
	ErrNotFound = errors.New("escrow: transaction not found")
	// ErrForbidden signals the actor lacks the role required for the operation.
	ErrForbidden = errors.New("escrow: forbidden")
	// ErrInvalidTransition signals the current status does not permit the operation.
	ErrInvalidTransition = errors.New("escrow: invalid transition")
	// ErrValidation signals a malformed payload.
	ErrValidation = errors.New("escrow: validation failed")
	// ErrPaymentFailed signals the external authorization declined or timed out.
	ErrPaymentFailed = errors.New("escrow: payment failed")
	// ErrConcurrencyConflict signals a version mismatch on save.
	ErrConcurrencyConflict = errors.New("escrow: concurrent modification")
)

// InvalidTransitionError carries the status and operation of a rejected transition.
type InvalidTransitionError struct {
	From Status
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("escrow: cannot %s while %s", e.Op, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError identifies which field of a payload was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("escrow: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ForbiddenError identifies the actor and operation of a rejected authorization.
type ForbiddenError struct {
	ActorID uint
	Op      string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("escrow: actor %d may not %s", e.ActorID, e.Op)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// PaymentFailedError wraps a gateway decline or timeout. The transaction stays
// in pending_payment so the buyer can retry.
type PaymentFailedError struct {
	Reason string
	Err    error
}

func (e *PaymentFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("escrow: payment failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("escrow: payment failed: %s", e.Reason)
}

func (e *PaymentFailedError) Is(target error) bool {
	return target == ErrPaymentFailed
}

func (e *PaymentFailedError) Unwrap() error {
	return e.Err
}
