package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"custodia/internal/escrow"
	"custodia/internal/store"
)

// EscrowStore is the persistence surface the orchestrator needs.
type EscrowStore interface {
	Create(ctx context.Context, t *escrow.Transaction) error
	Get(ctx context.Context, transactionID string) (*escrow.Transaction, error)
	Save(ctx context.Context, t *escrow.Transaction) error
	ListByParty(ctx context.Context, userID uint, f store.ListFilters) ([]*escrow.Transaction, int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*escrow.Transaction, error)
	GetStats(ctx context.Context, from, to *time.Time) (store.Stats, error)
}

// Notifier fans lifecycle events out to the affected parties. Notification
// failures never fail the transaction itself.
type Notifier interface {
	NotifyEscrowCreated(sellerID uint, buyerName string, t *escrow.Transaction) error
	NotifyTermsAccepted(buyerID uint, sellerName string, t *escrow.Transaction) error
	NotifyPaymentReceived(sellerID uint, t *escrow.Transaction) error
	NotifyItemShipped(buyerID uint, trackingNumber string, t *escrow.Transaction) error
	NotifyInspectionOpened(sellerID uint, t *escrow.Transaction) error
	NotifyApprovalRecorded(userID uint, approverName string, t *escrow.Transaction) error
	NotifyFundsReleased(sellerID uint, t *escrow.Transaction) error
	NotifyEscrowCancelled(userID uint, cancelledBy string, t *escrow.Transaction) error
	NotifyEscrowExpired(userID uint, t *escrow.Transaction) error
	NotifyDisputeRaised(userID uint, raisedByName, reason string, t *escrow.Transaction) error
	NotifyDisputeResolved(userID uint, outcome escrow.DisputeOutcome, resolution string, t *escrow.Transaction) error
	NotifyNewMessage(userID uint, senderName string, t *escrow.Transaction) error
}

// UserDirectory resolves display names for notification text.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID uint) (string, error)
}

// EscrowService orchestrates the transaction lifecycle: it loads the
// aggregate, applies one domain operation under a per-transaction lock,
// persists the result and fans out notifications.
type EscrowService struct {
	store    EscrowStore
	gateway  PaymentAuthorizer
	notifier Notifier
	users    UserDirectory
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEscrowService(st EscrowStore, gateway PaymentAuthorizer, notifier Notifier, users UserDirectory) *EscrowService {
	return &EscrowService{
		store:    st,
		gateway:  gateway,
		notifier: notifier,
		users:    users,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex serializing operations on one transaction within
// this process. Cross-process writers are caught by the store's version
// check instead.
func (s *EscrowService) lock(transactionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[transactionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[transactionID] = l
	}
	return l
}

// mutate runs op against the freshly loaded aggregate and saves it when op
// reports a change worth persisting.
func (s *EscrowService) mutate(ctx context.Context, transactionID string, op func(t *escrow.Transaction) error) (*escrow.Transaction, error) {
	l := s.lock(transactionID)
	l.Lock()
	defer l.Unlock()

	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := op(t); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *EscrowService) notify(fn func() error) {
	if err := fn(); err != nil {
		log.Printf("notification failed: %v", err)
	}
}

func (s *EscrowService) displayName(ctx context.Context, userID uint) string {
	name, err := s.users.DisplayName(ctx, userID)
	if err != nil {
		return fmt.Sprintf("user %d", userID)
	}
	return name
}

// Create opens a new transaction with the actor as buyer. Admins may open
// transactions on a buyer's behalf; everyone else can only buy for
// themselves.
func (s *EscrowService) Create(ctx context.Context, actor escrow.Actor, p escrow.NewTransactionParams) (*escrow.Transaction, error) {
	if p.BuyerID == 0 {
		p.BuyerID = actor.ID
	}
	if p.BuyerID != actor.ID && !actor.Admin {
		return nil, &escrow.ForbiddenError{ActorID: actor.ID, Op: "create a transaction for another buyer"}
	}

	t, err := escrow.New(p, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.notify(func() error {
		return s.notifier.NotifyEscrowCreated(t.SellerID, s.displayName(ctx, t.BuyerID), t)
	})
	return t, nil
}

// Get returns the aggregate with messages filtered to what the viewer may
// see. Only parties, the assigned supervisor and admins may read it.
func (s *EscrowService) Get(ctx context.Context, actor escrow.Actor, transactionID string) (*escrow.Transaction, error) {
	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	role := t.RoleOf(actor.ID)
	if role == escrow.RoleNone && !actor.Admin {
		return nil, &escrow.ForbiddenError{ActorID: actor.ID, Op: "view the transaction"}
	}
	if actor.Admin {
		role = escrow.RoleAdmin
	}
	t.Messages = t.MessagesFor(role)
	return t, nil
}

// List returns the actor's transactions, newest first.
func (s *EscrowService) List(ctx context.Context, actor escrow.Actor, f store.ListFilters) ([]*escrow.Transaction, int64, error) {
	return s.store.ListByParty(ctx, actor.ID, f)
}

// Stats returns platform-wide volume aggregates. Admin only.
func (s *EscrowService) Stats(ctx context.Context, actor escrow.Actor, from, to *time.Time) (store.Stats, error) {
	if !actor.Admin {
		return store.Stats{}, &escrow.ForbiddenError{ActorID: actor.ID, Op: "view platform stats"}
	}
	return s.store.GetStats(ctx, from, to)
}

// AcceptTerms is the seller accepting the buyer's proposal.
func (s *EscrowService) AcceptTerms(ctx context.Context, actor escrow.Actor, transactionID string) (*escrow.Transaction, error) {
	t, err := s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.AcceptTerms(actor.ID, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(func() error {
		return s.notifier.NotifyTermsAccepted(t.BuyerID, s.displayName(ctx, t.SellerID), t)
	})
	return t, nil
}

// Pay charges the buyer through the gateway and moves the transaction into
// custody. The gateway is only contacted after the domain confirms the
// payment is legal right now, so a declined or unreachable gateway leaves
// the transaction in pending_payment untouched.
func (s *EscrowService) Pay(ctx context.Context, actor escrow.Actor, transactionID string, method escrow.PaymentMethod) (*escrow.Transaction, error) {
	l := s.lock(transactionID)
	l.Lock()
	defer l.Unlock()

	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := t.BeginPayment(actor.ID, method); err != nil {
		return nil, err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err := s.gateway.Charge(chargeCtx, ChargeRequest{
		TransactionID: t.TransactionID,
		BuyerID:       t.BuyerID,
		Method:        method,
		Amount:        t.Terms.TotalAmount,
		Currency:      t.Terms.Currency,
	})
	if err != nil {
		return nil, err
	}

	if err := t.CompletePayment(actor.ID, method, result.Reference, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, err
	}
	s.notify(func() error {
		return s.notifier.NotifyPaymentReceived(t.SellerID, t)
	})
	return t, nil
}

// Ship records the seller's dispatch evidence.
func (s *EscrowService) Ship(ctx context.Context, actor escrow.Actor, transactionID, trackingNumber, carrier string) (*escrow.Transaction, error) {
	t, err := s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.MarkShipped(actor.ID, trackingNumber, carrier, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(func() error {
		return s.notifier.NotifyItemShipped(t.BuyerID, trackingNumber, t)
	})
	return t, nil
}

// ConfirmDelivery is the buyer confirming receipt, which opens inspection.
func (s *EscrowService) ConfirmDelivery(ctx context.Context, actor escrow.Actor, transactionID string) (*escrow.Transaction, error) {
	t, err := s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.MarkDelivered(actor.ID, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(func() error {
		return s.notifier.NotifyInspectionOpened(t.SellerID, t)
	})
	return t, nil
}

// Approve records one party's release consent. When the second consent
// arrives the seller is paid out before the released state is persisted, so
// a failed payout leaves the transaction retryable.
func (s *EscrowService) Approve(ctx context.Context, actor escrow.Actor, transactionID string) (*escrow.Transaction, error) {
	l := s.lock(transactionID)
	l.Lock()
	defer l.Unlock()

	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := t.Approve(actor.ID, s.now()); err != nil {
		return nil, err
	}

	released := t.Status == escrow.StatusFundsReleased || t.Status == escrow.StatusTransactionCompleted
	if released {
		if err := s.payoutSeller(ctx, t); err != nil {
			return nil, err
		}
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, err
	}

	if released {
		s.notify(func() error {
			return s.notifier.NotifyFundsReleased(t.SellerID, t)
		})
	} else {
		other := t.SellerID
		if t.RoleOf(actor.ID) == escrow.RoleSeller {
			other = t.BuyerID
		}
		s.notify(func() error {
			return s.notifier.NotifyApprovalRecorded(other, s.displayName(ctx, actor.ID), t)
		})
	}
	return t, nil
}

// payoutSeller transfers the item price to the seller. The platform keeps
// the escrow fee, so the payout is the price, not the buyer's total.
func (s *EscrowService) payoutSeller(ctx context.Context, t *escrow.Transaction) error {
	payoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.gateway.Payout(payoutCtx, PayoutRequest{
		TransactionID: t.TransactionID,
		SellerID:      t.SellerID,
		Amount:        t.Terms.Price,
		Currency:      t.Terms.Currency,
		Reason:        "escrow release " + t.TransactionID,
	})
	if err != nil {
		return fmt.Errorf("payout for %s: %w", t.TransactionID, err)
	}
	return nil
}

// Cancel aborts the transaction before funds enter custody.
func (s *EscrowService) Cancel(ctx context.Context, actor escrow.Actor, transactionID string) (*escrow.Transaction, error) {
	t, err := s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.Cancel(actor.ID, s.now())
	})
	if err != nil {
		return nil, err
	}
	other := t.SellerID
	if t.RoleOf(actor.ID) == escrow.RoleSeller {
		other = t.BuyerID
	}
	s.notify(func() error {
		return s.notifier.NotifyEscrowCancelled(other, s.displayName(ctx, actor.ID), t)
	})
	return t, nil
}

// SendMessage appends a chat message and notifies the counterpart. Internal
// notes are visible to the supervisor and admins only and notify nobody.
func (s *EscrowService) SendMessage(ctx context.Context, actor escrow.Actor, transactionID, body string, internal bool) (*escrow.Message, error) {
	var msg *escrow.Message
	t, err := s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		var err error
		msg, err = t.AddMessage(actor, body, internal, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if !internal {
		other := t.SellerID
		if actor.ID == t.SellerID {
			other = t.BuyerID
		}
		s.notify(func() error {
			return s.notifier.NotifyNewMessage(other, s.displayName(ctx, actor.ID), t)
		})
	}
	return msg, nil
}

// Messages returns the conversation as visible to the actor.
func (s *EscrowService) Messages(ctx context.Context, actor escrow.Actor, transactionID string) ([]escrow.Message, error) {
	t, err := s.Get(ctx, actor, transactionID)
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}

// RecordInspectionNotes stores a party's inspection findings.
func (s *EscrowService) RecordInspectionNotes(ctx context.Context, actor escrow.Actor, transactionID, notes string, photos []string) (*escrow.Transaction, error) {
	return s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.RecordInspectionNotes(actor.ID, notes, photos, s.now())
	})
}

// AttachDocument links an uploaded document to the transaction evidence.
func (s *EscrowService) AttachDocument(ctx context.Context, actor escrow.Actor, transactionID, id string, docType escrow.DocumentType, filename, url string) (*escrow.Transaction, error) {
	return s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.AddDocument(actor, id, docType, filename, url, s.now())
	})
}

// OpenDispute parks the transaction in disputed and alerts the counterpart.
func (s *EscrowService) OpenDispute(ctx context.Context, actor escrow.Actor, transactionID, reason, description string) (*escrow.Transaction, error) {
	t, err := s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.InitiateDispute(actor.ID, reason, description, s.now())
	})
	if err != nil {
		return nil, err
	}
	other := t.SellerID
	if actor.ID == t.SellerID {
		other = t.BuyerID
	}
	s.notify(func() error {
		return s.notifier.NotifyDisputeRaised(other, s.displayName(ctx, actor.ID), reason, t)
	})
	return t, nil
}

// ReviewDispute marks the dispute as under review.
func (s *EscrowService) ReviewDispute(ctx context.Context, actor escrow.Actor, transactionID string) (*escrow.Transaction, error) {
	return s.mutate(ctx, transactionID, func(t *escrow.Transaction) error {
		return t.ReviewDispute(actor, s.now())
	})
}

// ResolveDispute applies the moderator's award. Money moves before the new
// state is persisted: a refund calls the gateway refund, a release pays the
// seller out. Resume moves no money.
func (s *EscrowService) ResolveDispute(ctx context.Context, actor escrow.Actor, transactionID string, outcome escrow.DisputeOutcome, resolution string) (*escrow.Transaction, error) {
	l := s.lock(transactionID)
	l.Lock()
	defer l.Unlock()

	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	hadPayment := t.Payment.Status == escrow.PaymentCompleted
	paymentRef := t.Payment.Reference
	if err := t.ResolveDispute(actor, outcome, resolution, s.now()); err != nil {
		return nil, err
	}

	switch outcome {
	case escrow.OutcomeRefund:
		if hadPayment {
			refundCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := s.gateway.Refund(refundCtx, paymentRef, t.Payment.Amount); err != nil {
				return nil, fmt.Errorf("refund for %s: %w", t.TransactionID, err)
			}
		}
	case escrow.OutcomeRelease:
		if hadPayment {
			if err := s.payoutSeller(ctx, t); err != nil {
				return nil, err
			}
		}
	}

	if err := s.store.Save(ctx, t); err != nil {
		return nil, err
	}
	for _, userID := range []uint{t.BuyerID, t.SellerID} {
		uid := userID
		s.notify(func() error {
			return s.notifier.NotifyDisputeResolved(uid, outcome, resolution, t)
		})
	}
	return t, nil
}

// SweepDue applies the timer policies to every transaction the store reports
// as due: expiry past the 30-day window, and inspection windows that elapsed
// without buyer action. Transactions are independent, so the batch is swept
// concurrently; a failure on one is logged and never blocks the rest.
// Returns how many transactions changed.
func (s *EscrowService) SweepDue(ctx context.Context, limit int) (int, error) {
	now := s.now()
	due, err := s.store.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	var swept atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, stale := range due {
		transactionID := stale.TransactionID
		g.Go(func() error {
			changed, err := s.sweepOne(ctx, transactionID, now)
			if err != nil {
				log.Printf("sweep %s: %v", transactionID, err)
				return nil
			}
			if changed {
				swept.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(swept.Load()), err
	}
	return int(swept.Load()), nil
}

func (s *EscrowService) sweepOne(ctx context.Context, transactionID string, now time.Time) (bool, error) {
	l := s.lock(transactionID)
	l.Lock()
	defer l.Unlock()

	// Reload under the lock: the listing snapshot may be stale.
	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return false, err
	}

	if t.CheckExpiry(now) {
		if err := s.store.Save(ctx, t); err != nil {
			return false, err
		}
		for _, userID := range []uint{t.BuyerID, t.SellerID} {
			uid := userID
			s.notify(func() error {
				return s.notifier.NotifyEscrowExpired(uid, t)
			})
		}
		return true, nil
	}

	if t.ResolveInspectionTimeout(now) {
		released := t.Status == escrow.StatusFundsReleased || t.Status == escrow.StatusTransactionCompleted
		if released {
			if err := s.payoutSeller(ctx, t); err != nil {
				return false, err
			}
		}
		if err := s.store.Save(ctx, t); err != nil {
			return false, err
		}
		if released {
			s.notify(func() error {
				return s.notifier.NotifyFundsReleased(t.SellerID, t)
			})
		} else {
			s.notify(func() error {
				return s.notifier.NotifyApprovalRecorded(t.SellerID, "the inspection timer", t)
			})
		}
		return true, nil
	}

	return false, nil
}
