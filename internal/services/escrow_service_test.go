package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"custodia/internal/escrow"
	"custodia/internal/store"
)

var svcNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

const (
	svcBuyer    uint = 1
	svcSeller   uint = 2
	svcAdminID  uint = 50
	svcStranger uint = 99
)

// fakeStore keeps aggregates in memory. Get hands out JSON clones so that
// un-saved mutations never leak back, mirroring a real database.
type fakeStore struct {
	mu    sync.Mutex
	rows  map[string]*escrow.Transaction
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*escrow.Transaction)}
}

func cloneTransaction(t *escrow.Transaction) *escrow.Transaction {
	b, err := json.Marshal(t)
	if err != nil {
		panic(err)
	}
	var out escrow.Transaction
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func (f *fakeStore) Create(_ context.Context, t *escrow.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t.TransactionID] = cloneTransaction(t)
	return nil
}

func (f *fakeStore) Get(_ context.Context, transactionID string) (*escrow.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[transactionID]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (f *fakeStore) Save(_ context.Context, t *escrow.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.rows[t.TransactionID]
	if !ok {
		return escrow.ErrNotFound
	}
	if current.Version != t.Version {
		return escrow.ErrConcurrencyConflict
	}
	t.Version++
	f.rows[t.TransactionID] = cloneTransaction(t)
	f.saves++
	return nil
}

func (f *fakeStore) ListByParty(_ context.Context, userID uint, _ store.ListFilters) ([]*escrow.Transaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*escrow.Transaction
	for _, t := range f.rows {
		if t.BuyerID == userID || t.SellerID == userID || t.SupervisorID == userID {
			out = append(out, cloneTransaction(t))
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) ListDue(_ context.Context, now time.Time, _ int) ([]*escrow.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*escrow.Transaction
	for _, t := range f.rows {
		if t.Status.IsTerminal() || t.Status == escrow.StatusDisputed || t.Status == escrow.StatusFundsReleased {
			continue
		}
		if t.IsExpired(now) || t.InspectionElapsed(now) {
			out = append(out, cloneTransaction(t))
		}
	}
	return out, nil
}

func (f *fakeStore) GetStats(_ context.Context, _, _ *time.Time) (store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return store.Stats{TotalTransactions: int64(len(f.rows))}, nil
}

// fakeGateway records money movements and can be primed to fail.
type fakeGateway struct {
	mu        sync.Mutex
	chargeErr error
	payoutErr error
	refundErr error
	charges   []ChargeRequest
	payouts   []PayoutRequest
	refunds   []string
}

func (g *fakeGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.charges = append(g.charges, req)
	return &ChargeResult{Reference: "chg_" + req.TransactionID, Status: "succeeded"}, nil
}

func (g *fakeGateway) Payout(_ context.Context, req PayoutRequest) (*PayoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	g.payouts = append(g.payouts, req)
	return &PayoutResult{Reference: "pay_" + req.TransactionID, Status: "succeeded"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, reference string, _ float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, reference)
	return nil
}

// fakeNotifier records which events reached which users.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) record(event string, userID uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fmt.Sprintf("%s:%d", event, userID))
	return nil
}

func (n *fakeNotifier) has(event string, userID uint) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	want := fmt.Sprintf("%s:%d", event, userID)
	for _, e := range n.events {
		if e == want {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) NotifyEscrowCreated(userID uint, _ string, _ *escrow.Transaction) error {
	return n.record("created", userID)
}
func (n *fakeNotifier) NotifyTermsAccepted(userID uint, _ string, _ *escrow.Transaction) error {
	return n.record("terms_accepted", userID)
}
func (n *fakeNotifier) NotifyPaymentReceived(userID uint, _ *escrow.Transaction) error {
	return n.record("payment_received", userID)
}
func (n *fakeNotifier) NotifyItemShipped(userID uint, _ string, _ *escrow.Transaction) error {
	return n.record("item_shipped", userID)
}
func (n *fakeNotifier) NotifyInspectionOpened(userID uint, _ *escrow.Transaction) error {
	return n.record("inspection_opened", userID)
}
func (n *fakeNotifier) NotifyApprovalRecorded(userID uint, _ string, _ *escrow.Transaction) error {
	return n.record("approval_recorded", userID)
}
func (n *fakeNotifier) NotifyFundsReleased(userID uint, _ *escrow.Transaction) error {
	return n.record("funds_released", userID)
}
func (n *fakeNotifier) NotifyEscrowCancelled(userID uint, _ string, _ *escrow.Transaction) error {
	return n.record("cancelled", userID)
}
func (n *fakeNotifier) NotifyEscrowExpired(userID uint, _ *escrow.Transaction) error {
	return n.record("expired", userID)
}
func (n *fakeNotifier) NotifyDisputeRaised(userID uint, _, _ string, _ *escrow.Transaction) error {
	return n.record("dispute_raised", userID)
}
func (n *fakeNotifier) NotifyDisputeResolved(userID uint, _ escrow.DisputeOutcome, _ string, _ *escrow.Transaction) error {
	return n.record("dispute_resolved", userID)
}
func (n *fakeNotifier) NotifyNewMessage(userID uint, _ string, _ *escrow.Transaction) error {
	return n.record("new_message", userID)
}

type fakeDirectory struct{}

func (fakeDirectory) DisplayName(_ context.Context, userID uint) (string, error) {
	return fmt.Sprintf("User %d", userID), nil
}

type serviceFixture struct {
	svc      *EscrowService
	store    *fakeStore
	gateway  *fakeGateway
	notifier *fakeNotifier
}

func newFixture() *serviceFixture {
	st := newFakeStore()
	gw := &fakeGateway{}
	nt := &fakeNotifier{}
	svc := NewEscrowService(st, gw, nt, fakeDirectory{})
	svc.now = func() time.Time { return svcNow }
	return &serviceFixture{svc: svc, store: st, gateway: gw, notifier: nt}
}

func svcParams() escrow.NewTransactionParams {
	return escrow.NewTransactionParams{
		BuyerID:  svcBuyer,
		SellerID: svcSeller,
		Item: escrow.Item{
			Title:          "PlayStation 5 con dos controles",
			Description:    "Consola en caja con recibo original",
			Category:       escrow.CategoryElectronics,
			Condition:      escrow.ConditionGood,
			EstimatedValue: 8000,
		},
		Price:          8000,
		Currency:       escrow.CurrencyMXN,
		DeliveryMethod: escrow.DeliveryShipping,
	}
}

func (f *serviceFixture) create(t *testing.T) *escrow.Transaction {
	t.Helper()
	tx, err := f.svc.Create(context.Background(), escrow.Actor{ID: svcBuyer}, svcParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tx
}

// payUp walks the transaction into custody.
func (f *serviceFixture) payUp(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.AcceptTerms(ctx, escrow.Actor{ID: svcSeller}, id); err != nil {
		t.Fatalf("accept terms: %v", err)
	}
	if _, err := f.svc.Pay(ctx, escrow.Actor{ID: svcBuyer}, id, escrow.PaymentCreditCard); err != nil {
		t.Fatalf("pay: %v", err)
	}
}

// openInspection walks the transaction to the inspection window.
func (f *serviceFixture) openInspection(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	f.payUp(t, id)
	if _, err := f.svc.Ship(ctx, escrow.Actor{ID: svcSeller}, id, "EST-443221", "Estafeta"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := f.svc.ConfirmDelivery(ctx, escrow.Actor{ID: svcBuyer}, id); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
}

func TestCreateNotifiesSeller(t *testing.T) {
	f := newFixture()
	tx := f.create(t)

	if tx.Status != escrow.StatusPendingAgreement {
		t.Errorf("status = %s, want pending_agreement", tx.Status)
	}
	if !f.notifier.has("created", svcSeller) {
		t.Error("seller was not notified of the new transaction")
	}
	if _, err := f.store.Get(context.Background(), tx.TransactionID); err != nil {
		t.Errorf("transaction not persisted: %v", err)
	}
}

func TestCreateForAnotherBuyerRequiresAdmin(t *testing.T) {
	f := newFixture()
	p := svcParams()

	_, err := f.svc.Create(context.Background(), escrow.Actor{ID: svcStranger}, p)
	if !errors.Is(err, escrow.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Create(context.Background(), escrow.Actor{ID: svcAdminID, Admin: true}, p); err != nil {
		t.Fatalf("admin create on behalf of buyer: %v", err)
	}
}

func TestPayChargesGatewayAndAdvances(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	f.payUp(t, tx.TransactionID)

	got, err := f.store.Get(context.Background(), tx.TransactionID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != escrow.StatusPaymentReceived {
		t.Errorf("status = %s, want payment_received", got.Status)
	}
	if got.Payment.Status != escrow.PaymentCompleted {
		t.Errorf("payment status = %s, want completed", got.Payment.Status)
	}
	if got.Payment.Reference != "chg_"+tx.TransactionID {
		t.Errorf("payment reference = %q", got.Payment.Reference)
	}
	if len(f.gateway.charges) != 1 {
		t.Fatalf("gateway charges = %d, want 1", len(f.gateway.charges))
	}
	if f.gateway.charges[0].Amount != got.Terms.TotalAmount {
		t.Errorf("charged %.2f, want the buyer total %.2f", f.gateway.charges[0].Amount, got.Terms.TotalAmount)
	}
	if !f.notifier.has("payment_received", svcSeller) {
		t.Error("seller was not notified of the payment")
	}
}

func TestPayGatewayDeclineLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	ctx := context.Background()
	if _, err := f.svc.AcceptTerms(ctx, escrow.Actor{ID: svcSeller}, tx.TransactionID); err != nil {
		t.Fatalf("accept terms: %v", err)
	}

	f.gateway.chargeErr = &escrow.PaymentFailedError{Reason: "card declined"}
	savesBefore := f.store.saves

	_, err := f.svc.Pay(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID, escrow.PaymentCreditCard)
	if !errors.Is(err, escrow.ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}

	got, err := f.store.Get(ctx, tx.TransactionID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != escrow.StatusPendingPayment {
		t.Errorf("status = %s, want pending_payment after decline", got.Status)
	}
	if got.Payment.Status != escrow.PaymentPending {
		t.Errorf("payment status = %s, want pending", got.Payment.Status)
	}
	if f.store.saves != savesBefore {
		t.Error("declined payment must not persist anything")
	}

	// The buyer can retry with another card.
	f.gateway.chargeErr = nil
	if _, err := f.svc.Pay(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID, escrow.PaymentDebitCard); err != nil {
		t.Fatalf("retry pay: %v", err)
	}
}

func TestApproveDualConsentPaysSellerOut(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	f.openInspection(t, tx.TransactionID)
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID); err != nil {
		t.Fatalf("buyer approve: %v", err)
	}
	if len(f.gateway.payouts) != 0 {
		t.Fatal("payout must wait for both approvals")
	}
	if !f.notifier.has("approval_recorded", svcSeller) {
		t.Error("seller was not told about the buyer approval")
	}

	if _, err := f.svc.Approve(ctx, escrow.Actor{ID: svcSeller}, tx.TransactionID); err != nil {
		t.Fatalf("seller approve: %v", err)
	}

	got, err := f.store.Get(ctx, tx.TransactionID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != escrow.StatusTransactionCompleted {
		t.Errorf("status = %s, want transaction_completed", got.Status)
	}
	if len(f.gateway.payouts) != 1 {
		t.Fatalf("payouts = %d, want 1", len(f.gateway.payouts))
	}
	// Seller receives the price; the platform keeps the fee.
	if f.gateway.payouts[0].Amount != got.Terms.Price {
		t.Errorf("payout = %.2f, want price %.2f", f.gateway.payouts[0].Amount, got.Terms.Price)
	}
	if !f.notifier.has("funds_released", svcSeller) {
		t.Error("seller was not notified of the release")
	}
}

func TestApprovePayoutFailureIsNotPersisted(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	f.openInspection(t, tx.TransactionID)
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, escrow.Actor{ID: svcSeller}, tx.TransactionID); err != nil {
		t.Fatalf("seller approve: %v", err)
	}

	f.gateway.payoutErr = errors.New("gateway down")
	if _, err := f.svc.Approve(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID); err == nil {
		t.Fatal("expected payout failure to surface")
	}

	got, err := f.store.Get(ctx, tx.TransactionID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != escrow.StatusSellerApproved {
		t.Errorf("status = %s, want seller_approved (release not persisted)", got.Status)
	}

	// Gateway recovers and the buyer's approval goes through.
	f.gateway.payoutErr = nil
	if _, err := f.svc.Approve(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID); err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	got, _ = f.store.Get(ctx, tx.TransactionID)
	if got.Status != escrow.StatusTransactionCompleted {
		t.Errorf("status after retry = %s, want transaction_completed", got.Status)
	}
}

func TestResolveDisputeRefundMovesMoneyBack(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	f.openInspection(t, tx.TransactionID)
	ctx := context.Background()

	if _, err := f.svc.OpenDispute(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID, "item_damaged", "La consola llego con la carcasa rota"); err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if !f.notifier.has("dispute_raised", svcSeller) {
		t.Error("seller was not notified of the dispute")
	}

	admin := escrow.Actor{ID: svcAdminID, Admin: true}
	got, err := f.svc.ResolveDispute(ctx, admin, tx.TransactionID, escrow.OutcomeRefund, "Damage confirmed by photos, buyer refunded")
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if got.Status != escrow.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.Payment.Status != escrow.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", got.Payment.Status)
	}
	if len(f.gateway.refunds) != 1 || f.gateway.refunds[0] != "chg_"+tx.TransactionID {
		t.Fatalf("refunds = %v, want the original charge reference", f.gateway.refunds)
	}
	if !f.notifier.has("dispute_resolved", svcBuyer) || !f.notifier.has("dispute_resolved", svcSeller) {
		t.Error("both parties must hear about the resolution")
	}
}

func TestResolveDisputeReleasePaysSeller(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	f.openInspection(t, tx.TransactionID)
	ctx := context.Background()

	if _, err := f.svc.OpenDispute(ctx, escrow.Actor{ID: svcSeller}, tx.TransactionID, "buyer_unresponsive", ""); err != nil {
		t.Fatalf("open dispute: %v", err)
	}

	admin := escrow.Actor{ID: svcAdminID, Admin: true}
	got, err := f.svc.ResolveDispute(ctx, admin, tx.TransactionID, escrow.OutcomeRelease, "Buyer unreachable past the window, funds awarded to seller")
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if got.Status != escrow.StatusFundsReleased {
		t.Errorf("status = %s, want funds_released", got.Status)
	}
	if len(f.gateway.payouts) != 1 {
		t.Fatalf("payouts = %d, want 1", len(f.gateway.payouts))
	}
}

func TestGetHidesInternalMessagesFromParties(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	ctx := context.Background()

	admin := escrow.Actor{ID: svcAdminID, Admin: true}
	if _, err := f.svc.SendMessage(ctx, admin, tx.TransactionID, "Verify the seller's account before release", true); err != nil {
		t.Fatalf("send internal message: %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID, "Cuando puedes enviar?", false); err != nil {
		t.Fatalf("send message: %v", err)
	}

	buyerView, err := f.svc.Get(ctx, escrow.Actor{ID: svcBuyer}, tx.TransactionID)
	if err != nil {
		t.Fatalf("buyer get: %v", err)
	}
	for _, m := range buyerView.Messages {
		if m.Internal {
			t.Error("internal note leaked to the buyer")
		}
	}

	adminView, err := f.svc.Get(ctx, admin, tx.TransactionID)
	if err != nil {
		t.Fatalf("admin get: %v", err)
	}
	found := false
	for _, m := range adminView.Messages {
		if m.Internal {
			found = true
		}
	}
	if !found {
		t.Error("admin view must include internal notes")
	}

	if _, err := f.svc.Get(ctx, escrow.Actor{ID: svcStranger}, tx.TransactionID); !errors.Is(err, escrow.ErrForbidden) {
		t.Errorf("stranger get = %v, want ErrForbidden", err)
	}
}

func TestSweepDueExpiresStaleTransactions(t *testing.T) {
	f := newFixture()
	// Created long enough ago that the agreement window has passed.
	f.svc.now = func() time.Time { return svcNow.AddDate(0, 0, -(escrow.ExpiryDays + 1)) }
	tx := f.create(t)
	f.svc.now = func() time.Time { return svcNow }

	swept, err := f.svc.SweepDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	got, _ := f.store.Get(context.Background(), tx.TransactionID)
	if got.Status != escrow.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	if !f.notifier.has("expired", svcBuyer) || !f.notifier.has("expired", svcSeller) {
		t.Error("both parties must be notified of expiry")
	}

	// Idempotent: a second sweep finds nothing.
	swept, err = f.svc.SweepDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestSweepDueCompletesElapsedInspection(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	f.openInspection(t, tx.TransactionID)
	ctx := context.Background()

	// Seller already said yes; only the buyer's silence remains.
	if _, err := f.svc.Approve(ctx, escrow.Actor{ID: svcSeller}, tx.TransactionID); err != nil {
		t.Fatalf("seller approve: %v", err)
	}

	f.svc.now = func() time.Time {
		return svcNow.AddDate(0, 0, escrow.DefaultInspectionDays+1)
	}
	swept, err := f.svc.SweepDue(ctx, 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	got, _ := f.store.Get(ctx, tx.TransactionID)
	if got.Status != escrow.StatusTransactionCompleted {
		t.Errorf("status = %s, want transaction_completed after auto-approval", got.Status)
	}
	if len(f.gateway.payouts) != 1 {
		t.Errorf("payouts = %d, want 1", len(f.gateway.payouts))
	}
}

func TestCancelBeforeCustody(t *testing.T) {
	f := newFixture()
	tx := f.create(t)
	ctx := context.Background()

	got, err := f.svc.Cancel(ctx, escrow.Actor{ID: svcSeller}, tx.TransactionID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != escrow.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if !f.notifier.has("cancelled", svcBuyer) {
		t.Error("buyer was not notified of the cancellation")
	}
}

func TestStatsRequiresAdmin(t *testing.T) {
	f := newFixture()
	f.create(t)
	ctx := context.Background()

	if _, err := f.svc.Stats(ctx, escrow.Actor{ID: svcBuyer}, nil, nil); !errors.Is(err, escrow.ErrForbidden) {
		t.Fatalf("stats as buyer = %v, want ErrForbidden", err)
	}
	stats, err := f.svc.Stats(ctx, escrow.Actor{ID: svcAdminID, Admin: true}, nil, nil)
	if err != nil {
		t.Fatalf("stats as admin: %v", err)
	}
	if stats.TotalTransactions != 1 {
		t.Errorf("total = %d, want 1", stats.TotalTransactions)
	}
}
