package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"custodia/internal/escrow"
	"custodia/internal/models"
)

// EscrowStore persists escrow transaction aggregates. Every write is
// all-or-nothing: the aggregate is saved as one row, and updates are
// predicated on the version the aggregate was loaded with.
type EscrowStore struct {
	db *gorm.DB
}

func NewEscrowStore(db *gorm.DB) *EscrowStore {
	return &EscrowStore{db: db}
}

// ListFilters narrows a party's transaction listing.
type ListFilters struct {
	Status   escrow.Status
	Category escrow.Category
	Page     int
	PageSize int
}

// Stats mirrors the overview aggregates the admin dashboard renders.
type Stats struct {
	TotalTransactions int64            `json:"total_transactions"`
	TotalValue        float64          `json:"total_value"`
	TotalFees         float64          `json:"total_fees"`
	StatusCounts      map[string]int64 `json:"status_counts"`
}

// Create inserts a freshly constructed aggregate.
func (s *EscrowStore) Create(ctx context.Context, t *escrow.Transaction) error {
	rec, err := toRecord(t)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Omit("Buyer", "Seller").Create(rec).Error; err != nil {
		return fmt.Errorf("store: create escrow %s: %w", t.TransactionID, err)
	}
	return nil
}

// Get loads the aggregate for a transaction id.
func (s *EscrowStore) Get(ctx context.Context, transactionID string) (*escrow.Transaction, error) {
	var rec models.EscrowRecord
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("store: get escrow %s: %w", transactionID, err)
	}
	return toDomain(&rec)
}

// Save writes the aggregate back with an optimistic version check. The UPDATE
// matches both id and the version the caller loaded; zero rows affected means
// another writer got there first (or the row vanished) and the caller's
// change is rejected with ConcurrencyConflict, never partially applied.
func (s *EscrowStore) Save(ctx context.Context, t *escrow.Transaction) error {
	rec, err := toRecord(t)
	if err != nil {
		return err
	}
	loadedVersion := t.Version
	res := s.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("transaction_id = ? AND version = ?", t.TransactionID, loadedVersion).
		Updates(map[string]any{
			"status":                rec.Status,
			"prior_status":          rec.PriorStatus,
			"agreement_date":        rec.AgreementDate,
			"payment_date":          rec.PaymentDate,
			"shipping_date":         rec.ShippingDate,
			"delivery_date":         rec.DeliveryDate,
			"inspection_start_date": rec.InspectionStartDate,
			"inspection_end_date":   rec.InspectionEndDate,
			"completion_date":       rec.CompletionDate,
			"buyer_approved_at":     rec.BuyerApprovedAt,
			"seller_approved_at":    rec.SellerApprovedAt,
			"item_json":             rec.ItemJSON,
			"terms_json":            rec.TermsJSON,
			"payment_json":          rec.PaymentJSON,
			"evidence_json":         rec.EvidenceJSON,
			"messages_json":         rec.MessagesJSON,
			"dispute_json":          rec.DisputeJSON,
			"version":               loadedVersion + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("store: save escrow %s: %w", t.TransactionID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.EscrowRecord{}).
			Where("transaction_id = ?", t.TransactionID).Count(&count).Error; err != nil {
			return fmt.Errorf("store: save escrow %s: %w", t.TransactionID, err)
		}
		if count == 0 {
			return escrow.ErrNotFound
		}
		return escrow.ErrConcurrencyConflict
	}
	t.Version = loadedVersion + 1
	return nil
}

// ListByParty returns the transactions a user participates in, newest first.
func (s *EscrowStore) ListByParty(ctx context.Context, userID uint, f ListFilters) ([]*escrow.Transaction, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}

	q := s.db.WithContext(ctx).Model(&models.EscrowRecord{}).
		Where("buyer_id = ? OR seller_id = ? OR supervisor_id = ?", userID, userID, userID)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Category != "" {
		q = q.Where("category = ?", string(f.Category))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count escrows: %w", err)
	}

	var recs []models.EscrowRecord
	err := q.Order("created_at DESC").
		Limit(f.PageSize).
		Offset((f.Page - 1) * f.PageSize).
		Find(&recs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("store: list escrows: %w", err)
	}

	out := make([]*escrow.Transaction, 0, len(recs))
	for i := range recs {
		t, err := toDomain(&recs[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, nil
}

// ListDue returns transactions the housekeeping sweep should look at: open
// ones past their expiry date, plus inspection windows that elapsed without
// buyer action. Disputed and terminal transactions are excluded.
func (s *EscrowStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*escrow.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	// funds_released is excluded too: the money already left custody, there
	// is nothing left to time out.
	terminal := []string{
		string(escrow.StatusTransactionCompleted),
		string(escrow.StatusCancelled),
		string(escrow.StatusExpired),
		string(escrow.StatusDisputed),
		string(escrow.StatusFundsReleased),
	}
	var recs []models.EscrowRecord
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", terminal).
		Where(
			s.db.Where("expiry_date < ?", now).
				Or("inspection_end_date IS NOT NULL AND inspection_end_date < ? AND status IN ?",
					now, []string{string(escrow.StatusInspectionPeriod), string(escrow.StatusSellerApproved)}),
		).
		Order("expiry_date ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list due escrows: %w", err)
	}

	out := make([]*escrow.Transaction, 0, len(recs))
	for i := range recs {
		t, err := toDomain(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetStats aggregates volume and fee totals, optionally bounded by a creation
// date range.
func (s *EscrowStore) GetStats(ctx context.Context, from, to *time.Time) (Stats, error) {
	q := s.db.WithContext(ctx).Model(&models.EscrowRecord{})
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}

	var totals struct {
		Count int64
		Value float64
		Fees  float64
	}
	err := q.Select("COUNT(*) AS count, COALESCE(SUM(price),0) AS value, COALESCE(SUM(escrow_fee),0) AS fees").
		Scan(&totals).Error
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats totals: %w", err)
	}

	type statusRow struct {
		Status string
		N      int64
	}
	var rows []statusRow
	cq := s.db.WithContext(ctx).Model(&models.EscrowRecord{})
	if from != nil {
		cq = cq.Where("created_at >= ?", *from)
	}
	if to != nil {
		cq = cq.Where("created_at <= ?", *to)
	}
	if err := cq.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("store: stats by status: %w", err)
	}

	stats := Stats{
		TotalTransactions: totals.Count,
		TotalValue:        totals.Value,
		TotalFees:         totals.Fees,
		StatusCounts:      make(map[string]int64, len(rows)),
	}
	for _, r := range rows {
		stats.StatusCounts[r.Status] = r.N
	}
	return stats, nil
}

func toRecord(t *escrow.Transaction) (*models.EscrowRecord, error) {
	itemJSON, err := json.Marshal(t.Item)
	if err != nil {
		return nil, fmt.Errorf("store: marshal item: %w", err)
	}
	termsJSON, err := json.Marshal(t.Terms)
	if err != nil {
		return nil, fmt.Errorf("store: marshal terms: %w", err)
	}
	paymentJSON, err := json.Marshal(t.Payment)
	if err != nil {
		return nil, fmt.Errorf("store: marshal payment: %w", err)
	}
	evidenceJSON, err := json.Marshal(t.Evidence)
	if err != nil {
		return nil, fmt.Errorf("store: marshal evidence: %w", err)
	}
	messagesJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return nil, fmt.Errorf("store: marshal messages: %w", err)
	}
	disputeJSON := "null"
	if t.Dispute != nil {
		b, err := json.Marshal(t.Dispute)
		if err != nil {
			return nil, fmt.Errorf("store: marshal dispute: %w", err)
		}
		disputeJSON = string(b)
	}

	return &models.EscrowRecord{
		TransactionID:       t.TransactionID,
		BuyerID:             t.BuyerID,
		SellerID:            t.SellerID,
		SupervisorID:        t.SupervisorID,
		Status:              string(t.Status),
		PriorStatus:         string(t.PriorStatus),
		Category:            string(t.Item.Category),
		Currency:            string(t.Terms.Currency),
		Price:               t.Terms.Price,
		EscrowFee:           t.Terms.EscrowFee,
		TotalAmount:         t.Terms.TotalAmount,
		CreatedAt:           t.CreatedAt,
		AgreementDate:       t.AgreementDate,
		PaymentDate:         t.PaymentDate,
		ShippingDate:        t.ShippingDate,
		DeliveryDate:        t.DeliveryDate,
		InspectionStartDate: t.InspectionStartDate,
		InspectionEndDate:   t.InspectionEndDate,
		CompletionDate:      t.CompletionDate,
		ExpiryDate:          t.ExpiryDate,
		BuyerApprovedAt:     t.BuyerApprovedAt,
		SellerApprovedAt:    t.SellerApprovedAt,
		ItemJSON:            string(itemJSON),
		TermsJSON:           string(termsJSON),
		PaymentJSON:         string(paymentJSON),
		EvidenceJSON:        string(evidenceJSON),
		MessagesJSON:        string(messagesJSON),
		DisputeJSON:         disputeJSON,
		Version:             t.Version,
	}, nil
}

func toDomain(rec *models.EscrowRecord) (*escrow.Transaction, error) {
	t := &escrow.Transaction{
		TransactionID:       rec.TransactionID,
		BuyerID:             rec.BuyerID,
		SellerID:            rec.SellerID,
		SupervisorID:        rec.SupervisorID,
		Status:              escrow.Status(rec.Status),
		PriorStatus:         escrow.Status(rec.PriorStatus),
		CreatedAt:           rec.CreatedAt,
		AgreementDate:       rec.AgreementDate,
		PaymentDate:         rec.PaymentDate,
		ShippingDate:        rec.ShippingDate,
		DeliveryDate:        rec.DeliveryDate,
		InspectionStartDate: rec.InspectionStartDate,
		InspectionEndDate:   rec.InspectionEndDate,
		CompletionDate:      rec.CompletionDate,
		ExpiryDate:          rec.ExpiryDate,
		BuyerApprovedAt:     rec.BuyerApprovedAt,
		SellerApprovedAt:    rec.SellerApprovedAt,
		Version:             rec.Version,
	}
	if err := json.Unmarshal([]byte(rec.ItemJSON), &t.Item); err != nil {
		return nil, fmt.Errorf("store: unmarshal item for %s: %w", rec.TransactionID, err)
	}
	if err := json.Unmarshal([]byte(rec.TermsJSON), &t.Terms); err != nil {
		return nil, fmt.Errorf("store: unmarshal terms for %s: %w", rec.TransactionID, err)
	}
	if rec.PaymentJSON != "" {
		if err := json.Unmarshal([]byte(rec.PaymentJSON), &t.Payment); err != nil {
			return nil, fmt.Errorf("store: unmarshal payment for %s: %w", rec.TransactionID, err)
		}
	}
	if rec.EvidenceJSON != "" {
		if err := json.Unmarshal([]byte(rec.EvidenceJSON), &t.Evidence); err != nil {
			return nil, fmt.Errorf("store: unmarshal evidence for %s: %w", rec.TransactionID, err)
		}
	}
	if rec.MessagesJSON != "" {
		if err := json.Unmarshal([]byte(rec.MessagesJSON), &t.Messages); err != nil {
			return nil, fmt.Errorf("store: unmarshal messages for %s: %w", rec.TransactionID, err)
		}
	}
	if rec.DisputeJSON != "" && rec.DisputeJSON != "null" {
		t.Dispute = &escrow.Dispute{}
		if err := json.Unmarshal([]byte(rec.DisputeJSON), t.Dispute); err != nil {
			return nil, fmt.Errorf("store: unmarshal dispute for %s: %w", rec.TransactionID, err)
		}
	}
	return t, nil
}
