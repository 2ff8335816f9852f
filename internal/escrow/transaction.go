package escrow

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type Category string

const (
	CategoryVehicle     Category = "vehicle"
	CategoryMachinery   Category = "machinery"
	CategoryElectronics Category = "electronics"
	CategoryRealEstate  Category = "real_estate"
	CategoryJewelry     Category = "jewelry"
	CategoryArt         Category = "art"
	CategoryOther       Category = "other"
)

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

type Currency string

const (
	CurrencyMXN Currency = "MXN"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryShipping DeliveryMethod = "shipping"
	DeliveryMeetup   DeliveryMethod = "meetup"
	DeliveryOther    DeliveryMethod = "other"
)

type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentWireTransfer PaymentMethod = "wire_transfer"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type DocumentType string

const (
	DocumentInvoice     DocumentType = "invoice"
	DocumentReceipt     DocumentType = "receipt"
	DocumentWarranty    DocumentType = "warranty"
	DocumentCertificate DocumentType = "certificate"
	DocumentOther       DocumentType = "other"
)

const (
	// MinPrice is the floor for both the price and the estimated item value.
	MinPrice = 100.0
	// DefaultInspectionDays applies when the buyer does not pick a window.
	DefaultInspectionDays = 3
	// MaxInspectionDays caps the inspection window.
	MaxInspectionDays = 30
	// ExpiryDays is how long an un-settled transaction stays actionable.
	ExpiryDays = 30
	// MaxMessageLen is the hard cap on a single message body.
	MaxMessageLen = 1000
	// MaxTitleLen and MaxDescriptionLen cap the item fields.
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
)

// ItemImage is a stored reference to an uploaded item photo.
type ItemImage struct {
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Item describes what is being bought and sold.
type Item struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Category       Category    `json:"category"`
	Condition      Condition   `json:"condition"`
	EstimatedValue float64     `json:"estimated_value"`
	Images         []ItemImage `json:"images,omitempty"`
}

// DeliveryAddress is the agreed hand-off location for shipped items.
type DeliveryAddress struct {
	Street       string `json:"street,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
	Country      string `json:"country,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Terms captures the agreed commercial terms. EscrowFee and TotalAmount are
// derived from Price at creation and never recomputed after payment.
type Terms struct {
	Price           float64         `json:"price"`
	Currency        Currency        `json:"currency"`
	EscrowFee       float64         `json:"escrow_fee"`
	TotalAmount     float64         `json:"total_amount"`
	DeliveryMethod  DeliveryMethod  `json:"delivery_method"`
	DeliveryAddress DeliveryAddress `json:"delivery_address"`
	InspectionDays  int             `json:"inspection_days"`
}

// Payment is the sub-record tracking the custody charge.
type Payment struct {
	Method      PaymentMethod `json:"method,omitempty"`
	Reference   string        `json:"reference,omitempty"`
	Amount      float64       `json:"amount,omitempty"`
	Status      PaymentStatus `json:"status"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	RefundedAt  *time.Time    `json:"refunded_at,omitempty"`
}

// ShippingEvidence is recorded when the seller marks the item shipped.
type ShippingEvidence struct {
	TrackingNumber       string     `json:"tracking_number,omitempty"`
	Carrier              string     `json:"carrier,omitempty"`
	ShippedAt            *time.Time `json:"shipped_at,omitempty"`
	DeliveryConfirmation string     `json:"delivery_confirmation,omitempty"`
	Photos               []string   `json:"photos,omitempty"`
}

// InspectionEvidence collects what both parties documented during inspection.
type InspectionEvidence struct {
	BuyerPhotos  []string `json:"buyer_photos,omitempty"`
	BuyerNotes   string   `json:"buyer_notes,omitempty"`
	SellerPhotos []string `json:"seller_photos,omitempty"`
	SellerNotes  string   `json:"seller_notes,omitempty"`
	Report       string   `json:"report,omitempty"`
}

// Document is an uploader-attributed attachment (invoice, receipt, ...).
type Document struct {
	ID         string       `json:"id"`
	Type       DocumentType `json:"type"`
	Filename   string       `json:"filename"`
	URL        string       `json:"url"`
	UploadedBy uint         `json:"uploaded_by"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Evidence groups every audit artifact attached to the transaction.
type Evidence struct {
	Shipping   ShippingEvidence   `json:"shipping"`
	Inspection InspectionEvidence `json:"inspection"`
	Documents  []Document         `json:"documents,omitempty"`
}

// Transaction is the escrow aggregate root. It carries no persistence or
// transport dependencies; every mutation goes through the transition
// operations, and a save only happens after an operation succeeds.
type Transaction struct {
	TransactionID string `json:"transaction_id"`

	BuyerID      uint `json:"buyer_id"`
	SellerID     uint `json:"seller_id"`
	SupervisorID uint `json:"supervisor_id,omitempty"`

	Item  Item  `json:"item"`
	Terms Terms `json:"terms"`

	Status Status `json:"status"`
	// PriorStatus remembers where the main machine was parked when a dispute
	// forced the transaction into disputed, so resolution can resume it.
	PriorStatus Status `json:"prior_status,omitempty"`

	CreatedAt           time.Time  `json:"created_at"`
	AgreementDate       *time.Time `json:"agreement_date,omitempty"`
	PaymentDate         *time.Time `json:"payment_date,omitempty"`
	ShippingDate        *time.Time `json:"shipping_date,omitempty"`
	DeliveryDate        *time.Time `json:"delivery_date,omitempty"`
	InspectionStartDate *time.Time `json:"inspection_start_date,omitempty"`
	InspectionEndDate   *time.Time `json:"inspection_end_date,omitempty"`
	CompletionDate      *time.Time `json:"completion_date,omitempty"`
	ExpiryDate          time.Time  `json:"expiry_date"`

	BuyerApprovedAt  *time.Time `json:"buyer_approved_at,omitempty"`
	SellerApprovedAt *time.Time `json:"seller_approved_at,omitempty"`

	Payment  Payment   `json:"payment"`
	Evidence Evidence  `json:"evidence"`
	Messages []Message `json:"messages,omitempty"`
	Dispute  *Dispute  `json:"dispute,omitempty"`

	// Version backs the optimistic concurrency check on save.
	Version int64 `json:"version"`
}

// NewTransactionParams are the buyer-supplied inputs to New.
type NewTransactionParams struct {
	BuyerID      uint
	SellerID     uint
	SupervisorID uint

	Item Item

	Price           float64
	Currency        Currency
	DeliveryMethod  DeliveryMethod
	DeliveryAddress DeliveryAddress
	InspectionDays  int
}

// New validates the parameters and builds a transaction in pending_agreement
// with the fee and total computed and the transaction id generated. Nothing
// is persisted; the caller owns the first save.
func New(p NewTransactionParams, now time.Time) (*Transaction, error) {
	if p.BuyerID == 0 {
		return nil, &ValidationError{Field: "buyer_id", Reason: "required"}
	}
	if p.SellerID == 0 {
		return nil, &ValidationError{Field: "seller_id", Reason: "required"}
	}
	if p.BuyerID == p.SellerID {
		return nil, &ValidationError{Field: "seller_id", Reason: "buyer and seller must be distinct"}
	}
	if err := validateItem(p.Item); err != nil {
		return nil, err
	}
	if p.Price < MinPrice {
		return nil, &ValidationError{Field: "price", Reason: "must be at least 100"}
	}
	currency := p.Currency
	if currency == "" {
		currency = CurrencyMXN
	}
	if !validCurrency(currency) {
		return nil, &ValidationError{Field: "currency", Reason: "must be MXN, USD or EUR"}
	}
	if !validDeliveryMethod(p.DeliveryMethod) {
		return nil, &ValidationError{Field: "delivery_method", Reason: "must be pickup, shipping, meetup or other"}
	}
	days := p.InspectionDays
	if days == 0 {
		days = DefaultInspectionDays
	}
	if days < 1 || days > MaxInspectionDays {
		return nil, &ValidationError{Field: "inspection_days", Reason: "must be between 1 and 30"}
	}

	fee, total := ComputeTerms(p.Price)

	t := &Transaction{
		TransactionID: NewTransactionID(now),
		BuyerID:       p.BuyerID,
		SellerID:      p.SellerID,
		SupervisorID:  p.SupervisorID,
		Item:          p.Item,
		Terms: Terms{
			Price:           p.Price,
			Currency:        currency,
			EscrowFee:       fee,
			TotalAmount:     total,
			DeliveryMethod:  p.DeliveryMethod,
			DeliveryAddress: p.DeliveryAddress,
			InspectionDays:  days,
		},
		Status:     StatusPendingAgreement,
		CreatedAt:  now,
		ExpiryDate: now.AddDate(0, 0, ExpiryDays),
		Payment:    Payment{Status: PaymentPending},
		Version:    1,
	}
	return t, nil
}

func validateItem(item Item) error {
	if item.Title == "" {
		return &ValidationError{Field: "item.title", Reason: "required"}
	}
	if utf8.RuneCountInString(item.Title) > MaxTitleLen {
		return &ValidationError{Field: "item.title", Reason: "must not exceed 200 characters"}
	}
	if item.Description == "" {
		return &ValidationError{Field: "item.description", Reason: "required"}
	}
	if utf8.RuneCountInString(item.Description) > MaxDescriptionLen {
		return &ValidationError{Field: "item.description", Reason: "must not exceed 2000 characters"}
	}
	if !validCategory(item.Category) {
		return &ValidationError{Field: "item.category", Reason: "unknown category"}
	}
	if !validCondition(item.Condition) {
		return &ValidationError{Field: "item.condition", Reason: "unknown condition"}
	}
	if item.EstimatedValue < MinPrice {
		return &ValidationError{Field: "item.estimated_value", Reason: "must be at least 100"}
	}
	return nil
}

func validCategory(c Category) bool {
	switch c {
	case CategoryVehicle, CategoryMachinery, CategoryElectronics,
		CategoryRealEstate, CategoryJewelry, CategoryArt, CategoryOther:
		return true
	}
	return false
}

func validCondition(c Condition) bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

func validCurrency(c Currency) bool {
	switch c {
	case CurrencyMXN, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

func validDeliveryMethod(m DeliveryMethod) bool {
	switch m {
	case DeliveryPickup, DeliveryShipping, DeliveryMeetup, DeliveryOther:
		return true
	}
	return false
}

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentBankTransfer, PaymentCreditCard, PaymentDebitCard, PaymentWireTransfer:
		return true
	}
	return false
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewTransactionID builds an identifier of the form ESC-<ts>-<rand>, where ts
// is the creation time in base-36 milliseconds and rand is a 5-character
// base-36 suffix, all uppercased.
func NewTransactionID(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := make([]byte, 5)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36Alphabet))))
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a time-derived character rather than panic.
			suffix[i] = base36Alphabet[now.UnixNano()%36]
			continue
		}
		suffix[i] = base36Alphabet[n.Int64()]
	}
	return strings.ToUpper("ESC-" + ts + "-" + string(suffix))
}
