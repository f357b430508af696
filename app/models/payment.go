package models

import "time"

// PaymentStatus is the lifecycle state of a payment. Transitions are
// monotonic forward; refunded is only reachable from captured.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderFake   = "fake"
)

// Payable kinds a payment can reference. The pair (PayableType, PayableID)
// is a polymorphic reference to the purchased subject.
const (
	PayableTypeAd           = "ad"
	PayableTypeWishlistItem = "wishlist_item"
	PayableTypeMembership   = "membership"
)

// Payment records a single charge attempt against a payable. Rows are
// never deleted; a retried checkout creates a new row.
type Payment struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	PayableType    string        `gorm:"type:varchar(32);not null;index:idx_payments_payable,priority:1" json:"payable_type"`
	PayableID      uint          `gorm:"not null;index:idx_payments_payable,priority:2" json:"payable_id"`
	PayerID        uint          `gorm:"not null;index" json:"payer_id"`
	Provider       string        `gorm:"type:varchar(20);not null;index" json:"provider"`
	ProviderRef    string        `gorm:"type:varchar(191);not null;default:'';index" json:"provider_ref"`
	IdempotencyKey string        `gorm:"type:varchar(191);not null;default:''" json:"-"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Currency       string        `gorm:"type:varchar(3);not null" json:"currency"`
	RefundedAmount int64         `gorm:"not null;default:0" json:"refunded_amount"`
	Status         PaymentStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	FailureReason  string        `gorm:"type:text" json:"failure_reason,omitempty"`
	CapturedAt     *time.Time    `gorm:"type:timestamp;default:null" json:"captured_at,omitempty"`
	CreatedAt      time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// Money returns the charged amount as a value type.
func (p *Payment) Money() Money {
	return Money{Amount: p.Amount, Currency: p.Currency}
}

// CanCapture reports whether a capture transition is allowed from the
// current status. Direct capture from pending covers single-step flows.
func (p *Payment) CanCapture() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusAuthorized
}

// CanRefund reports whether the given additional refund amount is allowed.
// Refunds require a captured payment and may never exceed the captured
// amount cumulatively.
func (p *Payment) CanRefund(amount int64) bool {
	if p.Status != PaymentStatusCaptured && p.Status != PaymentStatusRefunded {
		return false
	}
	if amount <= 0 {
		return false
	}
	return p.RefundedAmount+amount <= p.Amount
}

// IsFullyRefunded reports whether the whole captured amount was given back.
func (p *Payment) IsFullyRefunded() bool {
	return p.RefundedAmount >= p.Amount && p.Amount > 0
}
