package models

import "time"

const (
	SubscriptionIntervalMonth   = "month"
	SubscriptionIntervalYear    = "year"
	SubscriptionIntervalUnknown = "unknown"
)

// Closed set of domain subscription states. Provider status strings are
// mapped into this set at the driver boundary.
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusExpired    = "expired"
	SubscriptionStatusPaused     = "paused"
)

// Subscription mirrors a provider subscription and drives membership
// entitlements. One row per provider subscription id, upserted on every
// provider sync or webhook.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	Provider           string     `gorm:"type:varchar(20);not null;index:ux_subscriptions_provider_ref,unique,priority:1" json:"provider"`
	ProviderRef        string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_ref,unique,priority:2" json:"provider_ref"`
	PlanRef            string     `gorm:"type:varchar(191);not null;default:'';index" json:"plan_ref"`
	BillingInterval    string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status             string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`
	RawPayloadJSON     string     `gorm:"type:longtext" json:"-"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the subscription currently grants access.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}
