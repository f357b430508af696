package models

import "time"

// VerificationStatus is the stored lifecycle state of an identity
// verification. RenewalRequired and Expired are additionally derived from
// timestamps at read time so stored state can never drift from the clock.
type VerificationStatus string

const (
	// Unverified is the derived state of a user with no verification row.
	VerificationStatusUnverified      VerificationStatus = "unverified"
	VerificationStatusPending         VerificationStatus = "pending"
	VerificationStatusApproved        VerificationStatus = "approved"
	VerificationStatusRejected        VerificationStatus = "rejected"
	VerificationStatusRenewalRequired VerificationStatus = "renewal_required"
	VerificationStatusExpired         VerificationStatus = "expired"
)

// Verification provider constants.
const (
	VerificationProviderSumsub = "sumsub"
)

// Verification mirrors the identity-verification state of a user at an
// external provider. ProviderApplicantID is unique per active verification.
// Approval requires VerifiedAt plus a future ExpiresAt; rejection keeps the
// structured reason and the raw provider review payload for audit.
type Verification struct {
	ID                  uint               `gorm:"primaryKey" json:"id"`
	UserID              uint               `gorm:"not null;index" json:"user_id"`
	Provider            string             `gorm:"type:varchar(20);not null;default:'sumsub'" json:"provider"`
	ProviderApplicantID string             `gorm:"type:varchar(191);not null;index:ux_verifications_applicant,unique" json:"provider_applicant_id"`
	Status              VerificationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	VerifiedAt          *time.Time         `gorm:"type:timestamp;default:null" json:"verified_at,omitempty"`
	ExpiresAt           *time.Time         `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	RenewalRequiredAt   *time.Time         `gorm:"type:timestamp;default:null" json:"renewal_required_at,omitempty"`
	RejectionReason     string             `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewPayloadJSON   string             `gorm:"type:longtext" json:"-"`
	MetadataJSON        string             `gorm:"type:longtext" json:"-"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether the verification has passed its expiry time.
// Pure function of ExpiresAt vs. now; no stored boolean.
func (v *Verification) IsExpired(now time.Time) bool {
	if v.ExpiresAt == nil {
		return false
	}
	return now.After(*v.ExpiresAt)
}

// IsInGracePeriod reports whether the verification is inside the renewal
// window of the given length leading up to expiry: still valid, but a
// renewal should be requested.
func (v *Verification) IsInGracePeriod(now time.Time, grace time.Duration) bool {
	if v.ExpiresAt == nil {
		return false
	}
	if v.IsExpired(now) {
		return false
	}
	return now.After(v.ExpiresAt.Add(-grace))
}

// EffectiveStatus derives the time-dependent status from the stored one.
// An approved verification degrades to renewal_required inside the grace
// window and to expired past ExpiresAt.
func (v *Verification) EffectiveStatus(now time.Time, grace time.Duration) VerificationStatus {
	if v.Status != VerificationStatusApproved && v.Status != VerificationStatusRenewalRequired {
		return v.Status
	}
	if v.IsExpired(now) {
		return VerificationStatusExpired
	}
	if v.IsInGracePeriod(now, grace) {
		return VerificationStatusRenewalRequired
	}
	return VerificationStatusApproved
}
