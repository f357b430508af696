package models

import "time"

// Activatable is the capability a purchased subject exposes to the payment
// pipeline. The webhook handlers depend only on this interface, never on
// the concrete payable type.
type Activatable interface {
	PayableKind() string
	PayableID() uint
	IsActive() bool
}

// Ad is a classified listing unlocked by a one-off payment.
type Ad struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Active      bool       `gorm:"default:false;index" json:"active"`
	ActivatedAt *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Ad) PayableKind() string { return PayableTypeAd }
func (a *Ad) PayableID() uint     { return a.ID }
func (a *Ad) IsActive() bool      { return a.Active }

// WishlistItem is a wishlist entry fulfilled by a payment.
type WishlistItem struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Active      bool       `gorm:"default:false;index" json:"active"`
	ActivatedAt *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *WishlistItem) PayableKind() string { return PayableTypeWishlistItem }
func (w *WishlistItem) PayableID() uint     { return w.ID }
func (w *WishlistItem) IsActive() bool      { return w.Active }

// Membership is a recurring entitlement activated by its first captured
// payment and kept in sync by subscription webhooks.
type Membership struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Plan        string     `gorm:"type:varchar(50);not null;default:'basic'" json:"plan"`
	Active      bool       `gorm:"default:false;index" json:"active"`
	ActivatedAt *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	ExpiresAt   *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Membership) PayableKind() string { return PayableTypeMembership }
func (m *Membership) PayableID() uint     { return m.ID }
func (m *Membership) IsActive() bool      { return m.Active }
