package repository

import (
	"time"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

// PaymentRepository defines payment persistence. Status changes go through
// TransitionStatus/AddRefund so two concurrent workers can never both
// observe "not yet captured" and double-apply a transition.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByProviderRef(provider, providerRef string) (*models.Payment, error)
	Update(payment *models.Payment) error
	// TransitionStatus performs a compare-and-swap on the status column:
	// the update applies only while the row is still in one of the from
	// states. Returns false when the guard did not match (already
	// transitioned), which callers treat as a clean no-op.
	TransitionStatus(id uint, from []models.PaymentStatus, to models.PaymentStatus, updates map[string]interface{}) (bool, error)
	// AddRefund atomically adds to refunded_amount while enforcing
	// captured status and the refunded <= captured invariant in SQL.
	AddRefund(id uint, amount int64) (bool, error)
	List(offset, limit int) ([]models.Payment, error)
	CountByStatus(status models.PaymentStatus) (int64, error)
}

// WebhookRepository defines persistence for ingestion records.
type WebhookRepository interface {
	Create(webhook *models.PaymentWebhook) error
	GetByID(id uint) (*models.PaymentWebhook, error)
	GetByTrackingID(trackingID string) (*models.PaymentWebhook, error)
	MarkProcessed(id uint, eventKey string) error
	MarkFailed(id uint, processingError string) error
	// HasProcessedEventKey answers the logical-event dedup question:
	// has any record of this provider with this key already been
	// processed? Physical duplicates each get their own row.
	HasProcessedEventKey(provider, eventKey string) (bool, error)
	ListByStatus(status models.WebhookStatus, offset, limit int) ([]models.PaymentWebhook, error)
	CountByStatus(status models.WebhookStatus) (int64, error)
}

// VerificationRepository defines persistence for identity verifications.
type VerificationRepository interface {
	Create(verification *models.Verification) error
	GetByApplicantID(applicantID string) (*models.Verification, error)
	GetByUserID(userID uint) (*models.Verification, error)
	// Approve applies the guarded pending/renewal_required -> approved
	// transition. Returns false when the guard did not match.
	Approve(id uint, verifiedAt, expiresAt, renewalRequiredAt time.Time) (bool, error)
	// Reject applies the guarded pending -> rejected transition and keeps
	// the raw review payload for audit.
	Reject(id uint, reason, reviewPayloadJSON string) (bool, error)
	// SweepTimeouts degrades approved rows whose renewal or expiry
	// timestamps have passed. Returns the number of updated rows.
	SweepTimeouts(now time.Time) (int64, error)
	Update(verification *models.Verification) error
}

// SubscriptionRepository defines persistence for provider subscriptions.
type SubscriptionRepository interface {
	UpsertByProviderRef(sub *models.Subscription) error
	GetByProviderRef(provider, providerRef string) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
}

// PayableRepository resolves polymorphic payable references and applies
// the activation side effect exactly once per payable.
type PayableRepository interface {
	Resolve(kind string, id uint) (models.Activatable, error)
	// Activate flips the payable to active, guarded by its current flag.
	// Returns false when it was already active (duplicate capture paths).
	Activate(kind string, id uint) (bool, error)
}

// Repositories bundles all repository instances.
type Repositories struct {
	Payment      PaymentRepository
	Webhook      WebhookRepository
	Verification VerificationRepository
	Subscription SubscriptionRepository
	Payable      PayableRepository
}
