package models

import "time"

// WebhookStatus is the processing state of an ingestion record.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// Webhook kinds route a record to the right processing pipeline.
const (
	WebhookKindPayment      = "payment"
	WebhookKindVerification = "verification"
)

// PaymentWebhook stores one row per physically received provider callback.
// Duplicate deliveries of the same logical event create separate rows;
// logical deduplication happens in the processing pipeline via EventKey.
// The row is written before any processing so a crash after ingestion
// never loses an event. Only the processing worker mutates it afterwards.
type PaymentWebhook struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	TrackingID      string        `gorm:"type:varchar(36);not null;index:ux_payment_webhooks_tracking,unique" json:"tracking_id"`
	Kind            string        `gorm:"type:varchar(16);not null;index" json:"kind"`
	Provider        string        `gorm:"type:varchar(20);not null;index:idx_payment_webhooks_provider_key,priority:1" json:"provider"`
	Event           string        `gorm:"type:varchar(100);not null;default:'';index" json:"event"`
	Signature       string        `gorm:"type:varchar(512);not null;default:''" json:"-"`
	SignatureValid  bool          `gorm:"default:false;index" json:"signature_valid"`
	HeadersJSON     string        `gorm:"type:longtext" json:"-"`
	Payload         string        `gorm:"type:longtext;not null" json:"-"`
	EventKey        string        `gorm:"type:varchar(191);not null;default:'';index:idx_payment_webhooks_provider_key,priority:2" json:"event_key"`
	Status          WebhookStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProcessedAt     *time.Time    `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string        `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
