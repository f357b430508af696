package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payment event types the pipeline reacts to. Everything else is
// acknowledged and recorded as processed without side effects.
const (
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
	EventChargeRefunded      = "charge.refunded"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"

	EventApplicantReviewed = "applicantReviewed"
)

// PaymentEvent is the decoded envelope of a payment provider callback.
// Only the fields the pipeline reads are typed; the full payload stays on
// the ingestion record.
type PaymentEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                 string `json:"id"`
			Object             string `json:"object"`
			Amount             int64  `json:"amount"`
			AmountReceived     int64  `json:"amount_received"`
			AmountRefunded     int64  `json:"amount_refunded"`
			Currency           string `json:"currency"`
			Status             string `json:"status"`
			Customer           string `json:"customer"`
			PaymentIntent      string `json:"payment_intent"`
			CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
			CurrentPeriodStart int64  `json:"current_period_start"`
			CurrentPeriodEnd   int64  `json:"current_period_end"`
			Plan               struct {
				ID       string `json:"id"`
				Interval string `json:"interval"`
			} `json:"plan"`
			LastPaymentError struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"last_payment_error"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParsePaymentEvent decodes a payment provider payload. A payload without
// an event type is malformed and fails processing.
func ParsePaymentEvent(payload []byte) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding payment event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("payment event has no type")
	}
	return &event, nil
}

// LogicalKey identifies the logical event across physical redeliveries.
// The provider's event id is authoritative; payloads without one fall
// back to type plus object id.
func (e *PaymentEvent) LogicalKey() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Type + ":" + e.Data.Object.ID
}

// ProviderRef resolves the payment intent reference the event belongs to.
// Charge-level events carry it on payment_intent, intent-level events on
// the object id itself.
func (e *PaymentEvent) ProviderRef() string {
	if e.Data.Object.PaymentIntent != "" {
		return e.Data.Object.PaymentIntent
	}
	return e.Data.Object.ID
}

// VerificationEvent is the decoded envelope of a verification provider
// callback (applicant review lifecycle).
type VerificationEvent struct {
	Type          string `json:"type"`
	ApplicantID   string `json:"applicantId"`
	CorrelationID string `json:"correlationId"`
	ReviewStatus  string `json:"reviewStatus"`
	CreatedAtMs   string `json:"createdAtMs"`
	ReviewResult  struct {
		ReviewAnswer      string   `json:"reviewAnswer"`
		RejectLabels      []string `json:"rejectLabels"`
		ModerationComment string   `json:"moderationComment"`
		ReviewRejectType  string   `json:"reviewRejectType"`
	} `json:"reviewResult"`
}

// ParseVerificationEvent decodes a verification provider payload.
func ParseVerificationEvent(payload []byte) (*VerificationEvent, error) {
	var event VerificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding verification event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("verification event has no type")
	}
	return &event, nil
}

// LogicalKey identifies the logical review event across redeliveries.
func (e *VerificationEvent) LogicalKey() string {
	if e.CorrelationID != "" {
		return e.CorrelationID
	}
	return e.Type + ":" + e.ApplicantID + ":" + e.CreatedAtMs
}

// Approved reports whether the review outcome is a final approval.
func (e *VerificationEvent) Approved() bool {
	return strings.EqualFold(e.ReviewResult.ReviewAnswer, "GREEN")
}

// RejectionReason flattens the structured rejection into one stored line.
func (e *VerificationEvent) RejectionReason() string {
	parts := make([]string, 0, 2)
	if len(e.ReviewResult.RejectLabels) > 0 {
		parts = append(parts, strings.Join(e.ReviewResult.RejectLabels, ","))
	}
	if e.ReviewResult.ModerationComment != "" {
		parts = append(parts, e.ReviewResult.ModerationComment)
	}
	if len(parts) == 0 {
		return "review answer " + e.ReviewResult.ReviewAnswer
	}
	return strings.Join(parts, ": ")
}
