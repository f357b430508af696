package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

// IntentStatus is the provider-agnostic state of a payment intent.
type IntentStatus string

const (
	IntentStatusRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentStatusRequiresCapture      IntentStatus = "requires_capture"
	IntentStatusProcessing           IntentStatus = "processing"
	IntentStatusSucceeded            IntentStatus = "succeeded"
	IntentStatusCanceled             IntentStatus = "canceled"
	IntentStatusFailed               IntentStatus = "failed"
)

// CreateIntentRequest is the provider-agnostic input for staging a payment.
type CreateIntentRequest struct {
	Amount         models.Money      `validate:"required"`
	PaymentMethod  string            `validate:"required"`
	Customer       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// ConfirmContext carries extra-authentication context (3-D Secure return).
type ConfirmContext struct {
	ReturnURL string
}

// CaptureRequest finalizes previously authorized funds. The caller must
// pass the same idempotency key for logically identical attempts; the
// at-most-once charge guarantee is delegated to the provider's
// idempotency-key semantics.
type CaptureRequest struct {
	ProviderRef    string       `validate:"required"`
	Amount         models.Money
	IdempotencyKey string       `validate:"required"`
}

// RefundRequest returns captured funds, partially or in full.
type RefundRequest struct {
	ProviderRef    string       `validate:"required"`
	Amount         models.Money
	Reason         string
	IdempotencyKey string
}

// CreateSubscriptionRequest opens a recurring subscription.
type CreateSubscriptionRequest struct {
	Customer       string `validate:"required"`
	PlanRef        string `validate:"required"`
	PaymentMethod  string
	IdempotencyKey string
}

// IntentResponse is the result envelope for intent operations. It is owned
// transiently by the call that produced it; persisted entities wrap it.
type IntentResponse struct {
	ProviderRef  string          `json:"provider_ref"`
	Status       IntentStatus    `json:"status"`
	Amount       models.Money    `json:"amount"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PaymentResponse is the result envelope for captures.
type PaymentResponse struct {
	ProviderRef string          `json:"provider_ref"`
	Status      IntentStatus    `json:"status"`
	Amount      models.Money    `json:"amount"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RefundResponse is the result envelope for refunds.
type RefundResponse struct {
	ProviderRef string          `json:"provider_ref"`
	RefundRef   string          `json:"refund_ref"`
	Amount      models.Money    `json:"amount"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SubscriptionResponse is the result envelope for subscription operations.
// Status is already mapped into the closed domain set (models constants).
type SubscriptionResponse struct {
	ProviderRef        string          `json:"provider_ref"`
	Status             string          `json:"status"`
	PlanRef            string          `json:"plan_ref"`
	CurrentPeriodStart *time.Time      `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time      `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool            `json:"cancel_at_period_end"`
	Raw                json.RawMessage `json:"raw,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// PaymentGateway is the provider-agnostic contract for one-off payments.
// All operations are side-effect-isolated to network I/O and take a
// context that bounds the call; a timeout surfaces as
// ErrGatewayUnavailable, never silently.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResponse, error)
	// ConfirmIntent is idempotent: confirming an already-confirmed
	// intent returns the current state without side effects.
	ConfirmIntent(ctx context.Context, providerRef string, confirm ConfirmContext) (*IntentResponse, error)
	// CancelIntent fails with ErrInvalidState if the intent is captured.
	CancelIntent(ctx context.Context, providerRef string) (*IntentResponse, error)
	CapturePayment(ctx context.Context, req CaptureRequest) (*PaymentResponse, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResponse, error)
}

// SubscriptionGateway is the provider-agnostic contract for recurring
// subscriptions.
type SubscriptionGateway interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error)
	// SwapSubscription changes the plan; proration follows provider
	// semantics.
	SwapSubscription(ctx context.Context, providerRef, newPlanRef string) (*SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, providerRef string, atPeriodEnd bool) (*SubscriptionResponse, error)
	// ResumeSubscription is only valid from a cancelled-but-not-yet-ended
	// state and fails with ErrInvalidState otherwise.
	ResumeSubscription(ctx context.Context, providerRef string) (*SubscriptionResponse, error)
}

var validate = validator.New()

// validateRequest maps struct validation failures onto ErrInvalidRequest.
func validateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
