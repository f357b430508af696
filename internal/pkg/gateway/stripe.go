package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe REST API. It implements both the
// payment and the subscription gateway contracts.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

var (
	_ PaymentGateway      = (*StripeClient)(nil)
	_ SubscriptionGateway = (*StripeClient)(nil)
)

// NewStripeClientFromEnv builds a Stripe client from environment config.
func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// stripeObject is the subset of Stripe response fields we read. Full
// payloads are carried along as Raw for auditing.
type stripeObject struct {
	ID                 string `json:"id"`
	Object             string `json:"object"`
	Status             string `json:"status"`
	Amount             int64  `json:"amount"`
	AmountReceived     int64  `json:"amount_received"`
	Currency           string `json:"currency"`
	ClientSecret       string `json:"client_secret"`
	Created            int64  `json:"created"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Plan               struct {
		ID string `json:"id"`
	} `json:"plan"`
	PaymentIntent string `json:"payment_intent"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount.Amount, 10))
	form.Set("currency", strings.ToLower(req.Amount.Currency))
	form.Set("payment_method", req.PaymentMethod)
	form.Set("capture_method", "manual")
	if req.Customer != "" {
		form.Set("customer", req.Customer)
	}
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	raw, obj, err := c.do(ctx, http.MethodPost, "/payment_intents", form, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return intentResponseFrom(raw, obj), nil
}

func (c *StripeClient) ConfirmIntent(ctx context.Context, providerRef string, confirm ConfirmContext) (*IntentResponse, error) {
	if strings.TrimSpace(providerRef) == "" {
		return nil, fmt.Errorf("%w: provider ref is required", ErrInvalidRequest)
	}

	// Look at the current state first so confirming an already-confirmed
	// intent stays a read-only no-op.
	raw, obj, err := c.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(providerRef), nil, "")
	if err != nil {
		return nil, err
	}
	if mapStripeIntentStatus(obj.Status) != IntentStatusRequiresConfirmation {
		return intentResponseFrom(raw, obj), nil
	}

	form := url.Values{}
	if confirm.ReturnURL != "" {
		form.Set("return_url", confirm.ReturnURL)
	}
	raw, obj, err = c.do(ctx, http.MethodPost, "/payment_intents/"+url.PathEscape(providerRef)+"/confirm", form, "")
	if err != nil {
		return nil, err
	}
	return intentResponseFrom(raw, obj), nil
}

func (c *StripeClient) CancelIntent(ctx context.Context, providerRef string) (*IntentResponse, error) {
	if strings.TrimSpace(providerRef) == "" {
		return nil, fmt.Errorf("%w: provider ref is required", ErrInvalidRequest)
	}
	raw, obj, err := c.do(ctx, http.MethodPost, "/payment_intents/"+url.PathEscape(providerRef)+"/cancel", url.Values{}, "")
	if err != nil {
		return nil, err
	}
	return intentResponseFrom(raw, obj), nil
}

func (c *StripeClient) CapturePayment(ctx context.Context, req CaptureRequest) (*PaymentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	form := url.Values{}
	if req.Amount.IsPositive() {
		form.Set("amount_to_capture", strconv.FormatInt(req.Amount.Amount, 10))
	}
	raw, obj, err := c.do(ctx, http.MethodPost, "/payment_intents/"+url.PathEscape(req.ProviderRef)+"/capture", form, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	amount := models.Money{Amount: obj.AmountReceived, Currency: strings.ToUpper(obj.Currency)}
	if amount.Amount == 0 {
		amount.Amount = obj.Amount
	}
	return &PaymentResponse{
		ProviderRef: obj.ID,
		Status:      mapStripeIntentStatus(obj.Status),
		Amount:      amount,
		Raw:         raw,
		CreatedAt:   time.Unix(obj.Created, 0),
	}, nil
}

func (c *StripeClient) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("payment_intent", req.ProviderRef)
	if req.Amount.IsPositive() {
		form.Set("amount", strconv.FormatInt(req.Amount.Amount, 10))
	}
	if req.Reason != "" {
		form.Set("reason", req.Reason)
	}
	raw, obj, err := c.do(ctx, http.MethodPost, "/refunds", form, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &RefundResponse{
		ProviderRef: req.ProviderRef,
		RefundRef:   obj.ID,
		Amount:      models.Money{Amount: obj.Amount, Currency: strings.ToUpper(obj.Currency)},
		Raw:         raw,
		CreatedAt:   time.Unix(obj.Created, 0),
	}, nil
}

func (c *StripeClient) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("customer", req.Customer)
	form.Set("items[0][price]", req.PlanRef)
	if req.PaymentMethod != "" {
		form.Set("default_payment_method", req.PaymentMethod)
	}
	raw, obj, err := c.do(ctx, http.MethodPost, "/subscriptions", form, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return subscriptionResponseFrom(raw, obj), nil
}

func (c *StripeClient) SwapSubscription(ctx context.Context, providerRef, newPlanRef string) (*SubscriptionResponse, error) {
	if strings.TrimSpace(providerRef) == "" || strings.TrimSpace(newPlanRef) == "" {
		return nil, fmt.Errorf("%w: provider ref and plan ref are required", ErrInvalidRequest)
	}
	form := url.Values{}
	form.Set("items[0][price]", newPlanRef)
	form.Set("proration_behavior", "create_prorations")
	raw, obj, err := c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(providerRef), form, "")
	if err != nil {
		return nil, err
	}
	return subscriptionResponseFrom(raw, obj), nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, providerRef string, atPeriodEnd bool) (*SubscriptionResponse, error) {
	if strings.TrimSpace(providerRef) == "" {
		return nil, fmt.Errorf("%w: provider ref is required", ErrInvalidRequest)
	}

	if atPeriodEnd {
		form := url.Values{}
		form.Set("cancel_at_period_end", "true")
		raw, obj, err := c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(providerRef), form, "")
		if err != nil {
			return nil, err
		}
		return subscriptionResponseFrom(raw, obj), nil
	}

	raw, obj, err := c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(providerRef), nil, "")
	if err != nil {
		return nil, err
	}
	return subscriptionResponseFrom(raw, obj), nil
}

func (c *StripeClient) ResumeSubscription(ctx context.Context, providerRef string) (*SubscriptionResponse, error) {
	if strings.TrimSpace(providerRef) == "" {
		return nil, fmt.Errorf("%w: provider ref is required", ErrInvalidRequest)
	}

	raw, obj, err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(providerRef), nil, "")
	if err != nil {
		return nil, err
	}
	if obj.Status == "canceled" || !obj.CancelAtPeriodEnd {
		return nil, fmt.Errorf("%w: subscription %q is not pending cancellation", ErrInvalidState, providerRef)
	}

	form := url.Values{}
	form.Set("cancel_at_period_end", "false")
	raw, obj, err = c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(providerRef), form, "")
	if err != nil {
		return nil, err
	}
	return subscriptionResponseFrom(raw, obj), nil
}

// do executes one API call and classifies transport and provider errors
// into the gateway taxonomy.
func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (json.RawMessage, *stripeObject, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is not configured", ErrInvalidRequest)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are retryable; a call that may
		// have reached the provider is reconciled by a later idempotent
		// confirm/query, never assumed failed.
		return nil, nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, nil, fmt.Errorf("%w: stripe responded %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr stripeError
		_ = json.Unmarshal(raw, &apiErr)
		return nil, nil, classifyStripeError(resp.StatusCode, apiErr)
	}

	var obj stripeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding response: %v", ErrGatewayUnavailable, err)
	}
	return raw, &obj, nil
}

func classifyStripeError(status int, apiErr stripeError) error {
	code := apiErr.Error.Code
	msg := apiErr.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("stripe responded %d", status)
	}
	switch code {
	case "payment_intent_unexpected_state", "charge_already_captured", "charge_already_refunded", "charge_disputed":
		return fmt.Errorf("%w: %s", ErrInvalidState, msg)
	}
	if apiErr.Error.Type == "invalid_request_error" && strings.Contains(msg, "status") {
		return fmt.Errorf("%w: %s", ErrInvalidState, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func mapStripeIntentStatus(status string) IntentStatus {
	switch status {
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return IntentStatusRequiresConfirmation
	case "requires_capture":
		return IntentStatusRequiresCapture
	case "processing":
		return IntentStatusProcessing
	case "succeeded":
		return IntentStatusSucceeded
	case "canceled":
		return IntentStatusCanceled
	default:
		return IntentStatusFailed
	}
}

// MapStripeSubscriptionStatus maps Stripe's subscription status strings
// onto the closed domain set.
func MapStripeSubscriptionStatus(status string) string {
	switch status {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled":
		return models.SubscriptionStatusCanceled
	case "incomplete", "incomplete_expired":
		return models.SubscriptionStatusIncomplete
	case "paused":
		return models.SubscriptionStatusPaused
	default:
		return models.SubscriptionStatusIncomplete
	}
}

func intentResponseFrom(raw json.RawMessage, obj *stripeObject) *IntentResponse {
	return &IntentResponse{
		ProviderRef:  obj.ID,
		Status:       mapStripeIntentStatus(obj.Status),
		Amount:       models.Money{Amount: obj.Amount, Currency: strings.ToUpper(obj.Currency)},
		ClientSecret: obj.ClientSecret,
		Raw:          raw,
		CreatedAt:    time.Unix(obj.Created, 0),
	}
}

func subscriptionResponseFrom(raw json.RawMessage, obj *stripeObject) *SubscriptionResponse {
	resp := &SubscriptionResponse{
		ProviderRef:       obj.ID,
		Status:            MapStripeSubscriptionStatus(obj.Status),
		PlanRef:           obj.Plan.ID,
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
		Raw:               raw,
		CreatedAt:         time.Unix(obj.Created, 0),
	}
	if obj.CurrentPeriodStart > 0 {
		t := time.Unix(obj.CurrentPeriodStart, 0)
		resp.CurrentPeriodStart = &t
	}
	if obj.CurrentPeriodEnd > 0 {
		t := time.Unix(obj.CurrentPeriodEnd, 0)
		resp.CurrentPeriodEnd = &t
	}
	return resp
}
