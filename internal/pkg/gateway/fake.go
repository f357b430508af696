package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

// Deterministic payment-method triggers for the fake driver.
const (
	FakeMethodDeclined = "pm_declined"
	FakeMethod3DS      = "pm_requires_3ds"
)

// FakeDriver is a deterministic in-memory gateway for tests and local
// development. Outcomes are driven by the payment method string, and
// idempotency keys replay the recorded first response, mirroring real
// provider semantics.
type FakeDriver struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*IntentResponse
	// capture/refund responses recorded per idempotency key
	capturesByKey map[string]*PaymentResponse
	refundedByRef map[string]int64
	subs          map[string]*SubscriptionResponse
}

// NewFakeDriver creates an empty fake gateway.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		intents:       make(map[string]*IntentResponse),
		capturesByKey: make(map[string]*PaymentResponse),
		refundedByRef: make(map[string]int64),
		subs:          make(map[string]*SubscriptionResponse),
	}
}

var (
	_ PaymentGateway      = (*FakeDriver)(nil)
	_ SubscriptionGateway = (*FakeDriver)(nil)
)

func (f *FakeDriver) nextRef(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_fake_%06d", prefix, f.seq)
}

func (f *FakeDriver) CreateIntent(_ context.Context, req CreateIntentRequest) (*IntentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	status := IntentStatusRequiresCapture
	switch req.PaymentMethod {
	case FakeMethodDeclined:
		status = IntentStatusFailed
	case FakeMethod3DS:
		status = IntentStatusRequiresConfirmation
	}

	resp := &IntentResponse{
		ProviderRef: f.nextRef("pi"),
		Status:      status,
		Amount:      req.Amount,
		Raw:         json.RawMessage(`{"driver":"fake"}`),
		CreatedAt:   time.Now(),
	}
	f.intents[resp.ProviderRef] = resp
	return resp, nil
}

func (f *FakeDriver) ConfirmIntent(_ context.Context, providerRef string, _ ConfirmContext) (*IntentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	intent, ok := f.intents[providerRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, providerRef)
	}
	// Confirming an already-confirmed intent returns the current state.
	if intent.Status == IntentStatusRequiresConfirmation {
		intent.Status = IntentStatusRequiresCapture
	}
	copied := *intent
	return &copied, nil
}

func (f *FakeDriver) CancelIntent(_ context.Context, providerRef string) (*IntentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	intent, ok := f.intents[providerRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, providerRef)
	}
	if intent.Status == IntentStatusSucceeded {
		return nil, fmt.Errorf("%w: intent %q is already captured", ErrInvalidState, providerRef)
	}
	intent.Status = IntentStatusCanceled
	copied := *intent
	return &copied, nil
}

func (f *FakeDriver) CapturePayment(_ context.Context, req CaptureRequest) (*PaymentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Same idempotency key -> same response, no second charge.
	if prior, ok := f.capturesByKey[req.IdempotencyKey]; ok {
		copied := *prior
		return &copied, nil
	}

	intent, ok := f.intents[req.ProviderRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, req.ProviderRef)
	}
	switch intent.Status {
	case IntentStatusRequiresCapture:
	case IntentStatusSucceeded:
		return nil, fmt.Errorf("%w: intent %q is already captured", ErrInvalidState, req.ProviderRef)
	default:
		return nil, fmt.Errorf("%w: intent %q is %s", ErrInvalidState, req.ProviderRef, intent.Status)
	}

	intent.Status = IntentStatusSucceeded
	amount := intent.Amount
	if req.Amount.IsPositive() {
		amount = req.Amount
	}
	resp := &PaymentResponse{
		ProviderRef: req.ProviderRef,
		Status:      IntentStatusSucceeded,
		Amount:      amount,
		Raw:         json.RawMessage(`{"driver":"fake"}`),
		CreatedAt:   time.Now(),
	}
	f.capturesByKey[req.IdempotencyKey] = resp
	copied := *resp
	return &copied, nil
}

func (f *FakeDriver) RefundPayment(_ context.Context, req RefundRequest) (*RefundResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	intent, ok := f.intents[req.ProviderRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, req.ProviderRef)
	}
	if intent.Status != IntentStatusSucceeded {
		return nil, fmt.Errorf("%w: intent %q is not captured", ErrInvalidState, req.ProviderRef)
	}

	amount := req.Amount
	if !amount.IsPositive() {
		amount = intent.Amount
	}
	if f.refundedByRef[req.ProviderRef]+amount.Amount > intent.Amount.Amount {
		return nil, fmt.Errorf("%w: refund exceeds captured amount", ErrInvalidState)
	}
	f.refundedByRef[req.ProviderRef] += amount.Amount

	return &RefundResponse{
		ProviderRef: req.ProviderRef,
		RefundRef:   f.nextRef("re"),
		Amount:      amount,
		Raw:         json.RawMessage(`{"driver":"fake"}`),
		CreatedAt:   time.Now(),
	}, nil
}

func (f *FakeDriver) CreateSubscription(_ context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	end := start.AddDate(0, 1, 0)
	resp := &SubscriptionResponse{
		ProviderRef:        f.nextRef("sub"),
		Status:             models.SubscriptionStatusActive,
		PlanRef:            req.PlanRef,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		CreatedAt:          start,
	}
	f.subs[resp.ProviderRef] = resp
	copied := *resp
	return &copied, nil
}

func (f *FakeDriver) SwapSubscription(_ context.Context, providerRef, newPlanRef string) (*SubscriptionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[providerRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown subscription %q", ErrInvalidRequest, providerRef)
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: subscription %q is canceled", ErrInvalidState, providerRef)
	}
	sub.PlanRef = newPlanRef
	copied := *sub
	return &copied, nil
}

func (f *FakeDriver) CancelSubscription(_ context.Context, providerRef string, atPeriodEnd bool) (*SubscriptionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[providerRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown subscription %q", ErrInvalidRequest, providerRef)
	}
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.Status = models.SubscriptionStatusCanceled
	}
	copied := *sub
	return &copied, nil
}

func (f *FakeDriver) ResumeSubscription(_ context.Context, providerRef string) (*SubscriptionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[providerRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown subscription %q", ErrInvalidRequest, providerRef)
	}
	// Resume only applies to cancel-at-period-end that has not ended yet.
	if !sub.CancelAtPeriodEnd || sub.Status == models.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: subscription %q is not pending cancellation", ErrInvalidState, providerRef)
	}
	sub.CancelAtPeriodEnd = false
	copied := *sub
	return &copied, nil
}
