package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/events"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/gateway"
)

// Service owns the payment lifecycle. Provider calls go through the
// gateway manager; local state changes only ever happen through guarded
// repository transitions, so replayed webhooks and concurrent workers
// cannot double-apply an effect.
type Service struct {
	payments   repository.PaymentRepository
	payables   repository.PayableRepository
	subs       repository.SubscriptionRepository
	manager    *gateway.Manager
	dispatcher *events.Dispatcher
}

func NewService(
	payments repository.PaymentRepository,
	payables repository.PayableRepository,
	subs repository.SubscriptionRepository,
	manager *gateway.Manager,
	dispatcher *events.Dispatcher,
) *Service {
	return &Service{
		payments:   payments,
		payables:   payables,
		subs:       subs,
		manager:    manager,
		dispatcher: dispatcher,
	}
}

// CreatePaymentInput describes a new charge attempt against a payable.
type CreatePaymentInput struct {
	PayerID       uint
	PayableKind   string
	PayableID     uint
	Provider      string
	Amount        models.Money
	PaymentMethod string
	Description   string
}

// CreatePayment starts a charge at the provider and records it locally.
// The payable must exist; an already-active payable is rejected before
// any provider call is made.
func (s *Service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	payable, err := s.payables.Resolve(input.PayableKind, input.PayableID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving payable: %v", gateway.ErrInvalidRequest, err)
	}
	if payable.IsActive() {
		return nil, fmt.Errorf("%w: %s %d is already active", gateway.ErrInvalidState, input.PayableKind, input.PayableID)
	}

	driver, err := s.manager.Driver(input.Provider)
	if err != nil {
		return nil, err
	}

	idempotencyKey := uuid.New().String()
	intent, err := driver.CreateIntent(ctx, gateway.CreateIntentRequest{
		Amount:         input.Amount,
		PaymentMethod:  input.PaymentMethod,
		Description:    input.Description,
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			"payable_type": input.PayableKind,
			"payable_id":   fmt.Sprintf("%d", input.PayableID),
		},
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		PayableType:    input.PayableKind,
		PayableID:      input.PayableID,
		PayerID:        input.PayerID,
		Provider:       s.resolveProviderName(input.Provider),
		ProviderRef:    intent.ProviderRef,
		IdempotencyKey: idempotencyKey,
		Amount:         input.Amount.Amount,
		Currency:       input.Amount.Currency,
		Status:         paymentStatusForIntent(intent.Status),
	}
	if payment.Status == models.PaymentStatusFailed {
		payment.FailureReason = "declined by provider"
	}
	if err := s.payments.Create(payment); err != nil {
		return nil, fmt.Errorf("persisting payment: %w", err)
	}

	// Synchronous capture outcomes (fake driver, zero-step flows) apply
	// immediately instead of waiting for the provider callback.
	if intent.Status == gateway.IntentStatusSucceeded {
		if err := s.applyCaptureTo(ctx, payment, payment.Amount); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

// Capture settles an authorized payment at the provider and applies the
// local transition. Safe to retry: the stored idempotency key makes the
// provider call replayable and the local transition is guarded.
func (s *Service) Capture(ctx context.Context, paymentID uint) (*models.Payment, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, fmt.Errorf("loading payment %d: %w", paymentID, err)
	}
	if !payment.CanCapture() {
		return nil, fmt.Errorf("%w: payment %d is %s", gateway.ErrInvalidState, paymentID, payment.Status)
	}

	driver, err := s.manager.Driver(payment.Provider)
	if err != nil {
		return nil, err
	}
	resp, err := driver.CapturePayment(ctx, gateway.CaptureRequest{
		ProviderRef:    payment.ProviderRef,
		IdempotencyKey: payment.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if err := s.applyCaptureTo(ctx, payment, resp.Amount.Amount); err != nil {
		return nil, err
	}
	return s.payments.GetByID(paymentID)
}

// Refund gives back part or all of a captured payment. The provider is
// called first; the local refund applies only after the provider accepted.
func (s *Service) Refund(ctx context.Context, paymentID uint, amount int64, reason string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, fmt.Errorf("loading payment %d: %w", paymentID, err)
	}
	if !payment.CanRefund(amount) {
		return nil, fmt.Errorf("%w: cannot refund %d on payment %d (%s, refunded %d of %d)",
			gateway.ErrInvalidState, amount, paymentID, payment.Status, payment.RefundedAmount, payment.Amount)
	}

	driver, err := s.manager.Driver(payment.Provider)
	if err != nil {
		return nil, err
	}
	_, err = driver.RefundPayment(ctx, gateway.RefundRequest{
		ProviderRef:    payment.ProviderRef,
		Amount:         models.Money{Amount: amount, Currency: payment.Currency},
		Reason:         reason,
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		return nil, err
	}

	applied, err := s.payments.AddRefund(payment.ID, amount)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: refund guard rejected %d on payment %d", gateway.ErrInvalidState, amount, paymentID)
	}

	refreshed, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Publish(ctx, events.PaymentRefunded{
		PaymentID: refreshed.ID,
		PayerID:   refreshed.PayerID,
		Amount:    models.Money{Amount: amount, Currency: refreshed.Currency},
		Full:      refreshed.IsFullyRefunded(),
	})
	return refreshed, nil
}

// GetPayment loads one payment.
func (s *Service) GetPayment(id uint) (*models.Payment, error) {
	return s.payments.GetByID(id)
}

// ApplyCapture applies a provider-confirmed capture to the local payment.
// Unknown provider refs are acknowledged: the charge may belong to another
// system sharing the provider account.
func (s *Service) ApplyCapture(ctx context.Context, provider, providerRef string, amount int64, currency string) error {
	payment, err := s.payments.GetByProviderRef(provider, providerRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] Capture for unknown ref %s/%s, ignoring", provider, providerRef)
			return nil
		}
		return err
	}

	if currency != "" && currency != payment.Currency {
		return fmt.Errorf("%w: event says %s, payment %d is %s", models.ErrCurrencyMismatch, currency, payment.ID, payment.Currency)
	}
	if amount == 0 {
		amount = payment.Amount
	}
	return s.applyCaptureTo(ctx, payment, amount)
}

// ApplyFailure marks a payment failed from a provider callback. Terminal
// states are left untouched.
func (s *Service) ApplyFailure(ctx context.Context, provider, providerRef, reason string) error {
	payment, err := s.payments.GetByProviderRef(provider, providerRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] Failure for unknown ref %s/%s, ignoring", provider, providerRef)
			return nil
		}
		return err
	}

	applied, err := s.payments.TransitionStatus(payment.ID,
		[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusAuthorized},
		models.PaymentStatusFailed,
		map[string]interface{}{"failure_reason": reason},
	)
	if err != nil {
		return err
	}
	if !applied {
		log.Infof("[Payments] Failure event for payment %d in state %s, no transition", payment.ID, payment.Status)
		return nil
	}
	s.dispatcher.Publish(ctx, events.PaymentFailed{PaymentID: payment.ID, PayerID: payment.PayerID, Reason: reason})
	return nil
}

// ApplyRefund applies a provider-reported cumulative refund total. Only
// the delta above what is already recorded is added, so replays are
// no-ops.
func (s *Service) ApplyRefund(ctx context.Context, provider, providerRef string, refundedTotal int64) error {
	payment, err := s.payments.GetByProviderRef(provider, providerRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] Refund for unknown ref %s/%s, ignoring", provider, providerRef)
			return nil
		}
		return err
	}

	delta := refundedTotal - payment.RefundedAmount
	if delta <= 0 {
		return nil
	}
	applied, err := s.payments.AddRefund(payment.ID, delta)
	if err != nil {
		return err
	}
	if !applied {
		log.Infof("[Payments] Refund guard rejected delta %d on payment %d", delta, payment.ID)
		return nil
	}

	refreshed, err := s.payments.GetByID(payment.ID)
	if err != nil {
		return err
	}
	s.dispatcher.Publish(ctx, events.PaymentRefunded{
		PaymentID: refreshed.ID,
		PayerID:   refreshed.PayerID,
		Amount:    models.Money{Amount: delta, Currency: refreshed.Currency},
		Full:      refreshed.IsFullyRefunded(),
	})
	return nil
}

// SyncSubscription mirrors provider subscription state. The user link of
// an existing row survives payload updates that do not carry it.
func (s *Service) SyncSubscription(ctx context.Context, sub *models.Subscription) error {
	if existing, err := s.subs.GetByProviderRef(sub.Provider, sub.ProviderRef); err == nil {
		sub.UserID = existing.UserID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := s.subs.UpsertByProviderRef(sub); err != nil {
		return fmt.Errorf("upserting subscription %s/%s: %w", sub.Provider, sub.ProviderRef, err)
	}
	s.dispatcher.Publish(ctx, events.SubscriptionSynced{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Status:         sub.Status,
		Entitling:      sub.IsEntitling(),
	})
	return nil
}

// applyCaptureTo runs the guarded capture transition and, exactly once,
// the payable activation side effect.
func (s *Service) applyCaptureTo(ctx context.Context, payment *models.Payment, amount int64) error {
	now := time.Now()
	applied, err := s.payments.TransitionStatus(payment.ID,
		[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusAuthorized},
		models.PaymentStatusCaptured,
		map[string]interface{}{"captured_at": now},
	)
	if err != nil {
		return err
	}
	if !applied {
		// Already captured by a concurrent path. The activation CAS below
		// already ran on that path, so there is nothing left to do.
		log.Infof("[Payments] Capture for payment %d in state %s, no transition", payment.ID, payment.Status)
		return nil
	}

	activated, err := s.payables.Activate(payment.PayableType, payment.PayableID)
	if err != nil {
		return fmt.Errorf("activating %s %d: %w", payment.PayableType, payment.PayableID, err)
	}

	s.dispatcher.Publish(ctx, events.PaymentCaptured{
		PaymentID:   payment.ID,
		PayerID:     payment.PayerID,
		PayableKind: payment.PayableType,
		PayableID:   payment.PayableID,
		Amount:      models.Money{Amount: amount, Currency: payment.Currency},
	})
	if activated {
		s.dispatcher.Publish(ctx, events.PayableActivated{
			Kind:    payment.PayableType,
			ID:      payment.PayableID,
			PayerID: payment.PayerID,
		})
	}
	return nil
}

func (s *Service) resolveProviderName(name string) string {
	if name != "" {
		return name
	}
	if _, err := s.manager.Driver(""); err == nil {
		return s.manager.DefaultName()
	}
	return name
}

func paymentStatusForIntent(status gateway.IntentStatus) models.PaymentStatus {
	switch status {
	case gateway.IntentStatusRequiresCapture, gateway.IntentStatusProcessing:
		return models.PaymentStatusAuthorized
	case gateway.IntentStatusSucceeded:
		return models.PaymentStatusAuthorized
	case gateway.IntentStatusFailed:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}
