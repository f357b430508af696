package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/gateway"
)

// PaymentApplier applies provider-confirmed payment facts to the local
// payment. Implementations are idempotent: applying the same fact twice
// is a clean no-op, and a fact for an unknown payment is acknowledged
// without error.
type PaymentApplier interface {
	ApplyCapture(ctx context.Context, provider, providerRef string, amount int64, currency string) error
	ApplyFailure(ctx context.Context, provider, providerRef, reason string) error
	ApplyRefund(ctx context.Context, provider, providerRef string, amount int64) error
}

// SubscriptionSyncer mirrors provider subscription state locally.
type SubscriptionSyncer interface {
	SyncSubscription(ctx context.Context, sub *models.Subscription) error
}

// ReviewApplier applies a verification review outcome.
type ReviewApplier interface {
	ApplyReview(ctx context.Context, provider, applicantID string, approved bool, reason, rawPayload string) error
}

// Counter records per-provider processing outcomes.
type Counter interface {
	AddProcessed(provider string)
	AddFailed(provider string)
}

// Pipeline turns persisted webhook records into domain state changes.
// It runs inside queue workers and must stay safe under redelivery:
// every mutation it triggers goes through a guarded transition, and
// logical events are deduplicated by their provider event key before
// any handler runs.
type Pipeline struct {
	webhooks repository.WebhookRepository
	payments PaymentApplier
	subs     SubscriptionSyncer
	reviews  ReviewApplier
	counters Counter
}

func NewPipeline(
	webhooks repository.WebhookRepository,
	payments PaymentApplier,
	subs SubscriptionSyncer,
	reviews ReviewApplier,
	counters Counter,
) *Pipeline {
	return &Pipeline{
		webhooks: webhooks,
		payments: payments,
		subs:     subs,
		reviews:  reviews,
		counters: counters,
	}
}

// Process handles one persisted webhook record. A nil return means the
// record reached a terminal state (processed or permanently failed); an
// error return means a transient failure the queue should retry.
func (p *Pipeline) Process(ctx context.Context, webhookID uint) error {
	record, err := p.webhooks.GetByID(webhookID)
	if err != nil {
		return fmt.Errorf("loading webhook %d: %w", webhookID, err)
	}

	// Redelivered jobs for an already-processed record are no-ops.
	if record.Status == models.WebhookStatusProcessed {
		return nil
	}
	// Signature failures are terminal at ingestion; never process them.
	if !record.SignatureValid {
		return nil
	}

	switch record.Kind {
	case models.WebhookKindPayment:
		return p.processPayment(ctx, record)
	case models.WebhookKindVerification:
		return p.processVerification(ctx, record)
	default:
		return p.failPermanently(record, fmt.Sprintf("unknown webhook kind %q", record.Kind))
	}
}

func (p *Pipeline) processPayment(ctx context.Context, record *models.PaymentWebhook) error {
	event, err := ParsePaymentEvent([]byte(record.Payload))
	if err != nil {
		// Malformed payloads never become valid on retry.
		return p.failPermanently(record, err.Error())
	}

	key := event.LogicalKey()
	done, err := p.webhooks.HasProcessedEventKey(record.Provider, key)
	if err != nil {
		return fmt.Errorf("checking event key: %w", err)
	}
	if done {
		log.Infof("[Webhooks] Duplicate event %s from %s, acknowledging (tracking=%s)", key, record.Provider, record.TrackingID)
		return p.markProcessed(record, key)
	}

	switch event.Type {
	case EventPaymentSucceeded:
		amount := event.Data.Object.AmountReceived
		if amount == 0 {
			amount = event.Data.Object.Amount
		}
		err = p.payments.ApplyCapture(ctx, record.Provider, event.ProviderRef(), amount, normalizeCurrency(event.Data.Object.Currency))
	case EventPaymentFailed:
		reason := event.Data.Object.LastPaymentError.Message
		if reason == "" {
			reason = "payment failed"
		}
		err = p.payments.ApplyFailure(ctx, record.Provider, event.ProviderRef(), reason)
	case EventChargeRefunded:
		err = p.payments.ApplyRefund(ctx, record.Provider, event.ProviderRef(), event.Data.Object.AmountRefunded)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		err = p.subs.SyncSubscription(ctx, subscriptionFromEvent(record.Provider, event))
	default:
		// Unhandled event types are acknowledged so providers stop
		// redelivering them.
		log.Debugf("[Webhooks] Ignoring event type %s from %s", event.Type, record.Provider)
	}
	if err != nil {
		return p.failTransiently(record, err)
	}
	return p.markProcessed(record, key)
}

func (p *Pipeline) processVerification(ctx context.Context, record *models.PaymentWebhook) error {
	event, err := ParseVerificationEvent([]byte(record.Payload))
	if err != nil {
		return p.failPermanently(record, err.Error())
	}

	key := event.LogicalKey()
	done, err := p.webhooks.HasProcessedEventKey(record.Provider, key)
	if err != nil {
		return fmt.Errorf("checking event key: %w", err)
	}
	if done {
		log.Infof("[Webhooks] Duplicate review %s from %s, acknowledging (tracking=%s)", key, record.Provider, record.TrackingID)
		return p.markProcessed(record, key)
	}

	switch event.Type {
	case EventApplicantReviewed:
		err = p.reviews.ApplyReview(ctx, record.Provider, event.ApplicantID, event.Approved(), event.RejectionReason(), record.Payload)
	default:
		log.Debugf("[Webhooks] Ignoring review event type %s from %s", event.Type, record.Provider)
	}
	if err != nil {
		return p.failTransiently(record, err)
	}
	return p.markProcessed(record, key)
}

func (p *Pipeline) markProcessed(record *models.PaymentWebhook, eventKey string) error {
	if err := p.webhooks.MarkProcessed(record.ID, eventKey); err != nil {
		return fmt.Errorf("marking webhook %d processed: %w", record.ID, err)
	}
	if p.counters != nil {
		p.counters.AddProcessed(record.Provider)
	}
	return nil
}

// failPermanently records a terminal failure and stops retries.
func (p *Pipeline) failPermanently(record *models.PaymentWebhook, reason string) error {
	log.Warnf("[Webhooks] Permanent failure for record %d (tracking=%s): %s", record.ID, record.TrackingID, reason)
	if err := p.webhooks.MarkFailed(record.ID, reason); err != nil {
		return fmt.Errorf("marking webhook %d failed: %w", record.ID, err)
	}
	if p.counters != nil {
		p.counters.AddFailed(record.Provider)
	}
	return nil
}

// failTransiently records the error and returns it so the queue retries.
func (p *Pipeline) failTransiently(record *models.PaymentWebhook, cause error) error {
	if err := p.webhooks.MarkFailed(record.ID, cause.Error()); err != nil {
		log.Errorf("[Webhooks] Failed to record error on webhook %d: %v", record.ID, err)
	}
	if p.counters != nil {
		p.counters.AddFailed(record.Provider)
	}
	return cause
}

func subscriptionFromEvent(provider string, event *PaymentEvent) *models.Subscription {
	obj := event.Data.Object
	sub := &models.Subscription{
		Provider:          provider,
		ProviderRef:       obj.ID,
		PlanRef:           obj.Plan.ID,
		BillingInterval:   normalizeInterval(obj.Plan.Interval),
		Status:            gateway.MapStripeSubscriptionStatus(obj.Status),
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
		RawPayloadJSON:    "",
	}
	if event.Type == EventSubscriptionDeleted {
		sub.Status = models.SubscriptionStatusCanceled
	}
	if obj.CurrentPeriodStart > 0 {
		t := time.Unix(obj.CurrentPeriodStart, 0)
		sub.CurrentPeriodStart = &t
	}
	if obj.CurrentPeriodEnd > 0 {
		t := time.Unix(obj.CurrentPeriodEnd, 0)
		sub.CurrentPeriodEnd = &t
	}
	return sub
}

func normalizeInterval(interval string) string {
	switch interval {
	case "month", "monthly":
		return models.SubscriptionIntervalMonth
	case "year", "annual", "yearly":
		return models.SubscriptionIntervalYear
	default:
		return models.SubscriptionIntervalUnknown
	}
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(currency)
}
