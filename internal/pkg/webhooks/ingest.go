package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
)

// TaskQueue hands a persisted webhook record to the async worker pool.
// Implemented by the job queue manager; a nil queue means synchronous
// environments (tests) drive the pipeline themselves.
type TaskQueue interface {
	EnqueueWebhook(ctx context.Context, kind string, webhookID uint, provider string) error
}

// IngestRequest carries one physical webhook delivery as received on the
// wire. Body is the raw bytes the signature was computed over.
type IngestRequest struct {
	Kind      string
	Provider  string
	Body      []byte
	Signature string
	Headers   map[string]string
}

// Service persists incoming webhooks before anything else touches them
// and enqueues valid ones for async processing.
type Service struct {
	repo    repository.WebhookRepository
	queue   TaskQueue
	secrets func(provider string) string
	now     func() time.Time
}

// NewService creates an ingestion service. Secrets resolve from the
// environment per provider (STRIPE_WEBHOOK_SECRET, SUMSUB_WEBHOOK_SECRET).
func NewService(repo repository.WebhookRepository, queue TaskQueue) *Service {
	return &Service{
		repo:    repo,
		queue:   queue,
		secrets: secretFromEnv,
		now:     time.Now,
	}
}

// WithSecrets overrides the secret lookup, used by tests.
func (s *Service) WithSecrets(lookup func(provider string) string) *Service {
	s.secrets = lookup
	return s
}

// WithClock overrides the clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func secretFromEnv(provider string) string {
	key := strings.ToUpper(provider) + "_WEBHOOK_SECRET"
	return env.GetEnv(key, "")
}

// Ingest persists a delivery and enqueues it for processing. The record
// is written in every case, including invalid signatures, so no delivery
// is ever silently dropped. ErrSignatureMismatch is returned after the
// failed record is stored; such records are never enqueued.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*models.PaymentWebhook, error) {
	if req.Kind != models.WebhookKindPayment && req.Kind != models.WebhookKindVerification {
		return nil, fmt.Errorf("unknown webhook kind %q", req.Kind)
	}
	if strings.TrimSpace(req.Provider) == "" {
		return nil, fmt.Errorf("webhook provider is required")
	}

	valid := VerifySignature(req.Provider, req.Body, req.Signature, s.secrets(req.Provider), s.now())

	headersJSON := ""
	if len(req.Headers) > 0 {
		if raw, err := json.Marshal(req.Headers); err == nil {
			headersJSON = string(raw)
		}
	}

	record := &models.PaymentWebhook{
		TrackingID:     uuid.New().String(),
		Kind:           req.Kind,
		Provider:       req.Provider,
		Event:          peekEventType(req.Kind, req.Body),
		Signature:      req.Signature,
		SignatureValid: valid,
		HeadersJSON:    headersJSON,
		Payload:        string(req.Body),
		Status:         models.WebhookStatusPending,
	}
	if err := s.repo.Create(record); err != nil {
		return nil, fmt.Errorf("persisting webhook: %w", err)
	}

	if !valid {
		if err := s.repo.MarkFailed(record.ID, "signature mismatch"); err != nil {
			log.Errorf("[Webhooks] Failed to mark record %d as failed: %v", record.ID, err)
		}
		log.Warnf("[Webhooks] Invalid %s signature from %s (tracking=%s)", req.Kind, req.Provider, record.TrackingID)
		return record, ErrSignatureMismatch
	}

	if s.queue != nil {
		if err := s.queue.EnqueueWebhook(ctx, req.Kind, record.ID, req.Provider); err != nil {
			// The record is safely persisted; a requeue via the operator
			// API recovers it, so the provider still gets its 202.
			log.Errorf("[Webhooks] Enqueue failed for record %d: %v", record.ID, err)
		}
	}
	return record, nil
}

// peekEventType extracts the event type for the record's index column
// without committing to full event parsing; ingestion never rejects a
// payload for being malformed.
func peekEventType(kind string, body []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	_ = kind
	return envelope.Type
}
