package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/webhooks"
)

type stubWebhookRepo struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]*models.PaymentWebhook
}

func newStubWebhookRepo() *stubWebhookRepo {
	return &stubWebhookRepo{records: make(map[uint]*models.PaymentWebhook)}
}

func (r *stubWebhookRepo) Create(w *models.PaymentWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	w.ID = r.nextID
	cp := *w
	r.records[w.ID] = &cp
	return nil
}

func (r *stubWebhookRepo) GetByID(id uint) (*models.PaymentWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.records[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, fmt.Errorf("webhook %d not found", id)
}

func (r *stubWebhookRepo) GetByTrackingID(trackingID string) (*models.PaymentWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.records {
		if w.TrackingID == trackingID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("webhook %s not found", trackingID)
}

func (r *stubWebhookRepo) MarkProcessed(id uint, eventKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.records[id]; ok {
		now := time.Now()
		w.Status = models.WebhookStatusProcessed
		w.EventKey = eventKey
		w.ProcessedAt = &now
		w.ProcessingError = ""
	}
	return nil
}

func (r *stubWebhookRepo) MarkFailed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.records[id]; ok {
		w.Status = models.WebhookStatusFailed
		w.ProcessingError = processingError
	}
	return nil
}

func (r *stubWebhookRepo) HasProcessedEventKey(provider, eventKey string) (bool, error) {
	return false, nil
}

func (r *stubWebhookRepo) ListByStatus(status models.WebhookStatus, offset, limit int) ([]models.PaymentWebhook, error) {
	return nil, nil
}

func (r *stubWebhookRepo) CountByStatus(status models.WebhookStatus) (int64, error) {
	return 0, nil
}

var _ repository.WebhookRepository = (*stubWebhookRepo)(nil)

func signStripeStyle(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookTestApp(t *testing.T, repo *stubWebhookRepo) *fiber.App {
	t.Helper()
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_controller_test")

	svc := webhooks.NewService(repo, nil)
	InitializeWebhookController(svc)
	t.Cleanup(func() { InitializeWebhookController(nil) })

	app := fiber.New()
	app.Post("/webhooks/payments/:provider", HandlePaymentWebhook)
	app.Post("/webhooks/verification/:provider", HandleVerificationWebhook)
	return app
}

func TestHandlePaymentWebhook_Accepted(t *testing.T) {
	repo := newStubWebhookRepo()
	app := newWebhookTestApp(t, repo)

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signStripeStyle("whsec_controller_test", payload, time.Now()))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["id"])

	stored, err := repo.GetByTrackingID(body["id"])
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusPending, stored.Status)
	assert.True(t, stored.SignatureValid)
	assert.Equal(t, "payment_intent.succeeded", stored.Event)
}

func TestHandlePaymentWebhook_InvalidSignature(t *testing.T) {
	repo := newStubWebhookRepo()
	app := newWebhookTestApp(t, repo)

	payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=12345,v1=deadbeef")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "invalid_signature")

	// The delivery is still on record for the audit trail.
	stored, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, stored.Status)
	assert.False(t, stored.SignatureValid)
}

func TestHandleVerificationWebhook_DigestSignature(t *testing.T) {
	repo := newStubWebhookRepo()
	app := newWebhookTestApp(t, repo)
	t.Setenv("SUMSUB_WEBHOOK_SECRET", "sumsub_secret")

	payload := []byte(`{"type":"applicantReviewed","applicantId":"app_1","reviewResult":{"reviewAnswer":"GREEN"}}`)
	mac := hmac.New(sha256.New, []byte("sumsub_secret"))
	mac.Write(payload)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/verification/sumsub", bytes.NewReader(payload))
	req.Header.Set("X-Payload-Digest", hex.EncodeToString(mac.Sum(nil)))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}
