package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/webhooks"
)

var webhookService *webhooks.Service

// InitializeWebhookController wires the ingestion service at bootstrap.
func InitializeWebhookController(svc *webhooks.Service) {
	webhookService = svc
}

// HandlePaymentWebhook receives payment provider callbacks.
// POST /webhooks/payments/:provider
func HandlePaymentWebhook(c *fiber.Ctx) error {
	signature := firstHeaderValue(c, "Stripe-Signature", "X-Webhook-Signature")
	return handleWebhook(c, models.WebhookKindPayment, signature)
}

// HandleVerificationWebhook receives identity verification callbacks.
// POST /webhooks/verification/:provider
func HandleVerificationWebhook(c *fiber.Ctx) error {
	signature := firstHeaderValue(c, "X-Payload-Digest", "X-Webhook-Signature")
	return handleWebhook(c, models.WebhookKindVerification, signature)
}

func handleWebhook(c *fiber.Ctx, kind, signature string) error {
	if webhookService == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhooks_unavailable"})
	}

	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider_missing"})
	}

	// Fiber reuses the request buffer after the handler returns; the
	// record must own its copy of the body.
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	record, err := webhookService.Ingest(ctx, webhooks.IngestRequest{
		Kind:      kind,
		Provider:  provider,
		Body:      rawBody,
		Signature: signature,
		Headers:   relevantHeaders(c),
	})
	if err != nil {
		if errors.Is(err, webhooks.ErrSignatureMismatch) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature", "id": record.TrackingID})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	// Accepted means durably stored; processing happens async.
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": record.TrackingID})
}

func firstHeaderValue(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(c.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// relevantHeaders captures the delivery headers worth keeping on the
// stored record for later debugging.
func relevantHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for _, name := range []string{
		"Content-Type",
		"User-Agent",
		"Stripe-Signature",
		"X-Payload-Digest",
		"X-Webhook-Signature",
		"X-Request-Id",
	} {
		if v := c.Get(name); v != "" {
			headers[name] = v
		}
	}
	return headers
}
