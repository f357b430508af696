package apiv1

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/gateway"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/jobqueue"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/payments"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/verification"
)

// APIServer exposes the internal operator API over the domain services.
type APIServer struct {
	repos         *repository.Repositories
	queue         *jobqueue.Queue
	payments      *payments.Service
	verifications *verification.Service
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(repos *repository.Repositories, queue *jobqueue.Queue, paymentSvc *payments.Service, verificationSvc *verification.Service) *APIServer {
	return &APIServer{
		repos:         repos,
		queue:         queue,
		payments:      paymentSvc,
		verifications: verificationSvc,
	}
}

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetWebhookStatus returns the processing state of one delivery by its
// tracking id.
func (s *APIServer) GetWebhookStatus(c *fiber.Ctx) error {
	trackingID := strings.TrimSpace(c.Params("tracking_id"))
	if trackingID == "" {
		return badRequest(c, "tracking_id missing")
	}

	record, err := s.repos.Webhook.GetByTrackingID(trackingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "webhook not found")
		}
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":               record.TrackingID,
		"kind":             record.Kind,
		"provider":         record.Provider,
		"event":            record.Event,
		"status":           record.Status,
		"signature_valid":  record.SignatureValid,
		"processed_at":     record.ProcessedAt,
		"processing_error": record.ProcessingError,
		"received_at":      record.CreatedAt,
	})
}

// PostRequeueWebhook pushes a stored delivery back onto the processing
// queue. Deliveries that failed signature verification stay dead.
func (s *APIServer) PostRequeueWebhook(c *fiber.Ctx) error {
	trackingID := strings.TrimSpace(c.Params("tracking_id"))
	if trackingID == "" {
		return badRequest(c, "tracking_id missing")
	}

	record, err := s.repos.Webhook.GetByTrackingID(trackingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "webhook not found")
		}
		return internalError(c, err)
	}

	if !record.SignatureValid {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_signature", "message": "Deliveries with a bad signature cannot be requeued"})
	}
	if record.Status == models.WebhookStatusProcessed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_processed"})
	}

	if err := s.queue.EnqueueWebhook(c.Context(), record.Kind, record.ID, record.Provider); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": record.TrackingID, "requeued": true})
}

// GetFailedWebhooks lists failed deliveries for operator triage.
func (s *APIServer) GetFailedWebhooks(c *fiber.Ctx) error {
	offset, limit := pagination(c)

	records, err := s.repos.Webhook.ListByStatus(models.WebhookStatusFailed, offset, limit)
	if err != nil {
		return internalError(c, err)
	}
	total, err := s.repos.Webhook.CountByStatus(models.WebhookStatusFailed)
	if err != nil {
		return internalError(c, err)
	}

	items := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		items = append(items, fiber.Map{
			"id":               record.TrackingID,
			"kind":             record.Kind,
			"provider":         record.Provider,
			"event":            record.Event,
			"signature_valid":  record.SignatureValid,
			"processing_error": record.ProcessingError,
			"received_at":      record.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"items": items, "total": total, "offset": offset, "limit": limit})
}

// GetQueueStats reports job queue depth and counters.
func (s *APIServer) GetQueueStats(c *fiber.Ctx) error {
	ctx := c.Context()

	stats, err := s.queue.GetJobStats(ctx)
	if err != nil {
		return internalError(c, err)
	}
	queued, err := s.queue.GetQueueSize(ctx)
	if err != nil {
		return internalError(c, err)
	}
	processing, err := s.queue.GetProcessingSize(ctx)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"queued":     queued,
		"processing": processing,
		"stats":      stats,
	})
}

// PostPayment starts a charge for a payable.
func (s *APIServer) PostPayment(c *fiber.Ctx) error {
	var body struct {
		PayerID       uint   `json:"payer_id"`
		PayableKind   string `json:"payable_kind"`
		PayableID     uint   `json:"payable_id"`
		Provider      string `json:"provider"`
		Amount        int64  `json:"amount"`
		Currency      string `json:"currency"`
		PaymentMethod string `json:"payment_method"`
		Description   string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	payment, err := s.payments.CreatePayment(c.Context(), payments.CreatePaymentInput{
		PayerID:       body.PayerID,
		PayableKind:   body.PayableKind,
		PayableID:     body.PayableID,
		Provider:      body.Provider,
		Amount:        models.Money{Amount: body.Amount, Currency: body.Currency},
		PaymentMethod: body.PaymentMethod,
		Description:   body.Description,
	})
	if err != nil {
		return paymentError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(payment)
}

// GetPayments lists payments, newest first.
func (s *APIServer) GetPayments(c *fiber.Ctx) error {
	offset, limit := pagination(c)

	items, err := s.repos.Payment.List(offset, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"items": items, "offset": offset, "limit": limit})
}

// GetPayment returns one payment by id.
func (s *APIServer) GetPayment(c *fiber.Ctx) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return badRequest(c, "invalid payment id")
	}

	payment, err := s.payments.GetPayment(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "payment not found")
		}
		return internalError(c, err)
	}

	return c.JSON(payment)
}

// PostCapturePayment captures an authorized payment.
func (s *APIServer) PostCapturePayment(c *fiber.Ctx) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return badRequest(c, "invalid payment id")
	}

	payment, err := s.payments.Capture(c.Context(), id)
	if err != nil {
		return paymentError(c, err)
	}

	return c.JSON(payment)
}

// PostRefundPayment refunds part or all of a captured payment.
func (s *APIServer) PostRefundPayment(c *fiber.Ctx) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return badRequest(c, "invalid payment id")
	}

	var body struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	payment, err := s.payments.Refund(c.Context(), id, body.Amount, body.Reason)
	if err != nil {
		return paymentError(c, err)
	}

	return c.JSON(payment)
}

// GetUserVerification returns the effective verification state of a user.
func (s *APIServer) GetUserVerification(c *fiber.Ctx) error {
	userID, err := paramUint(c, "user_id")
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	record, effective, err := s.verifications.StatusForUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"status": models.VerificationStatusUnverified})
		}
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":              effective,
		"provider":            record.Provider,
		"verified_at":         record.VerifiedAt,
		"expires_at":          record.ExpiresAt,
		"renewal_required_at": record.RenewalRequiredAt,
	})
}

// PostStartVerification opens a verification flow for a user.
func (s *APIServer) PostStartVerification(c *fiber.Ctx) error {
	userID, err := paramUint(c, "user_id")
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	var body struct {
		Provider    string `json:"provider"`
		ApplicantID string `json:"applicant_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	record, err := s.verifications.Start(c.Context(), userID, body.Provider, body.ApplicantID)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

// GetUserSubscriptions lists a user's provider subscriptions.
func (s *APIServer) GetUserSubscriptions(c *fiber.Ctx) error {
	userID, err := paramUint(c, "user_id")
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	subs, err := s.repos.Subscription.ListByUser(userID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"items": subs})
}

func paymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(c, "payment not found")
	case errors.Is(err, gateway.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, gateway.ErrInvalidRequest):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
	case errors.Is(err, gateway.ErrUnknownDriver):
		return badRequest(c, "unknown payment provider")
	default:
		return internalError(c, err)
	}
}

func pagination(c *fiber.Ctx) (offset, limit int) {
	offset = c.QueryInt("offset", 0)
	limit = c.QueryInt("limit", 50)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return offset, limit
}

func paramUint(c *fiber.Ctx, name string) (uint, error) {
	raw, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(raw), nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": message})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
}
