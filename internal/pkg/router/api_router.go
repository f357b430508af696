package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	apiv1 "github.com/FelixHartmann/Zahlwerk/internal/api/v1"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/cache"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/middleware"
)

// ApiRouter installs the internal operator API. Everything under /api/v1
// requires the internal API token.
type ApiRouter struct {
	server *apiv1.APIServer
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.InternalAPIAuth())
	v1.Get("/ping", h.server.GetPing)

	v1.Get("/webhooks/failed", h.server.GetFailedWebhooks)
	v1.Get("/webhooks/:tracking_id", h.server.GetWebhookStatus)
	v1.Post("/webhooks/:tracking_id/requeue", h.server.PostRequeueWebhook)

	v1.Get("/queue/stats", h.server.GetQueueStats)

	v1.Post("/payments", h.server.PostPayment)
	v1.Get("/payments", h.server.GetPayments)
	v1.Get("/payments/:id", h.server.GetPayment)
	v1.Post("/payments/:id/capture", h.server.PostCapturePayment)
	v1.Post("/payments/:id/refund", h.server.PostRefundPayment)

	v1.Get("/users/:user_id/verification", h.server.GetUserVerification)
	v1.Post("/users/:user_id/verification", h.server.PostStartVerification)
	v1.Get("/users/:user_id/subscriptions", h.server.GetUserSubscriptions)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold
// across instances. Database 1 keeps limiter keys out of the cache DB.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter(server *apiv1.APIServer) *ApiRouter {
	return &ApiRouter{server: server}
}
