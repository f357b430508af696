package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FelixHartmann/Zahlwerk/app/controllers"
)

// HttpRouter installs the provider-facing webhook endpoints. These are
// unauthenticated at the transport level; signature verification happens
// inside the ingestion service.
type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/payments/:provider", controllers.HandlePaymentWebhook)
	webhooks.Post("/verification/:provider", controllers.HandleVerificationWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
