package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/FelixHartmann/Zahlwerk/internal/api/v1"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers webhook ingestion first, then the operator API
// which sits behind the internal token middleware.
func InstallRouter(app *fiber.App, server *apiv1.APIServer) {
	setup(app, NewHttpRouter(), NewApiRouter(server))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
