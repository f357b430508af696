package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/FelixHartmann/Zahlwerk/app/controllers"
	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	apiv1 "github.com/FelixHartmann/Zahlwerk/internal/api/v1"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/archive"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/cache"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/database"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/entitlements"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/events"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/gateway"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/jobqueue"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/metrics/counter"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/payments"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/router"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/verification"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/webhooks"
)

func main() {
	app, shutdown := NewApplication()

	// graceful shutdown on SIGINT/SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Print("Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Fiber shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeGlobalFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	// domain events + cache invalidation hooks
	dispatcher := events.NewDispatcher()
	entitlements.RegisterListeners(dispatcher)

	// payment gateway drivers
	manager := gateway.NewManager(env.GetEnv("PAYMENT_PROVIDER", models.PaymentProviderStripe))
	manager.Extend(models.PaymentProviderStripe, func() (gateway.PaymentGateway, error) {
		return gateway.NewStripeClientFromEnv(), nil
	})
	manager.ExtendSubscription(models.PaymentProviderStripe, func() (gateway.SubscriptionGateway, error) {
		return gateway.NewStripeClientFromEnv(), nil
	})
	fake := gateway.NewFakeDriver()
	manager.Extend(models.PaymentProviderFake, func() (gateway.PaymentGateway, error) {
		return fake, nil
	})
	manager.ExtendSubscription(models.PaymentProviderFake, func() (gateway.SubscriptionGateway, error) {
		return fake, nil
	})

	// domain services
	paymentSvc := payments.NewService(repos.Payment, repos.Payable, repos.Subscription, manager, dispatcher)
	verificationSvc := verification.NewService(repos.Verification, dispatcher, verification.ConfigFromEnv())

	// webhook processing pipeline + counters
	counters := counter.NewCounter(cache.GetClient(), database.GetDB())
	pipeline := webhooks.NewPipeline(repos.Webhook, paymentSvc, paymentSvc, verificationSvc, counters)

	// cold storage for processed webhook payloads (optional)
	var archiver jobqueue.Archiver
	if archiveCfg, err := archive.LoadConfig(); err != nil {
		log.Printf("Webhook archive disabled: %v", err)
	} else if archiveCfg.IsEnabled() {
		client, err := archive.NewClient(archiveCfg, repos.Webhook)
		if err != nil {
			log.Printf("Webhook archive disabled: %v", err)
		} else {
			archiver = client
		}
	}

	// async queue and background manager
	queue := jobqueue.NewQueue(cache.GetClient(), runtime.NumCPU(), pipeline, archiver)
	queue.Start()

	jobManager := jobqueue.NewManager(queue, counters, verificationSvc)
	jobManager.Start()

	// webhook ingestion
	ingestSvc := webhooks.NewService(repos.Webhook, queue)
	controllers.InitializeWebhookController(ingestSvc)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Zahlwerk",
		BodyLimit: 1 << 20, // webhook payloads are small; 1 MiB is plenty
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if _, err := os.Stat("public/docs/v1/openapi.yml"); err == nil {
		openAPICfg := swagger.Config{
			BasePath: "/docs/api/",
			FilePath: "public/docs/v1/openapi.yml",
			Path:     "v1",
		}
		app.Use(swagger.New(openAPICfg))
	}

	// ROUTER
	apiServer := apiv1.NewAPIServer(repos, queue, paymentSvc, verificationSvc)
	router.InstallRouter(app, apiServer)

	shutdown := func() {
		jobManager.Stop()
		queue.Stop()
	}
	return app, shutdown
}
