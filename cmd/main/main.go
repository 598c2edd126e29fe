package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/env"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/log"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"

	"github.com/synapse-pkm/synapse-whatsapp/internal"
	"github.com/synapse-pkm/synapse-whatsapp/internal/notify"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	ctx := context.Background()

	// Connection service dependencies
	cfg := whatsapp.ConfigFromEnv()

	transport, err := whatsapp.NewMeowTransport(ctx, whatsapp.TransportConfigFromEnv())
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	store, err := whatsapp.NewSessionStore(cfg.DataDir)
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	webhookStore, err := notify.NewStore(filepath.Join(cfg.DataDir, "webhooks.json"))
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}
	engine := notify.NewEngine(webhookStore)

	svc := whatsapp.NewService(cfg, transport, store, engine)

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router Cache
	app.Use(router.HttpCacheInMemory(router.CacheTTLSeconds))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, svc, engine)

	// Running Startup Tasks
	internal.Startup(svc)

	// Running Routines Tasks
	internal.Routines(c, svc)

	var serverConfig Server
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", "7001")

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(ctxShutdown); err != nil {
		log.Print(nil).Error(err.Error())
	}

	c.Stop()
	svc.Stop()
	engine.Shutdown()
}
