// Ingress - HTTP entry point for chat submissions.
//
// Stateless by design: every request either validates against the identity
// registry or publishes one envelope to the bus, then returns. No database,
// no cache — scale-to-zero tolerant.
//
// STARTUP SEQUENCE:
// 1. Load configuration from environment variables
// 2. Initialize structured logging
// 3. Connect to the bus and ensure streams exist
// 4. Seed the identity registry
// 5. Configure Fiber, register routes
// 6. Start the server; on SIGTERM/SIGINT, close the bus connection and exit
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/chatpipe/chatpipe/internal/bus"
	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/identity"
	"github.com/chatpipe/chatpipe/internal/ingress"
	"github.com/chatpipe/chatpipe/internal/middleware"
)

func main() {
	// PHASE 1-2: CONFIGURATION AND LOGGING
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Server.Environment == "development" {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))

	// PHASE 3: BUS CONNECTION
	b, err := bus.Connect(cfg.Bus)
	if err != nil {
		log.Fatal("failed to connect to bus:", err)
	}
	defer b.Close()

	// PHASE 4: IDENTITY REGISTRY
	users := identity.NewStaticRegistry(cfg.Identity.KnownUsers)

	// PHASE 5: HTTP SERVER SETUP
	handler := ingress.NewHandler(b, users)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorHandler: middleware.ErrorHandler(),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", handler.HandleHealth)
	app.Post("/session/start", handler.HandleSessionStart)
	app.Post("/chat", handler.HandleChat)

	// PHASE 6: GRACEFUL SHUTDOWN
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		slog.Info("shutting down ingress")
		if err := b.Close(); err != nil {
			slog.Error("bus close error", "error", err)
		}
		if err := app.Shutdown(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		slog.Info("ingress shutdown complete")
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting ingress", "address", addr, "environment", cfg.Server.Environment)
	if err := app.Listen(addr); err != nil {
		slog.Error("server failed to start", "error", err)
		log.Fatal(err)
	}
}
