// Egress - SSE streaming entry point.
//
// Opens long-lived SSE connections, reads session-partitioned token
// fragments off the bus, and forwards them filtered by chatMessageId.
// Stateless aside from the per-connection session receiver subscription.
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
	"github.com/chatpipe/chatpipe/internal/cache"
	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/egress"
	"github.com/chatpipe/chatpipe/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Server.Environment == "development" {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))

	b, err := bus.Connect(cfg.Bus)
	if err != nil {
		log.Fatal("failed to connect to bus:", err)
	}
	defer b.Close()

	hotCache := cache.Connect(cfg.Cache)
	defer hotCache.Close()

	idleLimit := 5 * time.Minute
	handler := egress.NewHandler(b, hotCache, idleLimit)

	app := fiber.New(fiber.Config{
		WriteTimeout: 0,
		ErrorHandler: middleware.ErrorHandler(),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{AllowOrigins: "*"}))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/stream/:sessionId/:chatMessageId", handler.HandleStream)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		slog.Info("shutting down egress")
		if err := b.Close(); err != nil {
			slog.Error("bus close error", "error", err)
		}
		if err := hotCache.Close(); err != nil {
			slog.Error("cache close error", "error", err)
		}
		if err := app.Shutdown(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting egress", "address", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("server failed to start", "error", err)
		log.Fatal(err)
	}
}
