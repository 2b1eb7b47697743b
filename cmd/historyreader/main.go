// History Reader - read-only HTTP surface over the document store's
// conversation-transcript partition: list, fetch messages, rename.
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

	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/historyreader"
	"github.com/chatpipe/chatpipe/internal/middleware"
	"github.com/chatpipe/chatpipe/internal/store"
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

	db, err := store.Connect(cfg.Store)
	if err != nil {
		log.Fatal("failed to connect to store:", err)
	}
	defer db.Close()

	handler := historyreader.NewHandler(db)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorHandler: middleware.ErrorHandler(),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{AllowOrigins: "*"}))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/users/:userId/conversations", handler.HandleListConversations)
	app.Get("/users/:userId/conversations/:sessionId/messages", handler.HandleGetMessages)
	app.Put("/users/:userId/conversations/:sessionId/title", handler.HandleUpdateTitle)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		slog.Info("shutting down history reader")
		db.Close()
		if err := app.Shutdown(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting history reader", "address", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("server failed to start", "error", err)
		log.Fatal(err)
	}
}
