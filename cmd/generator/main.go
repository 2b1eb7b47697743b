// Generator - the core bus-consuming pipeline. Loads conversation state,
// personalizes new sessions, drives the LLM's streaming + tool-calling loop,
// and finalizes each turn into the hot cache before publishing a completion
// event.
//
// STARTUP SEQUENCE:
// 1. Load configuration and logging
// 2. Connect to the bus, hot cache, LLM client and Memory Reader collaborator
// 3. Size a worker pool from MAX_CONCURRENCY
// 4. Open the durable pull consumer and fan work out across the pool
// 5. On SIGTERM/SIGINT, drain the pool within the generator grace period
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chatpipe/chatpipe/internal/bus"
	"github.com/chatpipe/chatpipe/internal/cache"
	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/generator"
	"github.com/chatpipe/chatpipe/internal/llm"
	"github.com/chatpipe/chatpipe/internal/memoryclient"
	"github.com/chatpipe/chatpipe/internal/store"
	"github.com/chatpipe/chatpipe/internal/workers"
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

	db, err := store.Connect(cfg.Store)
	if err != nil {
		log.Fatal("failed to connect to store:", err)
	}
	defer db.Close()

	llmClient := llm.New(cfg.LLM)
	memoryClient := memoryclient.New(cfg.Memory)

	worker := generator.NewWorker(b, hotCache, db, llmClient, memoryClient, time.Duration(cfg.Memory.APITimeoutSecs*float64(time.Second)))
	pool := workers.NewPool("generator", cfg.Worker.MaxConcurrency)

	sub, err := b.UserMessageConsumer()
	if err != nil {
		log.Fatal("failed to open user-messages consumer:", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.Consume(runCtx, sub, func(ctx context.Context, data []byte) error {
			var handleErr error
			done := make(chan struct{})
			pool.Submit(func() {
				defer close(done)
				handleErr = worker.HandleEnvelope(ctx, data)
			})
			<-done
			return handleErr
		})
	}()

	slog.Info("generator started", "max_concurrency", cfg.Worker.MaxConcurrency)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down generator, draining in-flight turns", "grace_seconds", cfg.Shutdown.GeneratorGraceSeconds)
	cancel()

	graceCtx, graceCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.GeneratorGraceSeconds)*time.Second)
	defer graceCancel()
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-graceCtx.Done():
		slog.Warn("generator grace period elapsed before worker loop drained")
	}

	pool.Shutdown()
	slog.Info("generator shutdown complete")
}
