// History Writer - durable consumer of message-completed events. Persists
// the full transcript into the document store and lazily titles new
// conversations, independent of the Memory Writer's extraction pipeline.
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
	"github.com/chatpipe/chatpipe/internal/historywriter"
	"github.com/chatpipe/chatpipe/internal/llm"
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
	worker := historywriter.NewWorker(hotCache, db, llmClient)
	pool := workers.NewPool("history-writer", cfg.Worker.MaxConcurrency)

	sub, err := b.CompletionConsumer(cfg.Bus.HistoryConsumerName)
	if err != nil {
		log.Fatal("failed to open message-completed consumer:", err)
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
				handleErr = worker.HandleEvent(ctx, data)
			})
			<-done
			return handleErr
		})
	}()

	slog.Info("history writer started", "max_concurrency", cfg.Worker.MaxConcurrency)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down history writer", "grace_seconds", cfg.Shutdown.WriterGraceSeconds)
	cancel()

	graceCtx, graceCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.WriterGraceSeconds)*time.Second)
	defer graceCancel()
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-graceCtx.Done():
		slog.Warn("history writer grace period elapsed before worker loop drained")
	}

	pool.Shutdown()
	slog.Info("history writer shutdown complete")
}
