package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Consume pulls batches from sub in a loop until ctx is cancelled, invoking
// handle for each message. A nil error acks; a retryable *errors.AppError
// (or any error, conservatively) leaves the message unacked for broker
// redelivery up to MaxDeliver before it dead-letters. Each call fetches one
// message at a time and handles it before fetching the next. The consumer
// binaries run a single Consume loop and wait for each submitted pool task,
// so they process one message at a time whatever MAX_CONCURRENCY is.
func Consume(ctx context.Context, sub *nats.Subscription, handle func(context.Context, []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if err == nats.ErrTimeout || err == context.DeadlineExceeded {
				continue
			}
			slog.Warn("bus fetch failed", "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			if err := handle(ctx, msg.Data); err != nil {
				slog.Warn("message handling failed, leaving for redelivery", "error", err)
				continue
			}
			if err := msg.Ack(); err != nil {
				slog.Warn("ack failed", "error", err)
			}
		}
	}
}
