// Package bus wraps the NATS JetStream connection shared by every chatpipe
// binary. It models the system's three topics as JetStream streams:
//
//   - user-messages: one stream, one durable pull consumer per Generator
//     fleet in a shared queue group (competing-consumer, unordered).
//   - token-streams: one stream, subject-partitioned per sessionId
//     ("tokens.<sessionId>"); Egress opens an ephemeral ordered consumer
//     bound to the session's subject, giving per-session delivery order
//     without a broker-native "session" feature.
//   - message-completed: one stream, two independent durable consumers
//     (history-writer, memory-writer) so both writers see every event.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chatpipe/chatpipe/internal/config"
)

const (
	streamUserMessages = "USER_MESSAGES"
	streamTokens       = "TOKEN_STREAMS"
	streamCompleted    = "MESSAGE_COMPLETED"
)

// Bus owns the NATS connection and JetStream context used by all producers
// and consumers in this binary.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  config.BusConfig
}

// Connect dials the NATS cluster and ensures the three streams exist.
// Idempotent: safe to call once per binary at startup.
func Connect(cfg config.BusConfig) (*Bus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("chatpipe"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("bus reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	b := &Bus{conn: conn, js: js, cfg: cfg}
	if err := b.ensureStreams(); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("bus connection established", "url", cfg.URL)
	return b, nil
}

func (b *Bus) ensureStreams() error {
	streams := []struct {
		name     string
		subjects []string
	}{
		{streamUserMessages, []string{b.cfg.UserMessagesSubject}},
		{streamTokens, []string{b.cfg.TokenStreamsPrefix + ".>"}},
		{streamCompleted, []string{b.cfg.CompletedSubject}},
	}

	for _, s := range streams {
		_, err := b.js.StreamInfo(s.name)
		if err == nil {
			continue
		}
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:      s.name,
			Subjects:  s.subjects,
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
		})
		if err != nil {
			return fmt.Errorf("ensure stream %s: %w", s.name, err)
		}
	}
	return nil
}

// Close closes the underlying NATS connection without draining it.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	b.conn.Close()
	return nil
}

// TokenSubject returns the per-session subject used for token-streams.
func (b *Bus) TokenSubject(sessionID string) string {
	return b.cfg.TokenStreamsPrefix + "." + sessionID
}

// PublishUserMessage enqueues one envelope for competing Generator consumers.
func (b *Bus) PublishUserMessage(ctx context.Context, data []byte) error {
	_, err := b.js.Publish(b.cfg.UserMessagesSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish user-messages: %w", err)
	}
	return nil
}

// PublishToken publishes one token fragment (or the end-of-stream sentinel)
// on the subject owned by sessionID.
func (b *Bus) PublishToken(ctx context.Context, sessionID string, data []byte) error {
	_, err := b.js.Publish(b.TokenSubject(sessionID), data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish token-streams: %w", err)
	}
	return nil
}

// PublishCompletion publishes one completion event, fanning out to every
// durable consumer bound to message-completed.
func (b *Bus) PublishCompletion(ctx context.Context, data []byte) error {
	_, err := b.js.Publish(b.cfg.CompletedSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish message-completed: %w", err)
	}
	return nil
}

// UserMessageConsumer returns a durable pull subscription shared by every
// Generator replica via the configured queue group — competing-consumer,
// unordered across sessions.
func (b *Bus) UserMessageConsumer() (*nats.Subscription, error) {
	sub, err := b.js.PullSubscribe(b.cfg.UserMessagesSubject, b.cfg.UserMessagesQueue,
		nats.ManualAck(),
		nats.AckWait(5*time.Minute),
		nats.MaxDeliver(b.cfg.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe user-messages: %w", err)
	}
	return sub, nil
}

// CompletionConsumer returns a durable pull subscription for the named
// writer fleet (history-writer or memory-writer). Each name gets its own
// durable consumer so both writers observe every completion event
// independently.
func (b *Bus) CompletionConsumer(durableName string) (*nats.Subscription, error) {
	sub, err := b.js.PullSubscribe(b.cfg.CompletedSubject, durableName,
		nats.ManualAck(),
		nats.AckWait(time.Minute),
		nats.MaxDeliver(b.cfg.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe message-completed (%s): %w", durableName, err)
	}
	return sub, nil
}

// SessionReceiver opens an ephemeral ordered consumer bound to one
// sessionId's subject — the per-session serialized delivery Egress needs.
// It blocks until fragments appear rather than erroring on an empty stream,
// since Egress may connect before any token has been emitted. DeliverNew
// is required: the subject is reused across every turn of a session, and
// without it a fresh Egress connection would replay the stream's full
// retention window instead of only seeing fragments emitted from now on.
func (b *Bus) SessionReceiver(sessionID string) (*nats.Subscription, error) {
	sub, err := b.js.SubscribeSync(b.TokenSubject(sessionID), nats.OrderedConsumer(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("open session receiver for %s: %w", sessionID, err)
	}
	return sub, nil
}
