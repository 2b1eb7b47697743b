// Package store is the durable document store: Postgres with pgvector,
// reached through pgx so the ConversationSummary vector column can use
// pgvector-go's type mapping directly (see DESIGN.md). Three logical
// partitions, all keyed or indexed by userId:
//
//   - history_conversations — full transcripts, written by History Writer,
//     read by History Reader.
//   - memory_conversations — ConversationSummary + vector_embedding, written
//     by Memory Writer, read by Memory Reader's vector search.
//   - user_memories — one UserProfile per userId.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/errors"
)

// Store holds the connection pool shared by every repository in this
// package.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pgx pool and verifies connectivity with a short,
// 3-attempt retry loop to tolerate container startup ordering.
func Connect(cfg config.StoreConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.ErrMissingEnvVar, "STORE_URL environment variable is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.New(errors.ErrStoreError, fmt.Sprintf("failed to parse store URL: %v", err))
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.MaxIdleTime) * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.New(errors.ErrStoreError, fmt.Sprintf("failed to open store connection: %v", err))
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := pool.Ping(ctx); err != nil {
			lastErr = err
			if attempt < 3 {
				time.Sleep(2 * time.Second)
				continue
			}
		} else {
			lastErr = nil
			break
		}
	}
	if lastErr != nil {
		pool.Close()
		return nil, errors.New(errors.ErrStoreError, fmt.Sprintf("failed to connect to store after 3 attempts: %v", lastErr))
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool's connections.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema as an idempotent pass. None of the
// cmd/* binaries calls it at startup, so the schema must already exist
// (or Migrate be run separately) before they connect.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.New(errors.ErrStoreError, fmt.Sprintf("migration failed: %v", err))
		}
	}
	return nil
}
