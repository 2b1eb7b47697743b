// Package cache is the hot cache: the sole mutable shared state for
// in-flight conversations. Only the Generator writes conversation keys;
// History Writer and Memory Writer only read.
//
// A Redis/Memory dual implementation generalized to the session-keyed
// Conversation documents this system caches, extended with a CAS
// in-flight lock and a short-lived token replay buffer for the Egress
// connect-after-complete race.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/models"
)

// Connect dials Redis and falls back to an in-process MemoryCache if the
// ping fails, so every binary that needs the hot cache shares the same
// fallback behavior instead of re-implementing it inline.
func Connect(cfg config.CacheConfig) Service {
	addr := cfg.URL
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis connection failed, falling back to memory cache", "error", err)
		client.Close()
		return NewMemoryCache()
	}
	slog.Info("redis connection established", "addr", addr)
	return NewRedisCache(client)
}

// Service is the abstraction every component depends on. Redis is the
// production implementation; Memory is a fallback for local runs and tests.
type Service interface {
	GetConversation(ctx context.Context, sessionID string) (*models.Conversation, error)
	PutConversation(ctx context.Context, conv *models.Conversation, ttl time.Duration) error

	// TryLockSession attempts to acquire the per-session in-flight CAS lock,
	// returning false if another worker already holds it.
	TryLockSession(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	UnlockSession(ctx context.Context, sessionID string) error

	// AppendReplay records a token fragment in the short replay buffer for
	// (sessionId, chatMessageId), and GetReplay returns whatever was buffered
	// so a late-connecting Egress client can catch up.
	AppendReplay(ctx context.Context, sessionID, chatMessageID string, payload []byte, ttl time.Duration) error
	GetReplay(ctx context.Context, sessionID, chatMessageID string) ([][]byte, error)

	Close() error
}

func conversationKey(sessionID string) string {
	return "session:" + sessionID
}

func lockKey(sessionID string) string {
	return "session:" + sessionID + ":lock"
}

func replayKey(sessionID, chatMessageID string) string {
	return "replay:" + sessionID + ":" + chatMessageID
}

// ============================================================================
// REDIS IMPLEMENTATION (PRIMARY)
// ============================================================================

// RedisCache is the production Service, backed by go-redis the same way the
// teacher's RedisCache wraps *redis.Client.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) GetConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	val, err := r.client.Get(ctx, conversationKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("conversation not cached: %s", sessionID)
		}
		return nil, err
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(val), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *RedisCache) PutConversation(ctx context.Context, conv *models.Conversation, ttl time.Duration) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, conversationKey(conv.SessionID), data, ttl).Err()
}

func (r *RedisCache) TryLockSession(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(sessionID), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisCache) UnlockSession(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, lockKey(sessionID)).Err()
}

func (r *RedisCache) AppendReplay(ctx context.Context, sessionID, chatMessageID string, payload []byte, ttl time.Duration) error {
	key := replayKey(sessionID, chatMessageID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisCache) GetReplay(ctx context.Context, sessionID, chatMessageID string) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, replayKey(sessionID, chatMessageID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// ============================================================================
// IN-MEMORY IMPLEMENTATION (FALLBACK)
// ============================================================================

// MemoryCache is used when Redis is unreachable at startup, and by tests.
// Guarded by a mutex since it's shared across many concurrent
// Generator/Writer goroutines.
type MemoryCache struct {
	mu       sync.Mutex
	convs    map[string]entry
	locks    map[string]time.Time
	replays  map[string][][]byte
}

type entry struct {
	conv *models.Conversation
	exp  time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		convs:   make(map[string]entry),
		locks:   make(map[string]time.Time),
		replays: make(map[string][][]byte),
	}
}

func (m *MemoryCache) GetConversation(_ context.Context, sessionID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.convs[sessionID]
	if !ok {
		return nil, fmt.Errorf("conversation not cached: %s", sessionID)
	}
	if time.Now().After(e.exp) {
		delete(m.convs, sessionID)
		return nil, fmt.Errorf("conversation expired: %s", sessionID)
	}
	return e.conv, nil
}

func (m *MemoryCache) PutConversation(_ context.Context, conv *models.Conversation, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.SessionID] = entry{conv: conv, exp: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) TryLockSession(_ context.Context, sessionID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.locks[sessionID]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.locks[sessionID] = time.Now().Add(ttl)
	return true, nil
}

func (m *MemoryCache) UnlockSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionID)
	return nil
}

func (m *MemoryCache) AppendReplay(_ context.Context, sessionID, chatMessageID string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := replayKey(sessionID, chatMessageID)
	m.replays[key] = append(m.replays[key], payload)
	return nil
}

func (m *MemoryCache) GetReplay(_ context.Context, sessionID, chatMessageID string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replays[replayKey(sessionID, chatMessageID)], nil
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = make(map[string]entry)
	m.locks = make(map[string]time.Time)
	m.replays = make(map[string][][]byte)
	return nil
}
