// Package identity provides a pluggable user registry: authentication
// happens upstream of this system, which only needs to know whether a
// userId is one it should accept work for.
package identity

import (
	"context"
	"sync"

	"github.com/chatpipe/chatpipe/internal/errors"
)

// Registry answers "is this a userId Ingress should accept?" Swappable for a
// real identity provider lookup without touching Ingress's handler code.
type Registry interface {
	IsKnownUser(ctx context.Context, userID string) (bool, error)
}

// StaticRegistry is seeded from config.IdentityConfig.KnownUsers. An empty
// list means "accept any non-empty userId", matching local/dev runs where no
// upstream identity provider is configured.
type StaticRegistry struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewStaticRegistry(knownUsers []string) *StaticRegistry {
	users := make(map[string]struct{}, len(knownUsers))
	for _, u := range knownUsers {
		users[u] = struct{}{}
	}
	return &StaticRegistry{users: users}
}

func (r *StaticRegistry) IsKnownUser(_ context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.users) == 0 {
		return true, nil
	}
	_, ok := r.users[userID]
	return ok, nil
}

// Add registers a userId at runtime; used by tests; no HTTP endpoint
// exposes it.
func (r *StaticRegistry) Add(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = struct{}{}
}

// Require validates userID against reg, returning an ErrUserUnknown AppError
// suitable for direct return from a Fiber handler.
func Require(ctx context.Context, reg Registry, userID string) error {
	known, err := reg.IsKnownUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternalServer)
	}
	if !known {
		return errors.New(errors.ErrUserUnknown, "unknown user")
	}
	return nil
}
