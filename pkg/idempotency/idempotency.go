package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msourial/platefull/pkg/redis"
)

// Manager remembers processed identifiers per scope using Redis SETNX with a TTL.
// Keys follow the `plate:idempotency:<scope>:<id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard that marks identifiers as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true if id was already seen in scope and otherwise marks
// it as seen with the configured TTL.
func (m *Manager) CheckAndMark(ctx context.Context, scope, id string) (bool, error) {
	key, err := m.key(scope, id)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !set, nil
}

// Forget clears a mark so a rejected delivery can be retried.
func (m *Manager) Forget(ctx context.Context, scope, id string) error {
	key, err := m.key(scope, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(scope, id string) (string, error) {
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if id == "" {
		return "", errors.New("id is required")
	}
	return m.store.IdempotencyKey(scope, id), nil
}
