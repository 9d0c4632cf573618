package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedisStore struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeRedisStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] != value {
		return false, nil
	}
	delete(f.keys, key)
	return true, nil
}

func (f *fakeRedisStore) LockKey(scope, id string) string {
	return "platefull:lock:" + scope + ":" + id
}

func TestRedisLockSingleOwner(t *testing.T) {
	store := newFakeRedisStore()
	first, err := NewRedisLock(store, "cron-worker", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron-worker", 0)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttls["platefull:lock:cron:cron-worker"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// releasing a lock we never won must not free the holder's key
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.keys, "platefull:lock:cron:cron-worker")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockRequiresName(t *testing.T) {
	_, err := NewRedisLock(newFakeRedisStore(), "", time.Minute)
	assert.Error(t, err)
}

func TestLocalLock(t *testing.T) {
	var lock LocalLock
	ctx := context.Background()

	ok, _ := lock.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = lock.Acquire(ctx)
	assert.False(t, ok)
	require.NoError(t, lock.Release(ctx))
	ok, _ = lock.Acquire(ctx)
	assert.True(t, ok)
}
