package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex()
	var (
		active  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "telegram:1")
			if !assert.NoError(t, err) {
				return
			}
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Zero(t, locks.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := NewKeyedMutex()
	unlockA, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
	assert.Equal(t, 1, locks.Len())
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	locks := NewKeyedMutex()
	unlock, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, locks.Len())
}

type fakeLockStore struct {
	mu      sync.Mutex
	values  map[string]string
	deletes int
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	f.deletes++
	return true, nil
}

func (f *fakeLockStore) LockKey(scope, id string) string {
	return "platefull:lock:" + scope + ":" + id
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	store := newFakeLockStore()
	locker, err := NewRedisLocker(store, time.Minute)
	require.NoError(t, err)
	locker.retry = time.Millisecond

	unlock, err := locker.Lock(context.Background(), "telegram:1")
	require.NoError(t, err)
	assert.Contains(t, store.values, "platefull:lock:turn:telegram:1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "telegram:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Empty(t, store.values)
	assert.Equal(t, 1, store.deletes)

	unlock, err = locker.Lock(context.Background(), "telegram:1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerDoesNotReleaseForeignOwner(t *testing.T) {
	store := newFakeLockStore()
	locker, err := NewRedisLocker(store, time.Minute)
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), "telegram:1")
	require.NoError(t, err)
	// the key expired and another instance took it
	store.values["platefull:lock:turn:telegram:1"] = "someone-else"

	unlock()
	assert.Equal(t, "someone-else", store.values["platefull:lock:turn:telegram:1"])
}

func TestNewRedisLockerRequiresClient(t *testing.T) {
	_, err := NewRedisLocker(nil, time.Second)
	assert.Error(t, err)
}
