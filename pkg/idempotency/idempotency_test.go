package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "plate:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMark_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	seen, err := manager.CheckAndMark(context.Background(), "turn", "upd-1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if seen {
		t.Fatal("first delivery must not be reported as duplicate")
	}
	if store.lastKey != "plate:idempotency:turn:upd-1" {
		t.Fatalf("unexpected key %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}
}

func TestCheckAndMark_Duplicate(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXResult: false}, time.Hour)
	seen, err := manager.CheckAndMark(context.Background(), "turn", "upd-1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if !seen {
		t.Fatal("expected duplicate")
	}
}

func TestCheckAndMark_Errors(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXError: errors.New("down")}, time.Hour)
	if _, err := manager.CheckAndMark(context.Background(), "turn", "upd-1"); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := manager.CheckAndMark(context.Background(), "", "upd-1"); err == nil {
		t.Fatal("expected missing scope error")
	}
	if _, err := manager.CheckAndMark(context.Background(), "turn", ""); err == nil {
		t.Fatal("expected missing id error")
	}
}

func TestForget(t *testing.T) {
	store := &fakeStore{}
	manager, _ := NewManager(store, time.Hour)
	if err := manager.Forget(context.Background(), "turn", "upd-9"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if store.lastDeleted != "plate:idempotency:turn:upd-9" {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(&fakeStore{}, -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
