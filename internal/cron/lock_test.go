package cron

import (
	"context"
	"strings"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if v, ok := m.values[key]; !ok || v != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	ctx := context.Background()
	first, err := NewRedisLock(store, "cron:eventrentals", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron:eventrentals", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["cron:eventrentals"]; !held {
		t.Fatal("non-owner release dropped the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock should be free after owner release")
	}
}

func TestRedisLockValueNamesHolder(t *testing.T) {
	t.Setenv("EVENTRENTALS_INSTANCE_ID", "cron-2")
	store := &memoryStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "cron:eventrentals", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl %s got %s", defaultLockTTL, lock.ttl)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}
	if got := store.values["cron:eventrentals"]; !strings.HasPrefix(got, "cron-2/") {
		t.Fatalf("expected holder prefix cron-2/ got %q", got)
	}
}

func TestRedisLockReleaseLeavesTakenOverLease(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "cron:eventrentals", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	// lease expired and another replica took it over
	store.values["cron:eventrentals"] = "cron-9/other"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := store.values["cron:eventrentals"]; got != "cron-9/other" {
		t.Fatalf("foreign lease was touched: %q", got)
	}
}
