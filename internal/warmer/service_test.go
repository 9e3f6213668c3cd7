package warmer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/veloxcart/catalog-cache/pkg/logger"
)

type memoryLockStore struct {
	values map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryLockStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.values[key]
	return ok, nil
}

type stubCache struct {
	calls int
	err   error
}

func (s *stubCache) WarmUpCacheTable(context.Context) error {
	s.calls++
	return s.err
}

type stubLock struct {
	locked   bool
	acquires int
	releases int
}

func (s *stubLock) Acquire(context.Context) (bool, error) {
	s.acquires++
	return s.locked, nil
}

func (s *stubLock) Release(context.Context) error {
	s.releases++
	return nil
}

func (s *stubLock) Held(context.Context) (bool, error) { return s.locked, nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestRedisLockAcquireReleaseCycle(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "catalog:warmer:lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	held, err := lock.Held(ctx)
	if err != nil || !held {
		t.Fatalf("expected held lock, got held=%v err=%v", held, err)
	}

	second, err := NewRedisLock(store, "catalog:warmer:lock", time.Minute)
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire must fail: ok=%v err=%v", ok, err)
	}

	// a non-owner release keeps the lock
	if err := second.Release(ctx); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if held, _ := lock.Held(ctx); !held {
		t.Fatal("non-owner release must not free the lock")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if held, _ := lock.Held(ctx); held {
		t.Fatal("owner release must free the lock")
	}
}

func TestRunCycleWarmsUnderLock(t *testing.T) {
	cache := &stubCache{}
	lock := &stubLock{locked: true}
	service, err := NewService(Params{Logger: testLogger(), Cache: cache, Lock: lock})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if cache.calls != 1 {
		t.Fatalf("expected one warm-up, got %d", cache.calls)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released, got %d releases", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	cache := &stubCache{}
	lock := &stubLock{locked: false}
	service, err := NewService(Params{Logger: testLogger(), Cache: cache, Lock: lock})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if cache.calls != 0 {
		t.Fatalf("expected no warm-up, got %d", cache.calls)
	}
	if lock.releases != 0 {
		t.Fatalf("lock must not be released when never acquired, got %d", lock.releases)
	}
}

func TestRunCycleReleasesLockOnFailure(t *testing.T) {
	cache := &stubCache{err: errors.New("boom")}
	lock := &stubLock{locked: true}
	service, err := NewService(Params{Logger: testLogger(), Cache: cache, Lock: lock})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := service.runCycle(context.Background()); err == nil {
		t.Fatal("expected warm-up error")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released after failure, got %d", lock.releases)
	}
}
