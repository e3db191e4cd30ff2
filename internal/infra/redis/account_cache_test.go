package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/db/memstore"
	"entitlement-service/internal/infra/redis"
)

// fakeCache is an in-process RedisClient covering the calls the decorator makes.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	gets   int
	getErr error
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (f *fakeCache) Ping(context.Context) error { return nil }

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return nil
}

func (f *fakeCache) PTTL(context.Context, string) (time.Duration, error) { return 0, nil }

func (f *fakeCache) Close() error { return nil }

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// countingAccounts counts FindByID calls reaching the backing store.
type countingAccounts struct {
	repository.AccountRepository
	finds int
}

func (c *countingAccounts) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	c.finds++
	return c.AccountRepository.FindByID(ctx, tx, id)
}

func TestAccountCache_FindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("should serve the second read from cache", func(t *testing.T) {
		inner := &countingAccounts{AccountRepository: memstore.NewAccountRepo(memstore.New())}
		cache := newFakeCache()
		repo := redis.NewAccountRepoCacheDecorator(inner, cache, time.Minute, nil)

		if err := repo.GrantRole(ctx, repository.NoTX, "acct-1", model.RoleAdmin); err != nil {
			t.Fatalf("GrantRole: %v", err)
		}
		for i := 0; i < 3; i++ {
			a, err := repo.FindByID(ctx, repository.NoTX, "acct-1")
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			if !a.HasRole(model.RoleAdmin) {
				t.Errorf("expected admin role, got %v", a.Roles)
			}
		}
		if inner.finds != 1 {
			t.Errorf("expected 1 backing read, got %d", inner.finds)
		}
	})

	t.Run("should invalidate on grant", func(t *testing.T) {
		inner := &countingAccounts{AccountRepository: memstore.NewAccountRepo(memstore.New())}
		cache := newFakeCache()
		repo := redis.NewAccountRepoCacheDecorator(inner, cache, time.Minute, nil)

		_ = repo.GrantRole(ctx, repository.NoTX, "acct-1", "reader")
		_, _ = repo.FindByID(ctx, repository.NoTX, "acct-1")
		if !cache.has("account:id:acct-1") {
			t.Fatal("expected cache entry after read")
		}
		_ = repo.GrantRole(ctx, repository.NoTX, "acct-1", model.RoleAdmin)
		if cache.has("account:id:acct-1") {
			t.Fatal("expected grant to drop the cache entry")
		}
		a, _ := repo.FindByID(ctx, repository.NoTX, "acct-1")
		if !a.HasRole(model.RoleAdmin) {
			t.Errorf("expected fresh roles, got %v", a.Roles)
		}
	})

	t.Run("should fall through when the cache errors", func(t *testing.T) {
		inner := &countingAccounts{AccountRepository: memstore.NewAccountRepo(memstore.New())}
		cache := newFakeCache()
		cache.getErr = errors.New("connection refused")
		repo := redis.NewAccountRepoCacheDecorator(inner, cache, time.Minute, nil)

		_ = repo.GrantRole(ctx, repository.NoTX, "acct-1", model.RoleAdmin)
		if _, err := repo.FindByID(ctx, repository.NoTX, "acct-1"); err != nil {
			t.Fatalf("expected fall-through read, got %v", err)
		}
		if inner.finds != 1 {
			t.Errorf("expected backing read, got %d", inner.finds)
		}
	})

	t.Run("should not cache misses", func(t *testing.T) {
		inner := &countingAccounts{AccountRepository: memstore.NewAccountRepo(memstore.New())}
		cache := newFakeCache()
		repo := redis.NewAccountRepoCacheDecorator(inner, cache, time.Minute, nil)

		if _, err := repo.FindByID(ctx, repository.NoTX, "ghost"); err == nil {
			t.Fatal("expected an error for a missing account")
		}
		if cache.has("account:id:ghost") {
			t.Error("miss must not be cached")
		}
	})
}
