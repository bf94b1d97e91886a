package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/viant/asyncauth/clock"
)

// backend pairs a store with a way to move its notion of time forward.
type backend struct {
	name    string
	store   Store
	advance func(d time.Duration)
}

func newBackends(t *testing.T) []backend {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return []backend{
		{name: "memory", store: NewMemoryStore(fake), advance: fake.Advance},
		{name: "redis", store: NewRedisStore(rdb, "test:"), advance: mr.FastForward},
	}
}

func TestStore_PutGetTake(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			if err := b.store.Put(ctx, "s1", "verifier-1", time.Hour); err != nil {
				t.Fatalf("put: %v", err)
			}
			value, err := b.store.Get(ctx, "s1")
			assert.NoError(t, err)
			assert.Equal(t, "verifier-1", value)

			value, err = b.store.Take(ctx, "s1")
			assert.NoError(t, err)
			assert.Equal(t, "verifier-1", value)

			_, err = b.store.Take(ctx, "s1")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = b.store.Get(ctx, "s1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			if err := b.store.Put(ctx, "s2", "v", time.Minute); err != nil {
				t.Fatalf("put: %v", err)
			}
			b.advance(59 * time.Second)
			_, err := b.store.Get(ctx, "s2")
			assert.NoError(t, err)

			b.advance(2 * time.Second)
			_, err = b.store.Get(ctx, "s2")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ok, err := b.store.PutIfAbsent(ctx, "jti:1", "1", time.Minute)
			assert.NoError(t, err)
			assert.True(t, ok)

			ok, err = b.store.PutIfAbsent(ctx, "jti:1", "1", time.Minute)
			assert.NoError(t, err)
			assert.False(t, ok)

			b.advance(2 * time.Minute)
			ok, err = b.store.PutIfAbsent(ctx, "jti:1", "1", time.Minute)
			assert.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			assert.NoError(t, b.store.Delete(ctx, "missing"))
		})
	}
}

func TestStore_ConcurrentTake(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			if err := b.store.Put(ctx, "race", "v", time.Hour); err != nil {
				t.Fatalf("put: %v", err)
			}
			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := b.store.Take(ctx, "race"); err == nil {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			assert.EqualValues(t, 1, wins)
		})
	}
}

func TestRedisStore_String(t *testing.T) {
	s := NewRedisStore(nil, "")
	assert.Equal(t, "RedisStore{prefix=asyncauth:}", s.String())
}
