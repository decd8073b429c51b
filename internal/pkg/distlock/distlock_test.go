package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign-1", time.Minute)
	b := NewRedisLock(client, "campaign-1", time.Minute)

	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = b.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second holder acquired a held lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyOwner(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign-2", time.Minute)
	b := NewRedisLock(client, "campaign-2", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// A non-owner release must not free the lock.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("lock freed by non-owner release")
	}
}

func TestRedisLockSeparateKeys(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign-3", time.Minute)
	b := NewRedisLock(client, "campaign-4", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire campaign-3 failed")
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("different campaigns must not contend")
	}
}
