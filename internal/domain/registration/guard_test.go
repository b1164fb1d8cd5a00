package registration

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestMemorySaveGuard(t *testing.T) {
	g := NewMemorySaveGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := g.Acquire(ctx, "p1"); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	other, err := g.Acquire(ctx, "p2")
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	defer other()

	release()
	release()

	again, err := g.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestMemorySaveGuard_Concurrent(t *testing.T) {
	g := NewMemorySaveGuard()
	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		start    = make(chan struct{})
	)
	releases := make(chan func(), 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if release, err := g.Acquire(context.Background(), "same"); err == nil {
				acquired.Add(1)
				releases <- release
			}
		}()
	}
	close(start)
	wg.Wait()
	close(releases)

	if n := acquired.Load(); n != 1 {
		t.Errorf("expected exactly one holder, got %d", n)
	}
	for r := range releases {
		r()
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisSaveGuard_AcquireBusyRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	g := NewRedisSaveGuard(client, 30*time.Second, zerolog.Nop())
	ctx := context.Background()
	lockKey := saveLockKeyPrefix + "p1"

	release, err := g.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mr.Exists(lockKey) {
		t.Fatalf("lock key %s not set", lockKey)
	}
	if ttl := mr.TTL(lockKey); ttl != 30*time.Second {
		t.Errorf("lock ttl = %v, want 30s", ttl)
	}

	if _, err := g.Acquire(ctx, "p1"); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	other, err := g.Acquire(ctx, "p2")
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	other()

	release()
	if mr.Exists(lockKey) {
		t.Fatal("lock still held after release")
	}
	again, err := g.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestRedisSaveGuard_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	var logs bytes.Buffer
	g := NewRedisSaveGuard(client, time.Minute, zerolog.New(&logs))
	lockKey := saveLockKeyPrefix + "p1"

	release, err := g.Acquire(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Our lock lapsed and another instance took the key.
	if err := mr.Set(lockKey, "other-instance"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}

	release()

	got, err := mr.Get(lockKey)
	if err != nil || got != "other-instance" {
		t.Errorf("foreign lock was removed: %q, %v", got, err)
	}
	if !strings.Contains(logs.String(), "save lock expired before release") {
		t.Errorf("expected expiry warning, got %q", logs.String())
	}
}

func TestRedisSaveGuard_ReleaseFailureIsLogged(t *testing.T) {
	mr, client := newTestRedis(t)
	var logs bytes.Buffer
	g := NewRedisSaveGuard(client, time.Minute, zerolog.New(&logs))

	release, err := g.Acquire(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.SetError("connection lost")
	release()
	mr.SetError("")

	if !strings.Contains(logs.String(), "failed to release save lock") {
		t.Errorf("expected release error to be logged, got %q", logs.String())
	}
}

func TestRedisSaveGuard_BackendError(t *testing.T) {
	mr, client := newTestRedis(t)
	g := NewRedisSaveGuard(client, time.Minute, zerolog.Nop())
	mr.SetError("unavailable")

	_, err := g.Acquire(context.Background(), "p1")
	if err == nil || errors.Is(err, ErrSaveInProgress) {
		t.Errorf("expected backend error, got %v", err)
	}
}
