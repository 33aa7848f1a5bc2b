package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalLock_SingleHolder(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = %v, %v", ok, err)
	}
	if ok, _ := l.TryAcquire(ctx); ok {
		t.Fatal("second TryAcquire must fail while held")
	}
	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := l.TryAcquire(ctx); !ok {
		t.Error("lock should be free again after Release")
	}
}

func TestLocalLock_ReleaseWithoutHold(t *testing.T) {
	if err := NewLocalLock().Release(context.Background()); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}
}

func TestLocalLock_ConcurrentAcquire(t *testing.T) {
	l := NewLocalLock()
	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.TryAcquire(context.Background()); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", winners.Load())
	}
}

func TestLocalLock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocalLock().TryAcquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRedisLock_ReleaseWithoutHoldSkipsRedis(t *testing.T) {
	// Nothing listens here; any round trip would fail with a dial error.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	l := NewRedisLock(client, "review-monitor:lock:test", time.Minute)
	if err := l.Release(context.Background()); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}
}

func TestRedisLock_AcquireErrorIsReported(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	l := NewRedisLock(client, "review-monitor:lock:test", time.Minute)
	ok, err := l.TryAcquire(context.Background())
	if ok || err == nil {
		t.Errorf("expected connection error, got %v, %v", ok, err)
	}
	if err := l.Release(context.Background()); !errors.Is(err, ErrNotHeld) {
		t.Errorf("failed acquire must not leave a token behind, got %v", err)
	}
}
