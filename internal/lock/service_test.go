package lock

import (
	"context"
	"testing"
	"time"
)

func TestServiceLockBlocksUntilReleased(t *testing.T) {
	svc := NewService(NewMemoryLocker())
	ctx := context.Background()

	handle, err := svc.Lock(ctx, "k1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	done := make(chan struct{})
	go func() {
		h2, err := svc.Lock(ctx, "k1")
		if err != nil {
			t.Errorf("second Lock: %v", err)
		}
		_ = h2.Release(ctx)
		close(done)
	}()

	if err := handle.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	<-done
}

func TestServiceTryLockNonBlocking(t *testing.T) {
	svc := NewService(NewMemoryLocker())
	ctx := context.Background()

	h1, err := svc.TryLock(ctx, "k1")
	if err != nil || h1 == nil {
		t.Fatalf("expected first TryLock to succeed, got handle=%v err=%v", h1, err)
	}

	h2, err := svc.TryLock(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2 != nil {
		t.Fatalf("expected second TryLock to return nil handle while held")
	}

	if err := h1.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	h3, err := svc.TryLock(ctx, "k1")
	if err != nil || h3 == nil {
		t.Fatalf("expected TryLock after release to succeed")
	}
	_ = h3.Release(ctx)
}

func TestHandleReleaseNilSafe(t *testing.T) {
	var h *Handle
	if err := h.Release(context.Background()); err != nil {
		t.Fatalf("expected nil handle release to be a no-op, got %v", err)
	}
}

func TestLockKeepAliveRenewsPastOriginalTTL(t *testing.T) {
	locker := NewMemoryLocker()
	svc := &Service{locker: locker, ttl: 40 * time.Millisecond, maxRetries: 2, retryDelay: 5 * time.Millisecond}
	ctx := context.Background()

	h, err := svc.Lock(ctx, "k1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Sleep well past the original TTL without ever calling Extend
	// ourselves; the handle's own keepalive goroutine must do it.
	time.Sleep(150 * time.Millisecond)

	held, err := locker.IsHeld(ctx, "k1")
	if err != nil {
		t.Fatalf("IsHeld: %v", err)
	}
	if !held {
		t.Fatalf("expected keepalive to have renewed the lock past its original TTL")
	}

	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	held, _ = locker.IsHeld(ctx, "k1")
	if held {
		t.Fatalf("expected release to stop keepalive and drop the lock")
	}
}

func TestHandleReleaseIdempotent(t *testing.T) {
	svc := NewService(NewMemoryLocker())
	ctx := context.Background()

	h, err := svc.TryLock(ctx, "k1")
	if err != nil || h == nil {
		t.Fatalf("expected TryLock to succeed")
	}

	if err := h.Release(ctx); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("second Release should also be safe: %v", err)
	}
}
