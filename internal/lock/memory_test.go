package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerAcquireRelease(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "k1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, got ok=%v err=%v", ok, err)
	}

	_, ok, err = m.Acquire(ctx, "k1", time.Second)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail while held, got ok=%v err=%v", ok, err)
	}

	released, err := m.Release(ctx, "k1", token)
	if err != nil || !released {
		t.Fatalf("expected release to succeed, got released=%v err=%v", released, err)
	}

	_, ok, err = m.Acquire(ctx, "k1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryLockerReleaseRejectsForeignToken(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "k1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, got ok=%v err=%v", ok, err)
	}

	released, err := m.Release(ctx, "k1", "not-the-real-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatalf("expected release with a foreign token to fail")
	}

	held, _ := m.IsHeld(ctx, "k1")
	if !held {
		t.Fatalf("expected lock to still be held")
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	_, ok, _ := m.Acquire(ctx, "k1", 10*time.Millisecond)
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	time.Sleep(30 * time.Millisecond)

	_, ok, err := m.Acquire(ctx, "k1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected acquire after expiry to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryLockerExpiredEntryCannotBeReleasedByOriginalHolder(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	token, ok, _ := m.Acquire(ctx, "k1", 10*time.Millisecond)
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	time.Sleep(30 * time.Millisecond)

	newToken, ok, err := m.Acquire(ctx, "k1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected a new holder to acquire after expiry, got ok=%v err=%v", ok, err)
	}

	// The original holder's stale token must not clear the new holder's lock.
	released, err := m.Release(ctx, "k1", token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatalf("expected the expired holder's release to be rejected")
	}

	held, _ := m.IsHeld(ctx, "k1")
	if !held {
		t.Fatalf("expected the new holder's lock to still be held")
	}

	released, err = m.Release(ctx, "k1", newToken)
	if err != nil || !released {
		t.Fatalf("expected the new holder's own release to succeed, got released=%v err=%v", released, err)
	}
}

func TestMemoryLockerIsHeld(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	held, _ := m.IsHeld(ctx, "k1")
	if held {
		t.Fatalf("expected not held before acquire")
	}

	_, _, _ = m.Acquire(ctx, "k1", time.Second)
	held, _ = m.IsHeld(ctx, "k1")
	if !held {
		t.Fatalf("expected held after acquire")
	}
}

func TestMemoryLockerExtend(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	token, _, _ := m.Acquire(ctx, "k1", 20*time.Millisecond)
	extended, err := m.Extend(ctx, "k1", token, time.Second)
	if err != nil || !extended {
		t.Fatalf("expected extend to succeed, got extended=%v err=%v", extended, err)
	}

	time.Sleep(40 * time.Millisecond)
	held, _ := m.IsHeld(ctx, "k1")
	if !held {
		t.Fatalf("expected lock to still be held after extend past original TTL")
	}
}

func TestMemoryLockerAcquireWithRetry(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	_, _, _ = m.Acquire(ctx, "k1", 30*time.Millisecond)

	_, ok, err := m.AcquireWithRetry(ctx, "k1", time.Second, 5, 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected retry to eventually acquire once TTL expires, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryLockerCloseStopsCleanupLoop(t *testing.T) {
	m := NewMemoryLocker()

	if err := m.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}

	// A second Close must not panic on an already-closed channel.
	if err := m.Close(); err != nil {
		t.Fatalf("expected repeated close to be a no-op, got %v", err)
	}
}

func TestServiceCloseStopsUnderlyingMemoryLocker(t *testing.T) {
	svc := NewService(NewMemoryLocker())

	if err := svc.Close(); err != nil {
		t.Fatalf("expected service close to succeed, got %v", err)
	}
}
