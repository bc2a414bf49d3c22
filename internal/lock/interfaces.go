// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks can be used.
package lock

import (
	"context"
	"time"
)

// Locker defines the interface for distributed/local locking.
// This abstraction allows switching between in-memory locks (single-node)
// and Redis-based locks (distributed) without changing business logic.
//
// Acquire hands back an opaque token identifying this acquisition;
// callers must pass it to Release/Extend so a holder can never affect a
// lock it no longer owns — e.g. after its own TTL expired and a
// different caller acquired the same key in the meantime.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns a token identifying this acquisition and true if the lock
	// was acquired, or a zero token and false if it's held by another
	// holder. The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (token string, acquired bool, err error)

	// Release releases a lock previously acquired with the given token.
	// Returns true if the lock was released, false if it wasn't held by
	// this token (already expired, released, or held by someone else).
	Release(ctx context.Context, key, token string) (bool, error)

	// Extend extends the TTL of a lock previously acquired with the
	// given token. Returns true if extended, false if it's not held by
	// this token.
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held by anyone.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock is a convenience wrapper for a specific lock instance.
type Lock struct {
	locker Locker
	key    string
	token  string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
		held:   false,
	}
}

// Acquire attempts to acquire the lock.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token, acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	l.token = token
	return acquired, nil
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key, l.token)
	l.held = false
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, l.token, ttl)
	if err != nil {
		return err
	}
	if !extended {
		l.held = false
	}
	return nil
}

// IsHeld returns whether the lock is held.
func (l *Lock) IsHeld() bool {
	return l.held
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Resource returns the lock key guarding reads and writes of a single
// resource's cache entry, identified by its cache key.
func (lockKeys) Resource(cacheKey string) string {
	return "lock:resource:" + cacheKey
}

// Sync returns a lock key for a whole scheduler tick. The rescache
// scheduler does not acquire it; it locks each resource key on its own.
func (lockKeys) Sync() string {
	return "lock:sync"
}
