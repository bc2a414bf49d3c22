package lock

import (
	"context"
	"sync"
	"time"
)

// Default tuning for resource lock acquisition. A resource lock is held
// only for the duration of a single cache read-modify-write, so a short
// TTL and a handful of short retries are sufficient.
const (
	defaultTTL        = 5 * time.Second
	defaultMaxRetries = 10
	defaultRetryDelay = 50 * time.Millisecond
)

// Handle is a held lock, scoped to the call that acquired it. Callers
// must call Release when done, typically via defer.
type Handle struct {
	service  *Service
	key      string
	token    string
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Release stops the handle's keepalive renewal, if any, and releases the
// lock. Safe to call on a zero Handle (e.g. from the no-op path of
// TryLock) and safe to call more than once.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.service == nil {
		return nil
	}
	if h.stop != nil {
		h.stopOnce.Do(func() { close(h.stop) })
		<-h.done
	}
	_, err := h.service.locker.Release(ctx, h.key, h.token)
	return err
}

// keepAlive extends the lock at half its TTL until stopped, so a
// read-modify-write that runs longer than expected under ctx doesn't lose
// the lock out from under it. It gives up, leaving the lock to expire on
// its own, if two consecutive extends fail.
func (h *Handle) keepAlive(ctx context.Context, ttl time.Duration) {
	defer close(h.done)

	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := h.service.locker.Extend(ctx, h.key, h.token, ttl)
			if err != nil || !extended {
				failures++
				if failures >= 2 {
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// Service wraps a Locker with the resource cache's acquisition policy:
// blocking acquisition retries briefly, non-blocking acquisition does not.
type Service struct {
	locker     Locker
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewService creates a lock Service over locker using the default TTL
// and retry policy.
func NewService(locker Locker) *Service {
	return &Service{
		locker:     locker,
		ttl:        defaultTTL,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// Lock blocks, retrying up to maxRetries times retryDelay apart, until key
// is acquired or ctx is done. If key is still held after the last retry it
// returns context.DeadlineExceeded. The returned Handle renews its TTL in the background at half the TTL's
// interval, so a caller whose read-modify-write runs longer than the
// usual brief critical section doesn't have its lock expire and silently
// hand the key to a concurrent caller mid-operation.
func (s *Service) Lock(ctx context.Context, key string) (*Handle, error) {
	token, acquired, err := s.locker.AcquireWithRetry(ctx, key, s.ttl, s.maxRetries, s.retryDelay)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, context.DeadlineExceeded
	}
	h := &Handle{service: s, key: key, token: token, stop: make(chan struct{}), done: make(chan struct{})}
	go h.keepAlive(ctx, s.ttl)
	return h, nil
}

// TryLock makes a single, non-blocking acquisition attempt. It returns a
// nil Handle (not an error) when the key is already locked.
func (s *Service) TryLock(ctx context.Context, key string) (*Handle, error) {
	token, acquired, err := s.locker.Acquire(ctx, key, s.ttl)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}
	return &Handle{service: s, key: key, token: token}, nil
}

// closer is implemented by lockers that own background resources, such
// as MemoryLocker's expiry sweep goroutine.
type closer interface {
	Close() error
}

// Close releases any background resources held by the underlying
// locker. RedisLocker has none; MemoryLocker stops its expiry sweep.
func (s *Service) Close() error {
	if c, ok := s.locker.(closer); ok {
		return c.Close()
	}
	return nil
}
