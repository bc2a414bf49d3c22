// Package localcache provides an in-process sharedcache.Store, adapted
// from the in-memory cache used for single-node deployments where Redis
// is not available. It is NOT suitable for distributed deployments: state
// lives only in this process's memory.
package localcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prn-tf/rescache/internal/sharedcache"
)

type hashEntry struct {
	fields    map[string]string
	expiresAt time.Time
	noExpiry  bool
}

func (e *hashEntry) isExpired() bool {
	if e.noExpiry {
		return false
	}
	return time.Now().After(e.expiresAt)
}

type queueMember struct {
	member string
	score  float64
}

// Store implements sharedcache.Store using in-memory maps. Safe for
// concurrent use.
type Store struct {
	mu     sync.Mutex
	hashes map[string]*hashEntry
	queues map[string][]queueMember

	stopCh  chan struct{}
	stopped bool
}

// New creates a new in-memory shared-cache store.
func New() *Store {
	s := &Store{
		hashes: make(map[string]*hashEntry),
		queues: make(map[string][]queueMember),
		stopCh: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.hashes {
		if entry.isExpired() {
			delete(s.hashes, key)
		}
	}
}

// Stop stops the background expiry sweep.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		close(s.stopCh)
		s.stopped = true
	}
}

// HashGetAll returns a copy of every field at key.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.hashes[key]
	if !ok || entry.isExpired() {
		return map[string]string{}, nil
	}

	out := make(map[string]string, len(entry.fields))
	for k, v := range entry.fields {
		out[k] = v
	}
	return out, nil
}

// HashSet merges fields into the hash at key.
func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.hashes[key]
	if !ok || entry.isExpired() {
		entry = &hashEntry{fields: make(map[string]string), noExpiry: true}
		s.hashes[key] = entry
	}

	for k, v := range fields {
		entry.fields[k] = v
	}
	return nil
}

// HashDelete removes key.
func (s *Store) HashDelete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.hashes, key)
	return nil
}

// Expire sets key's TTL.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.hashes[key]
	if !ok {
		return nil
	}

	entry.expiresAt = time.Now().Add(ttl)
	entry.noExpiry = false
	return nil
}

// Persist removes any TTL on key.
func (s *Store) Persist(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.hashes[key]
	if !ok {
		return nil
	}

	entry.noExpiry = true
	return nil
}

// HasTTL reports whether key currently carries an expiry.
func (s *Store) HasTTL(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.hashes[key]
	if !ok || entry.isExpired() {
		return false, nil
	}
	return !entry.noExpiry, nil
}

// QueueAdd schedules member at score, replacing any prior score.
func (s *Store) QueueAdd(ctx context.Context, queueKey, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.queues[queueKey]
	for i, m := range members {
		if m.member == member {
			members[i].score = score
			return nil
		}
	}

	s.queues[queueKey] = append(members, queueMember{member: member, score: score})
	return nil
}

// QueueRemove removes member from the queue.
func (s *Store) QueueRemove(ctx context.Context, queueKey, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.queues[queueKey]
	for i, m := range members {
		if m.member == member {
			s.queues[queueKey] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return nil
}

// QueuePopDue returns and removes up to limit members with score <= maxScore,
// in ascending score order.
func (s *Store) QueuePopDue(ctx context.Context, queueKey string, maxScore float64, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.queues[queueKey]
	sort.Slice(members, func(i, j int) bool { return members[i].score < members[j].score })

	var due []string
	var remaining []queueMember
	for _, m := range members {
		if m.score <= maxScore && (limit <= 0 || len(due) < limit) {
			due = append(due, m.member)
			continue
		}
		remaining = append(remaining, m)
	}

	s.queues[queueKey] = remaining
	return due, nil
}

// Ensure Store implements sharedcache.Store.
var _ sharedcache.Store = (*Store)(nil)
