package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("not found")

// memoryStore is the fallback backend used when Redis is unreachable. It
// covers just the operations the cache needs, with lazy TTL eviction plus a
// background janitor.
type memoryStore struct {
	mu          sync.RWMutex
	values      map[string][]byte
	expirations map[string]time.Time

	janitorStop chan struct{}
	janitorDone chan struct{}
}

func newMemoryStore(janitorInterval time.Duration) *memoryStore {
	s := &memoryStore{
		values:      make(map[string][]byte),
		expirations: make(map[string]time.Time),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor(janitorInterval)
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *memoryStore) janitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *memoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			delete(s.values, key)
			delete(s.expirations, key)
		}
	}
}

// isExpired must be called with at least the read lock held.
func (s *memoryStore) isExpired(key string) bool {
	if expiry, exists := s.expirations[key]; exists {
		return time.Now().After(expiry)
	}
	return false
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	if ttl > 0 {
		s.expirations[key] = time.Now().Add(ttl)
	} else {
		delete(s.expirations, key)
	}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok || s.isExpired(key) {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			removed++
		}
		delete(s.values, key)
		delete(s.expirations, key)
	}
	return removed, nil
}

func (s *memoryStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, key := range keys {
		if _, ok := s.values[key]; ok && !s.isExpired(key) {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) Close() error {
	select {
	case <-s.janitorDone:
	default:
		close(s.janitorStop)
		<-s.janitorDone
	}
	return nil
}
