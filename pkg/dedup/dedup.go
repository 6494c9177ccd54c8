// Package dedup claims run deduplication keys so that logically identical
// run requests collapse to one enqueued execution within a window.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

var ErrUnsupportedURL = errors.New("unsupported dedup store url")

// Store claims keys atomically. Claim reports false when key is already held
// and its window has not elapsed.
type Store interface {
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Close() error
}

// NewStore opens the store named by rawURL: "memory://" or "redis://...".
func NewStore(ctx context.Context, rawURL string) (Store, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}

	switch parsed.Scheme {
	case "", "memory":
		return NewMemoryStore(time.Now), nil
	case "redis", "rediss":
		return NewRedisStoreFromURL(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, parsed.Scheme)
	}
}

// MemoryStore keeps claims in process. Expired claims are dropped lazily.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[string]time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now, claims: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiresAt, held := s.claims[key]; held && now.Before(expiresAt) {
		return false, nil
	}

	s.claims[key] = now.Add(window)

	if len(s.claims)%1024 == 0 {
		s.sweep(now)
	}

	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, key)

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, expiresAt := range s.claims {
		if !now.Before(expiresAt) {
			delete(s.claims, key)
		}
	}
}
