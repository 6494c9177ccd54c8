// Package state records asset materializations and answers RunState queries
// for the policy evaluator.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dukex/assetflow/pkg/models"
)

var ErrUnsupportedURL = errors.New("unsupported state store url")

type Store interface {
	// RunState returns the observed state of key. Unknown assets have never materialized.
	RunState(ctx context.Context, key models.AssetKey) (models.RunState, error)
	RecordMaterialization(ctx context.Context, key models.AssetKey, runID string, at time.Time) error
	Close() error
}

// NewStore opens the store named by rawURL: "memory://" or "postgres://...".
func NewStore(ctx context.Context, logger *slog.Logger, rawURL string) (Store, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}

	switch parsed.Scheme {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, logger, rawURL)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, parsed.Scheme)
	}
}

type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.RunState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]models.RunState)}
}

func (s *MemoryStore) RunState(_ context.Context, key models.AssetKey) (models.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[key.String()]
	if !ok {
		return models.RunState{AssetKey: models.NewAssetKey(key...)}, nil
	}

	state.AssetKey = models.NewAssetKey(state.AssetKey...)

	return state, nil
}

// RecordMaterialization keeps the latest materialization; older reports are ignored.
func (s *MemoryStore) RecordMaterialization(_ context.Context, key models.AssetKey, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[key.String()]
	if ok && current.LastMaterializedAt.After(at) {
		return nil
	}

	s.states[key.String()] = models.RunState{
		AssetKey:           models.NewAssetKey(key...),
		HasMaterialized:    true,
		LastMaterializedAt: at.UTC(),
		LastRunID:          runID,
	}

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
