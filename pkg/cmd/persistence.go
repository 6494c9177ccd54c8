package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/assetflow/pkg/dedup"
	"github.com/dukex/assetflow/pkg/state"
)

// Stores bundles the run-state and deduplication stores of a process.
type Stores struct {
	State state.Store
	Dedup dedup.Store
}

func NewStores(ctx context.Context, logger *slog.Logger, stateURL, dedupURL string) (*Stores, error) {
	stateStore, err := state.NewStore(ctx, logger, stateURL)
	if err != nil {
		return nil, err
	}

	dedupStore, err := dedup.NewStore(ctx, dedupURL)
	if err != nil {
		_ = stateStore.Close()

		return nil, err
	}

	logger.Info("Opened stores", "state", redact(stateURL), "dedup", redact(dedupURL))

	return &Stores{State: stateStore, Dedup: dedupStore}, nil
}

func (s *Stores) Close() error {
	stateErr := s.State.Close()
	dedupErr := s.Dedup.Close()

	if stateErr != nil {
		return stateErr
	}

	return dedupErr
}
