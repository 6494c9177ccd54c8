// Package registry dispatches asset execution on the producer kind.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/assetflow/pkg/models"
)

var ErrHandlerNotRegistered = errors.New("no handler registered for unit kind")

// ExecutionContext is what a handler gets to know about the run it is part of.
type ExecutionContext struct {
	RunID     string
	JobName   string
	Asset     *models.Asset
	Resources map[string]any
	Metadata  map[string]string
}

// Result is attached to the materialization of the asset.
type Result struct {
	Metadata map[string]string
}

type Handler interface {
	Execute(ctx context.Context, execCtx ExecutionContext, logger *slog.Logger) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, execCtx ExecutionContext, logger *slog.Logger) (Result, error)

func (f HandlerFunc) Execute(ctx context.Context, execCtx ExecutionContext, logger *slog.Logger) (Result, error) {
	return f(ctx, execCtx, logger)
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.UnitKind]Handler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log,
		handlers: make(map[models.UnitKind]Handler),
	}
}

// Register replaces any handler previously registered for kind.
func (r *Registry) Register(kind models.UnitKind, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[kind] = handler
}

func (r *Registry) Handler(kind models.UnitKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, kind)
	}

	return handler, nil
}

// Execute runs the handler registered for the kind of execCtx.Asset.
func (r *Registry) Execute(ctx context.Context, execCtx ExecutionContext) (Result, error) {
	kind := execCtx.Asset.Kind()

	handler, err := r.Handler(kind)
	if err != nil {
		return Result{}, err
	}

	logger := r.logger.With(
		"asset", execCtx.Asset.Key.String(),
		"kind", kind,
		"run_id", execCtx.RunID,
		"job", execCtx.JobName)

	return handler.Execute(ctx, execCtx, logger)
}

// Kinds lists the registered kinds in lexical order.
func (r *Registry) Kinds() []models.UnitKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.UnitKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}

	slices.Sort(kinds)

	return kinds
}
