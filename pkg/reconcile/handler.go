package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/registry"
)

// Handler runs Sync for sync target assets, reading the source and destination
// handles from the run resources.
type Handler struct {
	reconciler     *Reconciler
	sourceResource string
	destResource   string
}

func NewHandler(reconciler *Reconciler, sourceResource, destResource string) *Handler {
	return &Handler{reconciler: reconciler, sourceResource: sourceResource, destResource: destResource}
}

func (h *Handler) Execute(ctx context.Context, execCtx registry.ExecutionContext, logger *slog.Logger) (registry.Result, error) {
	target, ok := execCtx.Asset.Producer.(models.SyncTarget)
	if !ok {
		return registry.Result{}, fmt.Errorf("asset %s is not a sync target", execCtx.Asset.Key)
	}

	src, ok := execCtx.Resources[h.sourceResource].(SourceHandle)
	if !ok {
		return registry.Result{}, fmt.Errorf("%w: %s", ErrMissingResource, h.sourceResource)
	}

	dst, ok := execCtx.Resources[h.destResource].(DestHandle)
	if !ok {
		return registry.Result{}, fmt.Errorf("%w: %s", ErrMissingResource, h.destResource)
	}

	logger.InfoContext(ctx, "Running sync for table", "table", target.Table)

	result, err := h.reconciler.Sync(ctx, src, dst, target.Table)
	if err != nil {
		return registry.Result{}, err
	}

	return registry.Result{Metadata: map[string]string{
		"rows_loaded": strconv.FormatInt(result.RowsLoaded, 10),
		"destination": result.Destination,
	}}, nil
}
