package registry

import (
	"context"
	"log/slog"

	"github.com/dukex/assetflow/pkg/models"
)

// DryRunKey marks results of handlers that did not produce anything. The
// runner still records the materialization, so downstream sensors fire.
const DryRunKey = "dry_run"

// RegisterDefaults registers the handlers that need no external collaborator:
// source placeholders are observed, and the remaining kinds are logged as dry runs.
func (r *Registry) RegisterDefaults() {
	r.Register(models.UnitKindSourcePlaceholder, HandlerFunc(observeSource))
	r.Register(models.UnitKindExtract, NewLogHandler())
	r.Register(models.UnitKindReportGenerator, NewLogHandler())
	r.Register(models.UnitKindNotifier, NewLogHandler())
	r.Register(models.UnitKindDbt, NewLogHandler())
}

func observeSource(_ context.Context, execCtx ExecutionContext, logger *slog.Logger) (Result, error) {
	logger.Debug("Observed source asset", "asset", execCtx.Asset.Key.String())

	return Result{}, nil
}

// LogHandler records the execution request and succeeds without doing any work.
type LogHandler struct{}

func NewLogHandler() *LogHandler {
	return &LogHandler{}
}

func (h *LogHandler) Execute(ctx context.Context, execCtx ExecutionContext, logger *slog.Logger) (Result, error) {
	logger = logger.With("handler", "log")

	logger.InfoContext(ctx, "Executing asset as dry run",
		"producer", execCtx.Asset.Producer,
		"description", execCtx.Asset.Description)

	return Result{Metadata: map[string]string{"handler": "log", DryRunKey: "true"}}, nil
}
