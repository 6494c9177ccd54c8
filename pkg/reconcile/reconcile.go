// Package reconcile copies one source table into the warehouse and makes sure
// the destination table exists afterwards, even when the source was empty.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/otelhelper"
	"github.com/dukex/assetflow/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SourceHandle describes a relational source connection.
type SourceHandle struct {
	Name string `json:"name"`
	DSN  string `json:"-"`
}

// DestHandle describes a warehouse dataset and the credentials to reach it.
type DestHandle struct {
	Name    string `json:"name"`
	DSN     string `json:"-"`
	Dataset string `json:"dataset"`
}

// LoadResult summarizes one copy.
type LoadResult struct {
	Table       string    `json:"table"`
	RowsLoaded  int64     `json:"rows_loaded"`
	Destination string    `json:"destination"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Copier performs a full-replace load of table from src into dst.
type Copier interface {
	RunCopy(ctx context.Context, src SourceHandle, dst DestHandle, table string) (LoadResult, error)
}

type SchemaInspector interface {
	InferSourceSchema(ctx context.Context, src SourceHandle, table string) (schema.Schema, error)
}

type Warehouse interface {
	TableExists(ctx context.Context, dst DestHandle, table string) (bool, error)
	CreateEmptyTable(ctx context.Context, dst DestHandle, table string, fields []schema.Field) error
}

type Reconciler struct {
	copier    Copier
	inspector SchemaInspector
	warehouse Warehouse
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

func New(copier Copier, inspector SchemaInspector, warehouse Warehouse, m *metrics.Metrics, tracer trace.Tracer, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		copier:    copier,
		inspector: inspector,
		warehouse: warehouse,
		metrics:   m,
		tracer:    tracer,
		logger:    logger.With("module", "sync_reconciler"),
	}
}

// Sync copies table and then reconciles destination existence.
//
// When the copy leaves no destination table (the source had zero rows), the
// source schema is inferred and an empty table is created with it. An empty
// inferred schema is logged and accepted. A cancelled copy returns an error
// without any reconciliation.
func (r *Reconciler) Sync(ctx context.Context, src SourceHandle, dst DestHandle, table string) (LoadResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "reconcile.sync",
		attribute.String(otelhelper.TableKey, table))
	defer span.End()

	logger := r.logger.With("table", table, "source", src.Name, "destination", dst.Name)
	logger.InfoContext(ctx, "Running sync pipeline")

	result, err := r.copier.RunCopy(ctx, src, dst, table)
	if err == nil {
		err = ctx.Err()
	}

	if err != nil {
		return r.fail(ctx, span, logger, &SyncError{Table: table, Op: OpRunCopy, Err: err})
	}

	logger.InfoContext(ctx, "Pipeline completed",
		"rows_loaded", result.RowsLoaded,
		"destination", result.Destination,
		"duration", result.FinishedAt.Sub(result.StartedAt))
	r.metrics.RecordRowsLoaded(table, result.RowsLoaded)

	exists, err := r.warehouse.TableExists(ctx, dst, table)
	if err != nil {
		return r.fail(ctx, span, logger, &SyncError{Table: table, Op: OpTableExists, Err: err})
	}

	if exists {
		logger.InfoContext(ctx, "Target table already exists")

		return result, nil
	}

	sourceSchema, err := r.inspector.InferSourceSchema(ctx, src, table)
	if err != nil {
		return r.fail(ctx, span, logger, &SyncError{Table: table, Op: OpInferSourceSchema, Err: err})
	}

	if len(sourceSchema) == 0 {
		logger.WarnContext(ctx, "Could not infer source schema, target table not created")

		return result, nil
	}

	fields := schema.ToWarehouse(sourceSchema)

	if err := r.warehouse.CreateEmptyTable(ctx, dst, table, fields); err != nil {
		return r.fail(ctx, span, logger, &SyncError{Table: table, Op: OpCreateEmptyTable, Err: err})
	}

	logger.InfoContext(ctx, "Created empty target table", "columns", len(fields))
	r.metrics.RecordTableCreated(table)

	return result, nil
}

func (r *Reconciler) fail(ctx context.Context, span trace.Span, logger *slog.Logger, err *SyncError) (LoadResult, error) {
	otelhelper.SetError(span, err, attribute.String("assetflow.sync.op", err.Op))
	logger.ErrorContext(ctx, "Sync failed", "op", err.Op, "error", err.Err)

	return LoadResult{}, err
}
