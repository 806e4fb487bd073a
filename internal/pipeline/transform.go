package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
)

// SchemaEnsurer brings the staging schema up to date before any data change.
type SchemaEnsurer interface {
	Ensure(ctx context.Context) error
}

// RawReader reads raw events whose time falls inside a window.
type RawReader interface {
	ReadWindow(ctx context.Context, w domain.Window) ([]domain.RawEvent, error)
}

// StagingWriter replaces staging rows. Each method is its own transaction.
type StagingWriter interface {
	DeleteWindow(ctx context.Context, w domain.Window) (int64, error)
	InsertEvents(ctx context.Context, events []domain.StagingEvent) ([]domain.StagingEvent, error)
}

// TransformResult describes one windowed re-population.
type TransformResult struct {
	Window         domain.Window
	Deleted        int64
	Read           int
	Inserted       []domain.StagingEvent
	Fallbacks      int
	UnknownRegions int
}

// WindowedTransformer re-derives the staging rows of a window from raw data:
// ensure schema, delete the window, read raw rows, normalize, insert.
type WindowedTransformer struct {
	schema  SchemaEnsurer
	raw     RawReader
	staging StagingWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWindowedTransformer creates a WindowedTransformer.
func NewWindowedTransformer(schema SchemaEnsurer, raw RawReader, staging StagingWriter, logger *slog.Logger, metrics *observability.Metrics) *WindowedTransformer {
	return &WindowedTransformer{
		schema:  schema,
		raw:     raw,
		staging: staging,
		logger:  logger,
		metrics: metrics,
	}
}

// Run transforms the window and returns the number of rows inserted.
func (t *WindowedTransformer) Run(ctx context.Context, w domain.Window) (int, error) {
	res, err := t.Transform(ctx, w)
	if err != nil {
		return 0, err
	}
	return len(res.Inserted), nil
}

// Transform runs the steps in order and stops at the first failure. A failure
// after the delete leaves the window empty or partial; the caller must re-run it.
func (t *WindowedTransformer) Transform(ctx context.Context, w domain.Window) (TransformResult, error) {
	res := TransformResult{Window: w}
	logger := t.logger.With("window", w.String())

	if err := t.schema.Ensure(ctx); err != nil {
		return res, err
	}

	deleted, err := t.staging.DeleteWindow(ctx, w)
	if err != nil {
		return res, err
	}
	res.Deleted = deleted
	t.metrics.StagingRowsDeleted.Add(float64(deleted))
	logger.Info("staging window cleared", "deleted", deleted)

	raws, err := t.raw.ReadWindow(ctx, w)
	if err != nil {
		return res, err
	}
	res.Read = len(raws)

	events := make([]domain.StagingEvent, 0, len(raws))
	for _, raw := range raws {
		ev, fallback := domain.NewStagingEvent(raw)
		if fallback {
			res.Fallbacks++
			logger.Warn("event time missing or out of range, using current time",
				"batch_id", raw.BatchID, "place", raw.Place)
		}
		if ev.Region == domain.UnknownRegion {
			res.UnknownRegions++
		}
		events = append(events, ev)
	}
	t.metrics.TimestampFallbacks.Add(float64(res.Fallbacks))
	t.metrics.UnknownRegions.Add(float64(res.UnknownRegions))

	inserted, err := t.staging.InsertEvents(ctx, events)
	if err != nil {
		return res, err
	}
	res.Inserted = inserted
	t.metrics.StagingRowsInserted.Add(float64(len(inserted)))

	logger.Info("window transformed",
		"read", res.Read,
		"inserted", len(inserted),
		"timestamp_fallbacks", res.Fallbacks,
		"unknown_regions", res.UnknownRegions,
	)
	return res, nil
}
