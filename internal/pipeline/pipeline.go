package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/google/uuid"
)

// Stage names used in errors, logs, and the stage_duration_seconds label.
const (
	StageExtract   = "extract"
	StageLoad      = "load"
	StageTransform = "transform"
	StageStats     = "stats"
	StagePublish   = "publish"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// StageError reports which stage of a run failed and for which window.
// A failed transform leaves the window invalid until it is re-run.
type StageError struct {
	Stage  string
	Window domain.Window
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for window %s: %v", e.Stage, e.Window, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Extractor fetches raw events for a window from the upstream feed.
type Extractor interface {
	Extract(ctx context.Context, w domain.Window) ([]domain.RawEvent, error)
}

// BatchLoader replaces a raw batch.
type BatchLoader interface {
	ReplaceBatch(ctx context.Context, batchID string, events []domain.RawEvent) (int, error)
}

// WindowTransformer re-populates the staging rows of a window.
type WindowTransformer interface {
	Transform(ctx context.Context, w domain.Window) (TransformResult, error)
}

// StatsComputer summarizes the staging table.
type StatsComputer interface {
	Compute(ctx context.Context) (domain.Stats, error)
}

// Publisher forwards staged rows downstream.
type Publisher interface {
	Publish(ctx context.Context, events []domain.StagingEvent) error
}

// Stages wires the collaborators of a Pipeline. Publisher may be nil.
type Stages struct {
	Extractor   Extractor
	Loader      BatchLoader
	Transformer WindowTransformer
	Stats       StatsComputer
	Publisher   Publisher
}

// Report summarizes a completed or failed run.
type Report struct {
	RunID           uuid.UUID     `json:"run_id"`
	Window          domain.Window `json:"window"`
	BatchID         string        `json:"batch_id,omitempty"`
	Extracted       int           `json:"extracted"`
	Loaded          int           `json:"loaded"`
	Deleted         int64         `json:"deleted"`
	Transformed     int           `json:"transformed"`
	Fallbacks       int           `json:"timestamp_fallbacks"`
	UnknownRegions  int           `json:"unknown_regions"`
	Published       int           `json:"published"`
	Stats           *domain.Stats `json:"stats,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
}

// Pipeline orchestrates extract, load, transform, stats, and publish for a
// window. Only one run may be active at a time.
type Pipeline struct {
	stages      Stages
	processDays int
	logger      *slog.Logger
	metrics     *observability.Metrics
	running     atomic.Bool
}

// New creates a Pipeline. processDays sizes the window used by RunDefault.
func New(stages Stages, processDays int, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:      stages,
		processDays: processDays,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run extracts the window from the feed, replaces today's raw batch, and
// re-derives the window's staging rows.
func (p *Pipeline) Run(ctx context.Context, w domain.Window) (Report, error) {
	return p.run(ctx, w, true)
}

// RunTransform re-derives the window's staging rows from raw data already loaded.
func (p *Pipeline) RunTransform(ctx context.Context, w domain.Window) (Report, error) {
	return p.run(ctx, w, false)
}

// RunDefault runs the full pipeline over the trailing default window.
func (p *Pipeline) RunDefault(ctx context.Context) (Report, error) {
	return p.Run(ctx, p.DefaultWindow())
}

// DefaultWindow returns [today-processDays, today].
func (p *Pipeline) DefaultWindow() domain.Window {
	return domain.DefaultWindow(p.processDays)
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

func (p *Pipeline) run(ctx context.Context, w domain.Window, extract bool) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.RunsTotal.WithLabelValues("rejected").Inc()
		return Report{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report := Report{RunID: uuid.New(), Window: w}
	logger := p.logger.With("run_id", report.RunID.String(), "window", w.String())
	logger.Info("pipeline run started", "extract", extract)

	start := time.Now()
	err := p.execute(ctx, logger, &report, extract)
	report.DurationSeconds = time.Since(start).Seconds()

	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		logger.Error("pipeline run failed", "error", err, "duration", time.Since(start))
		return report, err
	}

	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	logger.Info("pipeline run complete",
		"loaded", report.Loaded,
		"transformed", report.Transformed,
		"timestamp_fallbacks", report.Fallbacks,
		"duration", time.Since(start),
	)
	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, logger *slog.Logger, report *Report, extract bool) error {
	w := report.Window

	if extract {
		var events []domain.RawEvent
		err := p.stage(ctx, StageExtract, w, func(ctx context.Context) error {
			var err error
			events, err = p.stages.Extractor.Extract(ctx, w)
			return err
		})
		if err != nil {
			return err
		}
		report.Extracted = len(events)

		report.BatchID = domain.BatchIDFor(domain.Now())
		err = p.stage(ctx, StageLoad, w, func(ctx context.Context) error {
			var err error
			report.Loaded, err = p.stages.Loader.ReplaceBatch(ctx, report.BatchID, events)
			return err
		})
		if err != nil {
			return err
		}
	}

	var result TransformResult
	err := p.stage(ctx, StageTransform, w, func(ctx context.Context) error {
		var err error
		result, err = p.stages.Transformer.Transform(ctx, w)
		return err
	})
	if err != nil {
		return err
	}
	report.Deleted = result.Deleted
	report.Transformed = len(result.Inserted)
	report.Fallbacks = result.Fallbacks
	report.UnknownRegions = result.UnknownRegions

	// Stats and publish never fail a run whose transform committed.
	var stats domain.Stats
	err = p.stage(ctx, StageStats, w, func(ctx context.Context) error {
		var err error
		stats, err = p.stages.Stats.Compute(ctx)
		return err
	})
	if err != nil {
		logger.Warn("staging stats unavailable", "error", err)
	} else {
		report.Stats = &stats
		p.metrics.StagingRows.Set(float64(stats.Total))
		p.metrics.StagingRegions.Set(float64(stats.DistinctRegions))
		logger.Info("staging stats",
			"total", stats.Total,
			"avg_magnitude", stats.AvgMagnitude,
			"max_magnitude", stats.MaxMagnitude,
			"min_event_time", stats.MinEventTime,
			"max_event_time", stats.MaxEventTime,
			"distinct_regions", stats.DistinctRegions,
		)
	}

	if p.stages.Publisher != nil && len(result.Inserted) > 0 {
		err = p.stage(ctx, StagePublish, w, func(ctx context.Context) error {
			return p.stages.Publisher.Publish(ctx, result.Inserted)
		})
		if err != nil {
			p.metrics.PublishErrors.Inc()
			logger.Error("publish staged events failed", "error", err, "count", len(result.Inserted))
		} else {
			report.Published = len(result.Inserted)
		}
	}

	return nil
}

// stage runs fn, records its duration, and wraps any failure in a StageError.
func (p *Pipeline) stage(ctx context.Context, name string, w domain.Window, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return &StageError{Stage: name, Window: w, Err: err}
	}
	return nil
}
