package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var rawColumns = []string{"time", "place", "magnitude", "longitude", "latitude", "depth", "file_name"}

// RawStore persists raw feed events keyed by batch id.
type RawStore struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRawStore creates a RawStore backed by the earthquakes table.
func NewRawStore(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *RawStore {
	return &RawStore{pool: pool, logger: logger, metrics: metrics}
}

// ReplaceBatch deletes every row stamped with batchID and inserts events in
// their place, all in one transaction. On error nothing is changed.
func (s *RawStore) ReplaceBatch(ctx context.Context, batchID string, events []domain.RawEvent) (int, error) {
	if batchID == "" {
		return 0, domain.ErrEmptyBatchID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &domain.StoreError{Op: "replace batch", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `DELETE FROM earthquakes WHERE file_name = $1`, batchID)
	if err != nil {
		return 0, &domain.StoreError{Op: "replace batch", Err: fmt.Errorf("delete %s: %w", batchID, err)}
	}
	deleted := tag.RowsAffected()

	rows := make([][]any, len(events))
	for i, ev := range events {
		var place *string
		if ev.Place != "" {
			place = &ev.Place
		}
		rows[i] = []any{ev.EpochMillis, place, ev.Magnitude, ev.Longitude, ev.Latitude, ev.Depth, batchID}
	}

	inserted, err := tx.CopyFrom(ctx, pgx.Identifier{"earthquakes"}, rawColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, &domain.StoreError{Op: "replace batch", Err: fmt.Errorf("copy %s: %w", batchID, err)}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &domain.StoreError{Op: "replace batch", Err: fmt.Errorf("commit: %w", err)}
	}

	s.metrics.RawRowsDeleted.Add(float64(deleted))
	s.metrics.RawRowsLoaded.Add(float64(inserted))
	s.logger.Info("raw batch replaced", "batch_id", batchID, "deleted", deleted, "inserted", inserted)

	return int(inserted), nil
}

// ReadWindow returns raw events whose epoch time falls inside the window's
// half-open bounds, ordered by time then id.
func (s *RawStore) ReadWindow(ctx context.Context, w domain.Window) ([]domain.RawEvent, error) {
	from, to := w.BoundsMillis()

	rows, err := s.pool.Query(ctx, `
		SELECT time, place, magnitude, longitude, latitude, depth, file_name
		FROM earthquakes
		WHERE time >= $1 AND time < $2
		ORDER BY time, id`, from, to)
	if err != nil {
		return nil, &domain.StoreError{Op: "read window", Err: err}
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RawEvent, error) {
		var (
			ev    domain.RawEvent
			place *string
		)
		if err := row.Scan(&ev.EpochMillis, &place, &ev.Magnitude, &ev.Longitude, &ev.Latitude, &ev.Depth, &ev.BatchID); err != nil {
			return domain.RawEvent{}, err
		}
		if place != nil {
			ev.Place = *place
		}
		return ev, nil
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "read window", Err: err}
	}

	s.logger.Debug("raw window read", "window", w.String(), "rows", len(events))
	return events, nil
}
