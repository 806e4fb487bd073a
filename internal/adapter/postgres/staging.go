package postgres

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTextLen matches the VARCHAR(255) region and place columns.
const maxTextLen = 255

const insertStaging = `
INSERT INTO stage_earthquakes (dt, region, place, magnitude, latitude, longitude, depth, raw_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`

// StagingStore writes the stage_earthquakes table.
type StagingStore struct {
	pool *pgxpool.Pool
}

// NewStagingStore creates a StagingStore.
func NewStagingStore(pool *pgxpool.Pool) *StagingStore {
	return &StagingStore{pool: pool}
}

// DeleteWindow removes staging rows whose dt falls in the window's half-open
// bounds and returns how many were removed.
func (s *StagingStore) DeleteWindow(ctx context.Context, w domain.Window) (int64, error) {
	from, to := w.Bounds()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &domain.StoreError{Op: "delete window", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `DELETE FROM stage_earthquakes WHERE dt >= $1 AND dt < $2`,
		toTimestamp(from), toTimestamp(to))
	if err != nil {
		return 0, &domain.StoreError{Op: "delete window", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &domain.StoreError{Op: "delete window", Err: fmt.Errorf("commit: %w", err)}
	}
	return tag.RowsAffected(), nil
}

// InsertEvents writes events in one transaction and returns them with their
// assigned ids and creation times. Either every row commits or none does.
func (s *StagingStore) InsertEvents(ctx context.Context, events []domain.StagingEvent) ([]domain.StagingEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &domain.StoreError{Op: "insert events", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	b := &pgx.Batch{}
	for _, ev := range events {
		b.Queue(insertStaging,
			toTimestamp(ev.EventTime),
			clip(ev.Region, maxTextLen),
			clip(ev.Location, maxTextLen),
			ev.Magnitude, ev.Latitude, ev.Longitude, ev.Depth,
			ev.RawEpochMillis,
		)
	}

	inserted := make([]domain.StagingEvent, len(events))
	br := tx.SendBatch(ctx, b)
	for i, ev := range events {
		var createdAt time.Time
		if err := br.QueryRow().Scan(&ev.ID, &createdAt); err != nil {
			_ = br.Close()
			return nil, &domain.StoreError{Op: "insert events", Err: fmt.Errorf("row %d: %w", i, err)}
		}
		ev.CreatedAt = fromTimestamp(createdAt)
		ev.Region = clip(ev.Region, maxTextLen)
		ev.Location = clip(ev.Location, maxTextLen)
		inserted[i] = ev
	}
	if err := br.Close(); err != nil {
		return nil, &domain.StoreError{Op: "insert events", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &domain.StoreError{Op: "insert events", Err: fmt.Errorf("commit: %w", err)}
	}
	return inserted, nil
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
