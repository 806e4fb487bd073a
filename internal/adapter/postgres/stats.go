package postgres

import (
	"context"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatsReader computes aggregate statistics over the staging table.
type StatsReader struct {
	pool *pgxpool.Pool
}

// NewStatsReader creates a StatsReader.
func NewStatsReader(pool *pgxpool.Pool) *StatsReader {
	return &StatsReader{pool: pool}
}

// Compute returns the staging table summary. An empty table yields the zero Stats.
func (r *StatsReader) Compute(ctx context.Context) (domain.Stats, error) {
	var (
		stats          domain.Stats
		avgMag, maxMag *float64
		minDT, maxDT   *time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), AVG(magnitude), MAX(magnitude), MIN(dt), MAX(dt), COUNT(DISTINCT region)
		FROM stage_earthquakes`).Scan(&stats.Total, &avgMag, &maxMag, &minDT, &maxDT, &stats.DistinctRegions)
	if err != nil {
		return domain.Stats{}, &domain.StoreError{Op: "compute stats", Err: err}
	}

	if avgMag != nil {
		stats.AvgMagnitude = *avgMag
	}
	if maxMag != nil {
		stats.MaxMagnitude = *maxMag
	}
	if minDT != nil {
		stats.MinEventTime = fromTimestamp(*minDT)
	}
	if maxDT != nil {
		stats.MaxEventTime = fromTimestamp(*maxDT)
	}
	return stats, nil
}
