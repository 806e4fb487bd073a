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

// StagingTable is the analysis-ready table owned by SchemaManager.
const StagingTable = "stage_earthquakes"

// Column is a desired staging column and its SQL type.
type Column struct {
	Name string
	Type string
}

// StagingColumns is the desired column set of the staging table, excluding id.
// Columns added after the table first shipped must be nullable or defaulted so
// reconciliation leaves existing rows valid.
var StagingColumns = []Column{
	{Name: "dt", Type: "TIMESTAMP"},
	{Name: "region", Type: "VARCHAR(255)"},
	{Name: "place", Type: "VARCHAR(255)"},
	{Name: "magnitude", Type: "FLOAT"},
	{Name: "latitude", Type: "FLOAT"},
	{Name: "longitude", Type: "FLOAT"},
	{Name: "depth", Type: "FLOAT"},
	{Name: "raw_time", Type: "BIGINT"},
	{Name: "created_at", Type: "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
}

const createStagingTable = `
CREATE TABLE IF NOT EXISTS stage_earthquakes (
    id         SERIAL PRIMARY KEY,
    dt         TIMESTAMP,
    region     VARCHAR(255),
    place      VARCHAR(255),
    magnitude  FLOAT,
    latitude   FLOAT,
    longitude  FLOAT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

const createStagingIndex = `CREATE INDEX IF NOT EXISTS ix_stage_earthquakes_dt ON stage_earthquakes (dt)`

// MissingColumns returns the desired columns absent from existing, in desired order.
func MissingColumns(desired []Column, existing []string) []Column {
	have := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		have[name] = struct{}{}
	}

	var missing []Column
	for _, c := range desired {
		if _, ok := have[c.Name]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// SchemaManager creates the staging table and adds any missing columns.
type SchemaManager struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSchemaManager creates a SchemaManager for the staging table.
func NewSchemaManager(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *SchemaManager {
	return &SchemaManager{pool: pool, logger: logger, metrics: metrics}
}

// Ensure makes the staging table match StagingColumns. It is idempotent and
// never drops or rewrites existing columns or rows.
func (m *SchemaManager) Ensure(ctx context.Context) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return &domain.SchemaError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, createStagingTable); err != nil {
		return &domain.SchemaError{Op: "create table", Err: err}
	}
	if _, err := tx.Exec(ctx, createStagingIndex); err != nil {
		return &domain.SchemaError{Op: "create index", Err: err}
	}

	rows, err := tx.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, StagingTable)
	if err != nil {
		return &domain.SchemaError{Op: "inspect columns", Err: err}
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return &domain.SchemaError{Op: "inspect columns", Err: err}
	}

	missing := MissingColumns(StagingColumns, existing)
	for _, c := range missing {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			pgx.Identifier{StagingTable}.Sanitize(), pgx.Identifier{c.Name}.Sanitize(), c.Type)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &domain.SchemaError{Op: "add column " + c.Name, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.SchemaError{Op: "commit", Err: err}
	}

	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = c.Name
		}
		m.metrics.SchemaColumnsAdded.Add(float64(len(missing)))
		m.logger.Info("staging schema updated", "added_columns", names)
	}
	return nil
}
