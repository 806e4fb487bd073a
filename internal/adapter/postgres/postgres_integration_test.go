//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func startPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("earthquake_db"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(pool, discardLogger()))
	return pool
}

func dayMillis(t *testing.T, date string, hour int) int64 {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", date, time.Local)
	require.NoError(t, err)
	return d.Add(time.Duration(hour) * time.Hour).UnixMilli()
}

func TestPostgresStores(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool := startPostgres(ctx, t)
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	raw := postgres.NewRawStore(pool, logger, metrics)
	schema := postgres.NewSchemaManager(pool, logger, metrics)
	staging := postgres.NewStagingStore(pool)
	stats := postgres.NewStatsReader(pool)

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, postgres.Migrate(pool, logger))
	})

	t.Run("replace batch requires a batch id", func(t *testing.T) {
		_, err := raw.ReplaceBatch(ctx, "", []domain.RawEvent{{Place: "x"}})
		assert.ErrorIs(t, err, domain.ErrEmptyBatchID)
	})

	t.Run("replace batch supersedes prior rows", func(t *testing.T) {
		first := []domain.RawEvent{
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-01", 1)), Place: "old"},
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-01", 2)), Place: "old"},
		}
		n, err := raw.ReplaceBatch(ctx, "earthquake_data_2024_01_01", first)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		second := []domain.RawEvent{
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-01", 3)), Place: "5km SW of Townsville", Magnitude: float64Ptr(4.2)},
		}
		n, err = raw.ReplaceBatch(ctx, "earthquake_data_2024_01_01", second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		var count int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM earthquakes WHERE file_name = $1`, "earthquake_data_2024_01_01").Scan(&count))
		assert.Equal(t, 1, count)
		assert.InDelta(t, 2, testutil.ToFloat64(metrics.RawRowsDeleted), 0)
	})

	t.Run("other batches are untouched", func(t *testing.T) {
		_, err := raw.ReplaceBatch(ctx, "earthquake_data_2024_01_02", []domain.RawEvent{
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-02", 0)), Place: "Town, Country"},
			{EpochMillis: nil, Place: ""},
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM earthquakes`).Scan(&count))
		assert.Equal(t, 3, count)
	})

	t.Run("read window is half-open and ordered", func(t *testing.T) {
		w, err := domain.ParseWindow("2024-01-01", "2024-01-01")
		require.NoError(t, err)

		events, err := raw.ReadWindow(ctx, w)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "5km SW of Townsville", events[0].Place)
		assert.Equal(t, "earthquake_data_2024_01_01", events[0].BatchID)
		assert.Equal(t, 4.2, *events[0].Magnitude)
		assert.Nil(t, events[0].Depth)
	})

	t.Run("failed replace leaves the prior batch intact", func(t *testing.T) {
		_, err := pool.Exec(ctx, `
			CREATE FUNCTION reject_place() RETURNS trigger AS $$
			BEGIN
				IF NEW.place = 'reject' THEN
					RAISE EXCEPTION 'rejected row';
				END IF;
				RETURN NEW;
			END $$ LANGUAGE plpgsql`)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `
			CREATE TRIGGER reject_place BEFORE INSERT ON earthquakes
			FOR EACH ROW EXECUTE FUNCTION reject_place()`)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), `DROP TRIGGER IF EXISTS reject_place ON earthquakes`)
			_, _ = pool.Exec(context.Background(), `DROP FUNCTION IF EXISTS reject_place()`)
		})

		deletedBefore := testutil.ToFloat64(metrics.RawRowsDeleted)
		loadedBefore := testutil.ToFloat64(metrics.RawRowsLoaded)

		_, err = raw.ReplaceBatch(ctx, "earthquake_data_2024_01_01", []domain.RawEvent{
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-01", 5)), Place: "accepted"},
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-01", 6)), Place: "reject"},
		})
		var storeErr *domain.StoreError
		require.True(t, errors.As(err, &storeErr), "got %v", err)
		assert.Equal(t, "replace batch", storeErr.Op)

		canceled, cancelNow := context.WithCancel(ctx)
		cancelNow()
		_, err = raw.ReplaceBatch(canceled, "earthquake_data_2024_01_01", []domain.RawEvent{
			{EpochMillis: int64Ptr(dayMillis(t, "2024-01-01", 7)), Place: "never written"},
		})
		require.Error(t, err)

		var places []string
		rows, err := pool.Query(ctx,
			`SELECT place FROM earthquakes WHERE file_name = $1 ORDER BY id`, "earthquake_data_2024_01_01")
		require.NoError(t, err)
		for rows.Next() {
			var place string
			require.NoError(t, rows.Scan(&place))
			places = append(places, place)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"5km SW of Townsville"}, places)

		var total int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM earthquakes`).Scan(&total))
		assert.Equal(t, 3, total)
		assert.InDelta(t, deletedBefore, testutil.ToFloat64(metrics.RawRowsDeleted), 0)
		assert.InDelta(t, loadedBefore, testutil.ToFloat64(metrics.RawRowsLoaded), 0)
	})

	t.Run("schema ensure is idempotent and heals missing columns", func(t *testing.T) {
		require.NoError(t, schema.Ensure(ctx))
		assert.InDelta(t, 2, testutil.ToFloat64(metrics.SchemaColumnsAdded), 0)

		require.NoError(t, schema.Ensure(ctx))
		assert.InDelta(t, 2, testutil.ToFloat64(metrics.SchemaColumnsAdded), 0)

		_, err := pool.Exec(ctx, `ALTER TABLE stage_earthquakes DROP COLUMN depth`)
		require.NoError(t, err)
		require.NoError(t, schema.Ensure(ctx))
		assert.InDelta(t, 3, testutil.ToFloat64(metrics.SchemaColumnsAdded), 0)
	})

	t.Run("stats on empty table are zero", func(t *testing.T) {
		s, err := stats.Compute(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Stats{}, s)
	})

	t.Run("insert, delete window and stats", func(t *testing.T) {
		w, err := domain.ParseWindow("2024-01-01", "2024-01-01")
		require.NoError(t, err)
		inside := time.Date(2024, 1, 1, 23, 59, 59, 0, time.Local)
		outside := time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local)

		inserted, err := staging.InsertEvents(ctx, []domain.StagingEvent{
			{EventTime: inside, Region: "5km SW", Location: "Townsville", Magnitude: float64Ptr(2)},
			{EventTime: outside, Region: "Country", Location: "Town", Magnitude: float64Ptr(4)},
		})
		require.NoError(t, err)
		require.Len(t, inserted, 2)
		assert.NotZero(t, inserted[0].ID)
		assert.NotEqual(t, inserted[0].ID, inserted[1].ID)
		assert.False(t, inserted[0].CreatedAt.IsZero())

		s, err := stats.Compute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.Total)
		assert.InDelta(t, 3.0, s.AvgMagnitude, 1e-9)
		assert.InDelta(t, 4.0, s.MaxMagnitude, 1e-9)
		assert.True(t, s.MinEventTime.Equal(inside))
		assert.True(t, s.MaxEventTime.Equal(outside))
		assert.Equal(t, int64(2), s.DistinctRegions)

		deleted, err := staging.DeleteWindow(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		s, err = stats.Compute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.Total)
	})

	t.Run("schema heal keeps existing rows", func(t *testing.T) {
		at := time.Date(2024, 2, 1, 12, 30, 0, 0, time.Local)
		inserted, err := staging.InsertEvents(ctx, []domain.StagingEvent{
			{EventTime: at, Region: "10km NE", Location: "Ridgecrest, CA", Magnitude: float64Ptr(3.1), Depth: float64Ptr(7.5), RawEpochMillis: int64Ptr(at.UnixMilli())},
			{EventTime: at.Add(time.Minute), Region: "Alaska", Location: "Alaska", Magnitude: float64Ptr(5.4), Latitude: float64Ptr(61.2), Longitude: float64Ptr(-149.9)},
		})
		require.NoError(t, err)
		require.Len(t, inserted, 2)

		var before int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM stage_earthquakes`).Scan(&before))

		_, err = pool.Exec(ctx, `ALTER TABLE stage_earthquakes DROP COLUMN raw_time`)
		require.NoError(t, err)
		added := testutil.ToFloat64(metrics.SchemaColumnsAdded)

		require.NoError(t, schema.Ensure(ctx))
		assert.InDelta(t, added+1, testutil.ToFloat64(metrics.SchemaColumnsAdded), 0)

		var after int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM stage_earthquakes`).Scan(&after))
		assert.Equal(t, before, after)

		var hasRawTime bool
		require.NoError(t, pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = 'stage_earthquakes' AND column_name = 'raw_time'
			)`).Scan(&hasRawTime))
		assert.True(t, hasRawTime)

		for _, want := range inserted {
			var (
				region, place string
				magnitude     *float64
				depth         *float64
				rawTime       *int64
			)
			require.NoError(t, pool.QueryRow(ctx,
				`SELECT region, place, magnitude, depth, raw_time FROM stage_earthquakes WHERE id = $1`, want.ID).
				Scan(&region, &place, &magnitude, &depth, &rawTime))
			assert.Equal(t, want.Region, region)
			assert.Equal(t, want.Location, place)
			assert.Equal(t, want.Magnitude, magnitude)
			assert.Equal(t, want.Depth, depth)
			assert.Nil(t, rawTime)
		}
	})

	t.Run("readiness pings the pool", func(t *testing.T) {
		require.NoError(t, postgres.NewReadiness(pool).CheckReadiness(ctx))
	})
}
