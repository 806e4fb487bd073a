package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
)

// memStore is an in-memory stand-in for the raw table, the staging table,
// and the schema manager. Each method is atomic, like a committed transaction.
type memStore struct {
	mu      sync.Mutex
	raw     []domain.RawEvent
	staging []domain.StagingEvent
	nextID  int64
	ops     []string

	schemaErr error
	deleteErr error
	readErr   error
	insertErr error
	statsErr  error
}

func (m *memStore) ReplaceBatch(_ context.Context, batchID string, events []domain.RawEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batchID == "" {
		return 0, domain.ErrEmptyBatchID
	}
	m.ops = append(m.ops, "replace")

	kept := m.raw[:0:0]
	for _, ev := range m.raw {
		if ev.BatchID != batchID {
			kept = append(kept, ev)
		}
	}
	for _, ev := range events {
		ev.BatchID = batchID
		kept = append(kept, ev)
	}
	m.raw = kept
	return len(events), nil
}

func (m *memStore) ReadWindow(_ context.Context, w domain.Window) ([]domain.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "read")
	if m.readErr != nil {
		return nil, &domain.StoreError{Op: "read window", Err: m.readErr}
	}

	from, to := w.BoundsMillis()
	var out []domain.RawEvent
	for _, ev := range m.raw {
		if ev.EpochMillis != nil && *ev.EpochMillis >= from && *ev.EpochMillis < to {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].EpochMillis < *out[j].EpochMillis })
	return out, nil
}

func (m *memStore) Ensure(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "ensure")
	if m.schemaErr != nil {
		return &domain.SchemaError{Op: "inspect columns", Err: m.schemaErr}
	}
	return nil
}

func (m *memStore) DeleteWindow(_ context.Context, w domain.Window) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "delete")
	if m.deleteErr != nil {
		return 0, &domain.StoreError{Op: "delete window", Err: m.deleteErr}
	}

	var deleted int64
	kept := m.staging[:0:0]
	for _, ev := range m.staging {
		if w.Contains(ev.EventTime) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	m.staging = kept
	return deleted, nil
}

func (m *memStore) InsertEvents(_ context.Context, events []domain.StagingEvent) ([]domain.StagingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "insert")
	if m.insertErr != nil {
		return nil, &domain.StoreError{Op: "insert events", Err: m.insertErr}
	}

	out := make([]domain.StagingEvent, len(events))
	for i, ev := range events {
		m.nextID++
		ev.ID = m.nextID
		ev.CreatedAt = domain.Now()
		out[i] = ev
	}
	m.staging = append(m.staging, out...)
	return out, nil
}

func (m *memStore) Compute(_ context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statsErr != nil {
		return domain.Stats{}, &domain.StoreError{Op: "compute stats", Err: m.statsErr}
	}

	var (
		s       domain.Stats
		magSum  float64
		magN    int
		regions = map[string]struct{}{}
	)
	for i, ev := range m.staging {
		s.Total++
		regions[ev.Region] = struct{}{}
		if ev.Magnitude != nil {
			magSum += *ev.Magnitude
			magN++
			if magN == 1 || *ev.Magnitude > s.MaxMagnitude {
				s.MaxMagnitude = *ev.Magnitude
			}
		}
		if i == 0 || ev.EventTime.Before(s.MinEventTime) {
			s.MinEventTime = ev.EventTime
		}
		if i == 0 || ev.EventTime.After(s.MaxEventTime) {
			s.MaxEventTime = ev.EventTime
		}
	}
	if magN > 0 {
		s.AvgMagnitude = magSum / float64(magN)
	}
	s.DistinctRegions = int64(len(regions))
	return s, nil
}

func (m *memStore) stagingRows() []domain.StagingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StagingEvent(nil), m.staging...)
}

func (m *memStore) operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// fixedReader returns the same raw rows regardless of window.
type fixedReader struct {
	events []domain.RawEvent
}

func (f *fixedReader) ReadWindow(_ context.Context, _ domain.Window) ([]domain.RawEvent, error) {
	return f.events, nil
}

type mockExtractor struct {
	events  []domain.RawEvent
	err     error
	windows []domain.Window
	block   chan struct{}
	started chan struct{}
}

func (m *mockExtractor) Extract(ctx context.Context, w domain.Window) ([]domain.RawEvent, error) {
	m.windows = append(m.windows, w)
	if m.started != nil {
		close(m.started)
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.events, m.err
}

type mockPublisher struct {
	published []domain.StagingEvent
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, events []domain.StagingEvent) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, events...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }
