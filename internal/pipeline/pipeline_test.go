package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
	"github.com/couchcryptid/gust-correlation-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockExtractor serves fixed batches. When finite it returns io.EOF after the
// last batch; otherwise it blocks until the context is cancelled.
type mockExtractor struct {
	batches [][]domain.Event
	finite  bool
	errs    []error
	calls   int
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.Event, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		var partial []domain.Event
		if i < len(m.batches) {
			partial = m.batches[i]
		}
		return partial, m.errs[i]
	}
	if i < len(m.batches) {
		if m.finite && i == len(m.batches)-1 {
			return m.batches[i], io.EOF
		}
		return m.batches[i], nil
	}
	if m.finite {
		return nil, io.EOF
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockAggregator struct {
	fail map[float64]error
	refs []domain.Instant
}

func (m *mockAggregator) MaxGust(_ context.Context, lat, _ float64, ref domain.Instant, w domain.Windows) (domain.GustTable, error) {
	m.refs = append(m.refs, ref)
	if err := m.fail[lat]; err != nil {
		return nil, err
	}
	table := domain.NewGustTable(w)
	table[0][0] = domain.Cell{StationID: "KSTS", Distance: 2, Time: ref, MaxGust: lat, Count: 1}
	return table, nil
}

type mockLoader struct {
	mu      sync.Mutex
	batches [][]domain.GustReport
	err     error
}

func (m *mockLoader) LoadBatch(_ context.Context, reports []domain.GustReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, reports)
	return nil
}

func (m *mockLoader) loaded() []domain.GustReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GustReport
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWindows(t *testing.T) domain.Windows {
	t.Helper()
	w, err := domain.NewWindows([]float64{1, 2}, []float64{4, 8})
	require.NoError(t, err)
	return w
}

func makeEvent(t *testing.T, id string, lat float64) domain.Event {
	t.Helper()
	at, err := domain.ParseCompact("201910092300")
	require.NoError(t, err)
	return domain.Event{ID: id, Latitude: lat, Longitude: -122.8, Time: at}
}

func newPipeline(t *testing.T, ext pipeline.BatchExtractor, agg pipeline.Aggregator, ldr pipeline.BatchLoader) *pipeline.Pipeline {
	t.Helper()
	tfm := pipeline.NewTransformer(agg, testWindows(t), 0, discardLogger())
	return pipeline.New(ext, tfm, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
}

// --- pipeline tests ---

func TestPipeline_Run_FiniteSource(t *testing.T) {
	ext := &mockExtractor{finite: true, batches: [][]domain.Event{
		{makeEvent(t, "a", 38.1), makeEvent(t, "b", 38.2)},
		{makeEvent(t, "c", 38.3)},
	}}
	ldr := &mockLoader{}
	p := newPipeline(t, ext, &mockAggregator{}, ldr)

	require.NoError(t, p.Run(context.Background()))

	loaded := ldr.loaded()
	require.Len(t, loaded, 3)
	assert.Equal(t, "a", loaded[0].Event.ID)
	assert.Equal(t, "c", loaded[2].Event.ID)
	assert.Len(t, ldr.batches, 2)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := newPipeline(t, &mockExtractor{}, &mockAggregator{}, ldr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_StreamUntilCancelled(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.Event{{makeEvent(t, "a", 38.1)}}}
	ldr := &mockLoader{}
	p := newPipeline(t, ext, &mockAggregator{}, ldr)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, ldr.loaded(), 1)
}

func TestPipeline_Run_PersistsThenRaises(t *testing.T) {
	apiErr := &domain.APIError{Endpoint: "timeseries", StatusCode: 503, Message: "unavailable"}
	committed := map[string]bool{}
	commit := func(id string) func(context.Context) error {
		return func(context.Context) error {
			committed[id] = true
			return nil
		}
	}
	a, b, c := makeEvent(t, "a", 38.1), makeEvent(t, "b", 38.2), makeEvent(t, "c", 38.3)
	a.Commit, b.Commit, c.Commit = commit("a"), commit("b"), commit("c")

	ext := &mockExtractor{finite: true, batches: [][]domain.Event{{a, b, c}, {makeEvent(t, "d", 38.4)}}}
	agg := &mockAggregator{fail: map[float64]error{38.2: apiErr}}
	ldr := &mockLoader{}
	p := newPipeline(t, ext, agg, ldr)

	err := p.Run(context.Background())

	var got *domain.APIError
	require.ErrorAs(t, err, &got)
	assert.Contains(t, err.Error(), "event b")
	loaded := ldr.loaded()
	require.Len(t, loaded, 1, "reports before the failure are loaded")
	assert.Equal(t, "a", loaded[0].Event.ID)
	assert.True(t, committed["a"])
	assert.False(t, committed["b"])
	assert.False(t, committed["c"])
	assert.Len(t, agg.refs, 2, "aggregation stops at the failing event")
	assert.Equal(t, 1, ext.calls, "the run stops after the failing batch")
}

func TestPipeline_Run_FirstEventFails(t *testing.T) {
	ext := &mockExtractor{finite: true, batches: [][]domain.Event{{makeEvent(t, "a", 38.1)}}}
	agg := &mockAggregator{fail: map[float64]error{38.1: errors.New("boom")}}
	ldr := &mockLoader{}

	err := newPipeline(t, ext, agg, ldr).Run(context.Background())

	require.Error(t, err)
	assert.Empty(t, ldr.batches, "nothing to load")
}

func TestPipeline_Run_LoadError(t *testing.T) {
	ext := &mockExtractor{finite: true, batches: [][]domain.Event{{makeEvent(t, "a", 38.1)}}}
	ldr := &mockLoader{err: errors.New("disk full")}

	err := newPipeline(t, ext, &mockAggregator{}, ldr).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPipeline_Run_PermanentExtractError(t *testing.T) {
	ext := &mockExtractor{errs: []error{fmt.Errorf("line 7: %w", domain.ErrValidation)}}

	err := newPipeline(t, ext, &mockAggregator{}, &mockLoader{}).Run(context.Background())

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, ext.calls)
}

func TestPipeline_Run_PermanentExtractErrorLoadsPrefix(t *testing.T) {
	ext := &mockExtractor{
		errs:    []error{fmt.Errorf("line 4: %w", domain.ErrValidation)},
		batches: [][]domain.Event{{makeEvent(t, "a", 38.1), makeEvent(t, "b", 38.2)}},
	}
	ldr := &mockLoader{}

	err := newPipeline(t, ext, &mockAggregator{}, ldr).Run(context.Background())

	require.ErrorIs(t, err, domain.ErrValidation)
	require.Len(t, ldr.loaded(), 2, "rows before the bad one are still written")
	assert.Equal(t, "b", ldr.loaded()[1].Event.ID)
}

func TestPipeline_Run_TransientExtractErrorRetries(t *testing.T) {
	ext := &mockExtractor{
		finite:  true,
		errs:    []error{errors.New("broker not available")},
		batches: [][]domain.Event{nil, {makeEvent(t, "a", 38.1)}},
	}
	ldr := &mockLoader{}

	require.NoError(t, newPipeline(t, ext, &mockAggregator{}, ldr).Run(context.Background()))

	assert.Len(t, ldr.loaded(), 1)
	assert.Equal(t, 2, ext.calls)
}

// --- transformer tests ---

func TestGustTransformer_AppliesOffset(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	agg := &mockAggregator{}
	tfm := pipeline.NewTransformer(agg, testWindows(t), -30*time.Minute, discardLogger())
	ev := makeEvent(t, "outage-1", 38.5)

	report, err := tfm.Transform(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, "201910092230", report.Reference.Compact())
	assert.Equal(t, "201910092300", report.Event.Time.Compact())
	require.Len(t, agg.refs, 1)
	assert.True(t, agg.refs[0].Equal(report.Reference))
	assert.Equal(t, fakeClock.Now(), report.ProcessedAt)
	assert.Equal(t, "KSTS", report.Table[0][0].StationID)
}

func TestGustTransformer_RejectsInvalidEvent(t *testing.T) {
	agg := &mockAggregator{}
	tfm := pipeline.NewTransformer(agg, testWindows(t), 0, discardLogger())
	ev := makeEvent(t, "bad", 95)

	_, err := tfm.Transform(context.Background(), ev)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, agg.refs)
}
