package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
	"github.com/couchcryptid/rainfall-idf-service/internal/observability"
	"github.com/couchcryptid/rainfall-idf-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	err     error
	calls   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()
	// Block until cancelled to simulate an idle topic.
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	err      error
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.AnalysisReport, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return domain.AnalysisReport{}, m.err
	}
	return domain.AnalysisReport{ID: string(raw.Key), Status: domain.StatusSucceeded}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.AnalysisReport
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, reports []domain.AnalysisReport) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append(m.loaded, reports...)
	return nil
}

func (m *mockLoader) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loaded))
	for i, r := range m.loaded {
		out[i] = r.ID
	}
	return out
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func rawEvents(keys ...string) []domain.RawEvent {
	out := make([]domain.RawEvent, len(keys))
	for i, k := range keys {
		out[i] = domain.RawEvent{Key: []byte(k), Value: []byte(`{}`), Offset: int64(i)}
	}
	return out
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawEvent{rawEvents("a", "b", "c")}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	if diff := cmp.Diff([]string{"a", "b", "c"}, ldr.ids()); diff != "" {
		t.Fatalf("loaded reports mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformErrorCommitsAndSkips(t *testing.T) {
	var commits atomic.Int64
	raws := rawEvents("bad")
	raws[0].Commit = func(context.Context) error {
		commits.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{raws}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, slog.Default(), newTestMetrics(), 10, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Equal(t, int64(1), commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var commits atomic.Int64
	raws := rawEvents("a", "b")
	for i := range raws {
		raws[i].Commit = func(context.Context) error {
			commits.Add(1)
			return nil
		}
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{raws}}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, int64(2), commits.Load())
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var commits atomic.Int64
	raws := rawEvents("a")
	raws[0].Commit = func(context.Context) error {
		commits.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{raws}}
	ldr := &mockLoader{err: errors.New("broker down")}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &mockExtractor{err: errors.New("connection refused")}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	// 200ms then 400ms: at most three attempts fit in the window.
	assert.LessOrEqual(t, ext.calls.Load(), int64(3))
	assert.GreaterOrEqual(t, ext.calls.Load(), int64(2))
}

func TestPipeline_Run_BoundedConcurrency(t *testing.T) {
	keys := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	ext := &mockExtractor{batches: [][]domain.RawEvent{rawEvents(keys...)}}
	tfm := &mockTransformer{delay: 20 * time.Millisecond}
	ldr := &mockLoader{}
	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.LessOrEqual(t, tfm.maxSeen.Load(), int64(3))
	assert.Equal(t, keys, ldr.ids(), "reports keep request order")
}

func TestAnalysisTransformer_Transform(t *testing.T) {
	analyzer := pipeline.NewAnalyzer(scenarioLookup(), scenarioOptions(), nil, slog.Default(), newTestMetrics())
	tfm := pipeline.NewTransformer(analyzer)

	data, err := json.Marshal(scenarioRequest())
	require.NoError(t, err)

	report, err := tfm.Transform(context.Background(), domain.RawEvent{Key: []byte("k-1"), Value: data})
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "req-scenario", report.RequestID)

	_, err = tfm.Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)
}
