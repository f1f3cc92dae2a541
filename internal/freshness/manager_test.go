package freshness

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityforge/enviro-intel/internal/aggregate"
	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/observability"
	"github.com/cityforge/enviro-intel/internal/pipeline"
)

// mockComputer records each compute cycle's refresh set and returns a canned
// result stamped with successful fetches for every refreshed source.
type mockComputer struct {
	clock clockwork.Clock

	mu     sync.Mutex
	calls  []map[domain.Source]bool
	result aggregate.CompositeResult
	err    error
	block  chan struct{} // when non-nil, Compute waits on it
}

func (m *mockComputer) Compute(_ context.Context, refresh map[domain.Source]bool) (aggregate.CompositeResult, map[domain.Source]pipeline.SourceStatus, error) {
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	m.calls = append(m.calls, maps.Clone(refresh))
	m.mu.Unlock()

	statuses := make(map[domain.Source]pipeline.SourceStatus)
	for src := range refresh {
		statuses[src] = pipeline.SourceStatus{FetchedAt: m.clock.Now()}
	}
	if m.err != nil {
		return aggregate.CompositeResult{}, statuses, m.err
	}
	return m.result, statuses, nil
}

func (m *mockComputer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockComputer) lastCall() map[domain.Source]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func newTestManager(t *testing.T, clock clockwork.Clock, computer Computer) *Manager {
	t.Helper()
	return NewManager(computer, nil, Config{
		MaxAge: map[domain.Source]time.Duration{
			domain.SourceWeather:   5 * time.Minute,
			domain.SourceSatellite: time.Hour,
		},
		ComputeTimeout: 10 * time.Second,
	}, clock, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())
}

func TestGetOrCompute_ColdStartComputesEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1", HealthScore: 80}}
	m := newTestManager(t, clock, computer)

	result, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "r1", result.ID)
	assert.False(t, result.Stale)
	assert.Equal(t, 1, computer.callCount())
	assert.Equal(t, map[domain.Source]bool{
		domain.SourceWeather:   true,
		domain.SourceSatellite: true,
	}, computer.lastCall())
	assert.Equal(t, aggregate.QualityFresh, result.DataQuality[string(domain.SourceWeather)])
	assert.Equal(t, aggregate.QualityFresh, result.DataQuality[string(domain.SourceSatellite)])
}

func TestGetOrCompute_FreshCacheServedWithoutRecompute(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}}
	m := newTestManager(t, clock, computer)

	first, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	second, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, computer.callCount(), "fresh cache must not trigger recompute")
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCompute_WeatherStalenessTriggersPartialRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}}
	m := newTestManager(t, clock, computer)

	_, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	// Past the weather window, inside the satellite window.
	clock.Advance(6 * time.Minute)

	computer.result = aggregate.CompositeResult{ID: "r2"}
	result, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, "r2", result.ID)
	assert.Equal(t, 2, computer.callCount())
	assert.Equal(t, map[domain.Source]bool{domain.SourceWeather: true}, computer.lastCall(),
		"only the stale source should be refetched")
}

func TestGetOrCompute_ForceRefreshesAllSources(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}}
	m := newTestManager(t, clock, computer)

	_, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	_, err = m.GetOrCompute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, computer.callCount())
	assert.Equal(t, map[domain.Source]bool{
		domain.SourceWeather:   true,
		domain.SourceSatellite: true,
	}, computer.lastCall())
}

func TestGetOrCompute_FailureServesStaleCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1", HealthScore: 77}}
	m := newTestManager(t, clock, computer)

	_, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	computer.err = errors.New("all sources down")

	result, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err, "stale cache beats an error")
	assert.Equal(t, "r1", result.ID)
	assert.True(t, result.Stale)
	assert.Equal(t, aggregate.QualityStale, result.DataQuality[string(domain.SourceWeather)])
	assert.Equal(t, aggregate.QualityFresh, result.DataQuality[string(domain.SourceSatellite)])
}

func TestGetOrCompute_ColdStartFailureIsErrNoDataAvailable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, err: errors.New("all sources down")}
	m := newTestManager(t, clock, computer)

	_, err := m.GetOrCompute(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrNoDataAvailable)
}

func TestGetOrCompute_CancelledCallerFallsBackToCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}}
	m := newTestManager(t, clock, computer)

	_, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	// Make the next recompute hang.
	block := make(chan struct{})
	computer.block = block
	t.Cleanup(func() { close(block) })
	clock.Advance(10 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := m.GetOrCompute(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "r1", result.ID)
	assert.True(t, result.Stale)
}

func TestGetOrCompute_ConcurrentCallersShareOneRecompute(t *testing.T) {
	clock := clockwork.NewFakeClock()
	block := make(chan struct{})
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}, block: block}
	m := newTestManager(t, clock, computer)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := m.GetOrCompute(context.Background(), false)
			results[i], errs[i] = r.ID, err
		}()
	}

	// Let the callers pile onto the single flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "r1", results[i])
	}
	assert.Equal(t, 1, computer.callCount(), "concurrent callers must share one computation")
}

func TestReadiness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}}
	m := newTestManager(t, clock, computer)

	assert.Error(t, m.CheckReadiness(context.Background()))

	_, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	assert.NoError(t, m.CheckReadiness(context.Background()))
}

// recordingSink captures published snapshots.
type recordingSink struct {
	mu        sync.Mutex
	published []aggregate.CompositeResult
}

func (s *recordingSink) Publish(_ context.Context, result aggregate.CompositeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, result)
	return nil
}

func TestRecompute_PublishesSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	computer := &mockComputer{clock: clock, result: aggregate.CompositeResult{ID: "r1"}}
	sink := &recordingSink{}

	m := NewManager(computer, sink, DefaultConfig(), clock, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())

	_, err := m.GetOrCompute(context.Background(), false)
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.published, 1)
	assert.Equal(t, "r1", sink.published[0].ID)
}
