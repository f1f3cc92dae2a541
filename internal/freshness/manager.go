// Package freshness caches the composite result and decides when it must be
// recomputed. Each source carries its own staleness window: the live weather
// snapshot expires in minutes while the daily satellite composite stays valid
// for an hour. A request that finds any source stale triggers exactly one
// recomputation regardless of how many callers arrive concurrently, and a
// failed recomputation serves the previous result marked stale rather than an
// error. The only error a caller ever sees is domain.ErrNoDataAvailable, on
// the cold-start path where nothing has ever been computed.
package freshness

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/cityforge/enviro-intel/internal/aggregate"
	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/observability"
	"github.com/cityforge/enviro-intel/internal/pipeline"
)

// Computer produces a fresh composite result, refetching only the sources
// flagged in refresh.
type Computer interface {
	Compute(ctx context.Context, refresh map[domain.Source]bool) (aggregate.CompositeResult, map[domain.Source]pipeline.SourceStatus, error)
}

// SnapshotSink receives every successfully recomputed composite. Publishing
// is best effort; failures are logged and never affect the serving path.
type SnapshotSink interface {
	Publish(ctx context.Context, result aggregate.CompositeResult) error
}

// DefaultComputeTimeout bounds a background recomputation. It is detached
// from the triggering request's context so an impatient caller cannot abort
// work other callers are waiting on.
const DefaultComputeTimeout = 30 * time.Second

// Config carries the per-source staleness windows and the recompute bound.
type Config struct {
	MaxAge         map[domain.Source]time.Duration
	ComputeTimeout time.Duration
}

// DefaultConfig returns the shipped staleness windows: weather expires after
// five minutes, satellite composites after one hour.
func DefaultConfig() Config {
	return Config{
		MaxAge: map[domain.Source]time.Duration{
			domain.SourceWeather:   5 * time.Minute,
			domain.SourceSatellite: time.Hour,
		},
		ComputeTimeout: DefaultComputeTimeout,
	}
}

type entry struct {
	result    aggregate.CompositeResult
	fetchedAt map[domain.Source]time.Time
}

// Manager owns the cached composite and its per-source freshness bookkeeping.
// It is safe for concurrent use.
type Manager struct {
	computer Computer
	sink     SnapshotSink // nil disables snapshot publishing
	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	group singleflight.Group

	mu    sync.RWMutex
	entry *entry
}

// NewManager creates a Manager. sink may be nil.
func NewManager(computer Computer, sink SnapshotSink, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	if len(cfg.MaxAge) == 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	return &Manager{
		computer: computer,
		sink:     sink,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// GetOrCompute returns the current composite. A fully fresh cache entry is
// served directly; otherwise one recomputation runs (shared across concurrent
// callers) refetching only the stale sources. If recomputation fails or the
// caller's context expires first, the previous entry is served with its Stale
// flag set. With no previous entry at all the error is
// domain.ErrNoDataAvailable.
//
// force treats every source as stale regardless of age.
func (m *Manager) GetOrCompute(ctx context.Context, force bool) (aggregate.CompositeResult, error) {
	if !force {
		if result, ok := m.serveFresh(); ok {
			m.metrics.CacheServes.WithLabelValues("fresh").Inc()
			return result, nil
		}
	}

	ch := m.group.DoChan("composite", func() (any, error) {
		return m.recompute(force)
	})

	select {
	case <-ctx.Done():
		// The shared recomputation keeps running on its own detached context;
		// this caller falls back to whatever is cached.
		if result, ok := m.serveStale(); ok {
			m.metrics.CacheServes.WithLabelValues("stale").Inc()
			return result, nil
		}
		return aggregate.CompositeResult{}, domain.ErrNoDataAvailable

	case res := <-ch:
		if res.Err != nil {
			m.logger.Warn("recomputation failed", "error", res.Err)
			if result, ok := m.serveStale(); ok {
				m.metrics.CacheServes.WithLabelValues("stale").Inc()
				return result, nil
			}
			return aggregate.CompositeResult{}, domain.ErrNoDataAvailable
		}
		m.metrics.CacheServes.WithLabelValues("recomputed").Inc()
		return res.Val.(aggregate.CompositeResult), nil
	}
}

// Ready reports whether at least one composite has been computed. Used by the
// readiness probe.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entry != nil
}

// CheckReadiness satisfies the HTTP readiness contract.
func (m *Manager) CheckReadiness(ctx context.Context) error {
	if !m.Ready() {
		return domain.ErrNoDataAvailable
	}
	return nil
}

// Warm computes the first composite so the service comes up ready. Failures
// are logged, not fatal: the first request will retry.
func (m *Manager) Warm(ctx context.Context) {
	if _, err := m.GetOrCompute(ctx, true); err != nil {
		m.logger.Warn("cache warm-up failed", "error", err)
	}
}

// serveFresh returns the cached composite when every source is inside its
// staleness window.
func (m *Manager) serveFresh() (aggregate.CompositeResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entry == nil || len(m.staleSourcesLocked()) > 0 {
		return aggregate.CompositeResult{}, false
	}
	return m.annotateLocked(false), true
}

// serveStale returns whatever is cached, marked stale, for the fallback
// paths.
func (m *Manager) serveStale() (aggregate.CompositeResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entry == nil {
		return aggregate.CompositeResult{}, false
	}
	return m.annotateLocked(true), true
}

// annotateLocked clones the cached result and stamps per-source data quality
// from current freshness. The clone keeps the cached entry immutable across
// concurrent serves. Callers hold at least the read lock.
func (m *Manager) annotateLocked(markStale bool) aggregate.CompositeResult {
	result := m.entry.result
	result.DataQuality = maps.Clone(result.DataQuality)
	if result.DataQuality == nil {
		result.DataQuality = make(map[string]string, len(m.cfg.MaxAge))
	}

	now := m.clock.Now()
	stale := markStale
	for src, maxAge := range m.cfg.MaxAge {
		q := aggregate.QualityFresh
		at, ok := m.entry.fetchedAt[src]
		if !ok || now.Sub(at) > maxAge {
			q = aggregate.QualityStale
			stale = true
		}
		result.DataQuality[string(src)] = q
	}
	result.Stale = stale
	return result
}

// staleSourcesLocked lists the sources whose last successful fetch is outside
// its window. Callers hold at least the read lock.
func (m *Manager) staleSourcesLocked() []domain.Source {
	now := m.clock.Now()
	var stale []domain.Source
	for src, maxAge := range m.cfg.MaxAge {
		if m.entry == nil {
			stale = append(stale, src)
			continue
		}
		at, ok := m.entry.fetchedAt[src]
		if !ok || now.Sub(at) > maxAge {
			stale = append(stale, src)
		}
	}
	return stale
}

// recompute runs one shared computation cycle on a detached context. The
// stale set is re-derived under the lock so a caller that queued behind an
// already-running flight does not refetch sources the flight just refreshed.
func (m *Manager) recompute(force bool) (any, error) {
	refresh := make(map[domain.Source]bool, len(m.cfg.MaxAge))
	m.mu.RLock()
	if force {
		for src := range m.cfg.MaxAge {
			refresh[src] = true
		}
	} else {
		for _, src := range m.staleSourcesLocked() {
			refresh[src] = true
		}
	}
	m.mu.RUnlock()

	if len(refresh) == 0 {
		// Another flight refreshed everything between the caller's staleness
		// check and this one.
		if result, ok := m.serveFresh(); ok {
			return result, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ComputeTimeout)
	defer cancel()

	m.metrics.Recomputes.Inc()
	start := m.clock.Now()

	result, statuses, err := m.computer.Compute(ctx, refresh)
	m.metrics.RecomputeDuration.Observe(m.clock.Since(start).Seconds())
	if err != nil {
		m.metrics.RecomputeFailures.Inc()
		return nil, err
	}

	m.store(result, statuses)

	if m.sink != nil {
		m.publishSnapshot(result)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.annotateLocked(false), nil
}

// store merges the cycle's outcome into the cache entry. Sources that were
// not refreshed, or whose refresh failed, keep their previous fetch time and
// simply stay (or go) stale.
func (m *Manager) store(result aggregate.CompositeResult, statuses map[domain.Source]pipeline.SourceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fetchedAt := make(map[domain.Source]time.Time, len(m.cfg.MaxAge))
	if m.entry != nil {
		maps.Copy(fetchedAt, m.entry.fetchedAt)
	}
	for src, st := range statuses {
		if st.Err == nil && !st.FetchedAt.IsZero() {
			fetchedAt[src] = st.FetchedAt
		}
	}
	m.entry = &entry{result: result, fetchedAt: fetchedAt}

	now := m.clock.Now()
	for src := range m.cfg.MaxAge {
		if at, ok := fetchedAt[src]; ok {
			m.metrics.SourceFreshness.WithLabelValues(string(src)).Set(now.Sub(at).Seconds())
		}
	}
}

func (m *Manager) publishSnapshot(result aggregate.CompositeResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.sink.Publish(ctx, result); err != nil {
		m.metrics.SnapshotPublishes.WithLabelValues("error").Inc()
		m.logger.Warn("snapshot publish failed", "error", err, "result_id", result.ID)
		return
	}
	m.metrics.SnapshotPublishes.WithLabelValues("success").Inc()
}
