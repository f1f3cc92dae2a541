// Package pipeline orchestrates one aggregate computation: fetch raw source
// data, normalize it, build per-model feature vectors, run the five
// predictors concurrently, and merge everything into a composite result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/cityforge/enviro-intel/internal/aggregate"
	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/feature"
	"github.com/cityforge/enviro-intel/internal/model"
	"github.com/cityforge/enviro-intel/internal/observability"
)

// SatelliteSource delivers archived daily composites. Fewer fields than
// requested is not an error; absence shows up during normalization.
type SatelliteSource interface {
	Fetch(ctx context.Context, fields []string, from, to time.Time) ([]domain.RawReading, error)
}

// WeatherSource delivers the live weather snapshot. An unreachable provider
// returns a domain.ServiceUnavailableError, which downgrades freshness rather
// than failing the computation.
type WeatherSource interface {
	FetchCurrent(ctx context.Context) (domain.RawReading, error)
}

// SourceStatus reports one source's outcome for a single computation. A zero
// FetchedAt with a nil Err means the source was not refreshed this round.
type SourceStatus struct {
	FetchedAt time.Time
	Err       error
}

// Pipeline wires the stages together. It caches the last valid raw reading
// per source so a partial refresh (only the stale sources) can still produce
// a complete observation.
type Pipeline struct {
	satellite  SatelliteSource
	weather    WeatherSource
	normalizer *domain.Normalizer
	registry   *model.Registry
	aggregator *aggregate.Aggregator
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	historyDays int

	mu      sync.Mutex
	lastRaw map[domain.Source]domain.RawReading
	history []domain.NormalizedObservation
}

// New creates a Pipeline. historyDays bounds the satellite lookback used for
// temporal features; it must cover the largest rolling window plus the
// largest lag offset.
func New(
	satellite SatelliteSource,
	weather WeatherSource,
	normalizer *domain.Normalizer,
	registry *model.Registry,
	aggregator *aggregate.Aggregator,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	historyDays int,
) *Pipeline {
	return &Pipeline{
		satellite:   satellite,
		weather:     weather,
		normalizer:  normalizer,
		registry:    registry,
		aggregator:  aggregator,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		historyDays: historyDays,
		lastRaw:     make(map[domain.Source]domain.RawReading),
	}
}

// Compute runs one full aggregation. Sources flagged in refresh are
// refetched; the rest reuse their cached raw reading. The returned status map
// carries an entry per tracked source. Compute fails only when no usable
// source data exists at all, cached or fresh.
func (p *Pipeline) Compute(ctx context.Context, refresh map[domain.Source]bool) (aggregate.CompositeResult, map[domain.Source]SourceStatus, error) {
	status := map[domain.Source]SourceStatus{
		domain.SourceSatellite: {},
		domain.SourceWeather:   {},
	}

	if refresh[domain.SourceSatellite] {
		status[domain.SourceSatellite] = p.refreshSatellite(ctx)
	}
	if refresh[domain.SourceWeather] {
		status[domain.SourceWeather] = p.refreshWeather(ctx)
	}

	p.mu.Lock()
	raws := make([]domain.RawReading, 0, 2)
	if raw, ok := p.lastRaw[domain.SourceSatellite]; ok {
		raws = append(raws, raw)
	}
	if raw, ok := p.lastRaw[domain.SourceWeather]; ok {
		raws = append(raws, raw)
	}
	history := p.history
	p.mu.Unlock()

	if len(raws) == 0 {
		err := firstSourceError(status)
		if err == nil {
			err = fmt.Errorf("no source data cached and none requested")
		}
		return aggregate.CompositeResult{}, status, fmt.Errorf("compute: no usable source data: %w", err)
	}

	obs, err := p.normalizer.Normalize(domain.MergeReadings(raws...))
	if err != nil {
		// Cached raws are validated before caching, so this is unreachable in
		// practice; treat it as a failed cycle if it ever happens.
		return aggregate.CompositeResult{}, status, fmt.Errorf("compute: %w", err)
	}

	preds := p.predictAll(ctx, obs, history)

	result := p.aggregator.Aggregate(obs, preds)
	result.ID = uuid.NewString()
	result.ComputedAt = p.clock.Now()
	p.metrics.HealthScore.Set(result.HealthScore)

	return result, status, nil
}

// refreshSatellite fetches the archive window, rebuilds normalized history,
// and caches the newest composite as the satellite raw reading.
func (p *Pipeline) refreshSatellite(ctx context.Context) SourceStatus {
	now := p.clock.Now()
	from := now.AddDate(0, 0, -p.historyDays)

	readings, err := p.satellite.Fetch(ctx, domain.CanonicalFields(), from, now)
	if err == nil && len(readings) == 0 {
		err = &domain.ServiceUnavailableError{Source: domain.SourceSatellite, Err: fmt.Errorf("archive empty for window %s..%s", from.Format(time.DateOnly), now.Format(time.DateOnly))}
	}
	if err != nil {
		p.metrics.SourceFetches.WithLabelValues(string(domain.SourceSatellite), "error").Inc()
		p.logger.Warn("satellite fetch failed", "error", err)
		return SourceStatus{Err: err}
	}

	// Normalize history oldest-first so interpolation memory warms in order.
	// The newest reading is held back as the current satellite raw.
	history := make([]domain.NormalizedObservation, 0, len(readings)-1)
	for _, raw := range readings[:len(readings)-1] {
		obs, nErr := p.normalizer.Normalize(raw)
		if nErr != nil {
			p.logger.Warn("skipping malformed archive record", "error", nErr)
			continue
		}
		history = append(history, obs)
	}

	latest := readings[len(readings)-1]
	if vErr := domain.ValidateReading(latest); vErr != nil {
		p.metrics.SourceFetches.WithLabelValues(string(domain.SourceSatellite), "error").Inc()
		p.logger.Warn("latest satellite composite malformed", "error", vErr)
		return SourceStatus{Err: vErr}
	}

	p.mu.Lock()
	p.history = history
	p.lastRaw[domain.SourceSatellite] = latest
	p.mu.Unlock()

	p.metrics.SourceFetches.WithLabelValues(string(domain.SourceSatellite), "success").Inc()
	return SourceStatus{FetchedAt: now}
}

// refreshWeather fetches the live snapshot and caches it when valid.
func (p *Pipeline) refreshWeather(ctx context.Context) SourceStatus {
	now := p.clock.Now()

	raw, err := p.weather.FetchCurrent(ctx)
	if err == nil {
		err = domain.ValidateReading(raw)
	}
	if err != nil {
		p.metrics.SourceFetches.WithLabelValues(string(domain.SourceWeather), "error").Inc()
		p.logger.Warn("weather fetch failed", "error", err)
		return SourceStatus{Err: err}
	}

	p.mu.Lock()
	p.lastRaw[domain.SourceWeather] = raw
	p.mu.Unlock()

	p.metrics.SourceFetches.WithLabelValues(string(domain.SourceWeather), "success").Inc()
	return SourceStatus{FetchedAt: now}
}

// predictAll evaluates the five models concurrently and joins before
// returning, so the aggregator never sees a partial map. Every slot is
// populated, degraded or not.
func (p *Pipeline) predictAll(ctx context.Context, obs domain.NormalizedObservation, history []domain.NormalizedObservation) map[string]model.Prediction {
	preds := make(map[string]model.Prediction, 5)
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(len(model.All()))
	for _, id := range model.All() {
		g.Go(func() error {
			pred := p.predictOne(id, obs, history)
			mu.Lock()
			preds[id] = pred
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors; failures degrade

	return preds
}

func (p *Pipeline) predictOne(id string, obs domain.NormalizedObservation, history []domain.NormalizedObservation) model.Prediction {
	schema, ok := p.registry.SchemaFor(id)
	if !ok {
		p.metrics.Predictions.WithLabelValues(id, "degraded").Inc()
		return model.DegradedPrediction(id, p.clock.Now())
	}

	vec, err := feature.Build(obs, history, schema)
	if err != nil {
		p.logger.Warn("feature build failed", "model", id, "error", err)
		p.metrics.Predictions.WithLabelValues(id, "degraded").Inc()
		return model.DegradedPrediction(id, p.clock.Now())
	}

	pred := p.registry.Predict(id, vec)
	outcome := "ok"
	if pred.Degraded {
		outcome = "degraded"
	}
	p.metrics.Predictions.WithLabelValues(id, outcome).Inc()
	return pred
}

func firstSourceError(status map[domain.Source]SourceStatus) error {
	for _, src := range []domain.Source{domain.SourceSatellite, domain.SourceWeather} {
		if status[src].Err != nil {
			return status[src].Err
		}
	}
	return nil
}
