package model

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/cityforge/enviro-intel/internal/feature"
)

// Predictor is the uniform contract every wrapped model satisfies. Inference
// is CPU-bound, deterministic, and safe for concurrent use: predictors hold
// only immutable artifact state after load.
type Predictor interface {
	ID() string
	Schema() feature.Schema
	Predict(vec feature.Vector) (Prediction, error)
}

// Registry holds the five predictors, loaded once at process start and
// read-only thereafter. Models whose artifacts failed to load stay registered
// as permanently degraded; one model's absence never aborts the pipeline.
type Registry struct {
	predictors map[string]Predictor
	loadErrs   map[string]error
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Load reads all five model artifacts from dir. Per-model load failures are
// logged and recorded; the returned registry is always usable.
func Load(dir string, clock clockwork.Clock, logger *slog.Logger) *Registry {
	r := &Registry{
		predictors: make(map[string]Predictor, 5),
		loadErrs:   make(map[string]error),
		clock:      clock,
		logger:     logger,
	}

	loaders := []struct {
		id   string
		load func() (Predictor, error)
	}{
		{HealthScorer, func() (Predictor, error) { return newHealthScorer(dir) }},
		{RiskClassifier, func() (Predictor, error) { return newRiskClassifier(dir) }},
		{Forecaster, func() (Predictor, error) { return newForecaster(dir) }},
		{AnomalyDetector, func() (Predictor, error) { return newAnomalyDetector(dir) }},
		{UrbanImpact, func() (Predictor, error) { return newUrbanAnalyzer(dir) }},
	}

	for _, l := range loaders {
		p, err := l.load()
		if err != nil {
			r.loadErrs[l.id] = err
			logger.Warn("model artifact unavailable, predictions will degrade", "model", l.id, "error", err)
			continue
		}
		r.predictors[l.id] = p
		logger.Info("model loaded", "model", l.id, "features", p.Schema().Width())
	}

	return r
}

// NewRegistryForTesting builds a registry from caller-supplied predictors,
// bypassing artifact files.
func NewRegistryForTesting(clock clockwork.Clock, logger *slog.Logger, predictors ...Predictor) *Registry {
	r := &Registry{
		predictors: make(map[string]Predictor, len(predictors)),
		loadErrs:   make(map[string]error),
		clock:      clock,
		logger:     logger,
	}
	for _, p := range predictors {
		r.predictors[p.ID()] = p
	}
	return r
}

// SchemaFor returns the declared input schema for a model, with ok=false when
// the model failed to load.
func (r *Registry) SchemaFor(modelID string) (feature.Schema, bool) {
	p, ok := r.predictors[modelID]
	if !ok {
		return feature.Schema{}, false
	}
	return p.Schema(), true
}

// Available lists the models that loaded successfully.
func (r *Registry) Available() []string {
	out := make([]string, 0, len(r.predictors))
	for _, id := range All() {
		if _, ok := r.predictors[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Predict runs one model over a prepared feature vector. It never returns an
// error: an unavailable model, a predict failure, or a panicking predictor
// all collapse into a degraded prediction so the caller can keep aggregating.
func (r *Registry) Predict(modelID string, vec feature.Vector) (pred Prediction) {
	now := r.clock.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("predictor panicked", "model", modelID, "panic", rec)
			pred = DegradedPrediction(modelID, now)
		}
	}()

	p, ok := r.predictors[modelID]
	if !ok {
		return DegradedPrediction(modelID, now)
	}

	pred, err := p.Predict(vec)
	if err != nil {
		r.logger.Warn("prediction failed", "model", modelID, "error", err)
		return DegradedPrediction(modelID, now)
	}
	pred.ComputedAt = now
	return pred
}
