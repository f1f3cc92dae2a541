package model

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityforge/enviro-intel/internal/feature"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeArtifact(t *testing.T, dir, file string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))
}

// writeAllArtifacts produces a minimal but loadable artifact set.
func writeAllArtifacts(t *testing.T, dir string) {
	t.Helper()
	m := 10.0

	writeArtifact(t, dir, healthArtifactFile, healthArtifact{
		Algorithm:     "gradient_boosted_stumps",
		BaseScore:     70,
		MarginOfError: 10,
		Features:      []feature.Field{{Name: "aqi", TrainedMean: &m}},
		Stumps: []stump{
			{Feature: "aqi", Threshold: 100, Left: 5, Right: -20},
		},
	})
	writeArtifact(t, dir, riskArtifactFile, riskArtifact{
		Algorithm: "multi_output_ordinal",
		Features:  []feature.Field{{Name: "aqi", TrainedMean: &m}},
		Outputs: map[string]riskOutputArtifact{
			RiskAir: {
				Weights:     map[string]float64{"aqi": 0.02},
				Intercept:   0,
				Cuts:        []float64{1, 2, 3, 4},
				MarginScale: 0.5,
			},
		},
	})
	writeArtifact(t, dir, forecastArtifactFile, forecastArtifact{
		Algorithm:       "per_step_linear",
		Horizon:         2,
		BaseConfidence:  0.9,
		ConfidenceDecay: 0.8,
		Variables: map[string]forecastVarArtifact{
			"pm2_5": {Steps: []stepModel{
				{Intercept: 1, Coefficients: make([]float64, feature.TemporalBlockWidth())},
				{Intercept: 2, Coefficients: make([]float64, feature.TemporalBlockWidth())},
			}},
		},
	})
	writeArtifact(t, dir, anomalyArtifactFile, anomalyArtifact{
		Algorithm: "nearest_centroid_density",
		Features:  []feature.Field{{Name: "aqi", TrainedMean: &m}},
		Means:     []float64{50},
		Stddevs:   []float64{20},
		Centroids: [][]float64{{0}},
		Bandwidth: 1,
		Threshold: 0.1,
	})
	writeArtifact(t, dir, urbanArtifactFile, urbanArtifact{
		Algorithm: "pearson_bank",
		Features:  []feature.Field{{Name: "radiance", TrainedMean: &m}},
		Pairs: []correlationPair{
			{Urban: "radiance", Env: "aqi", Coefficient: 0.6, PValue: 0.01, Samples: 100},
		},
	})
}

func TestLoad_AllModelsAvailable(t *testing.T) {
	dir := t.TempDir()
	writeAllArtifacts(t, dir)

	r := Load(dir, clockwork.NewFakeClock(), discardLogger())
	assert.ElementsMatch(t, All(), r.Available())
}

func TestLoad_MissingArtifactDegradesOnlyThatModel(t *testing.T) {
	dir := t.TempDir()
	writeAllArtifacts(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, forecastArtifactFile)))

	clock := clockwork.NewFakeClock()
	r := Load(dir, clock, discardLogger())

	assert.NotContains(t, r.Available(), Forecaster)
	assert.Contains(t, r.Available(), HealthScorer)

	pred := r.Predict(Forecaster, feature.Vector{Model: Forecaster})
	assert.True(t, pred.Degraded)
	assert.Equal(t, 0.0, pred.Confidence)
	assert.Equal(t, clock.Now(), pred.ComputedAt)
}

func TestLoad_CorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	writeAllArtifacts(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, healthArtifactFile), []byte("{not json"), 0o644))

	r := Load(dir, clockwork.NewFakeClock(), discardLogger())
	assert.NotContains(t, r.Available(), HealthScorer)
}

func TestRegistry_PredictWrongWidthDegrades(t *testing.T) {
	dir := t.TempDir()
	writeAllArtifacts(t, dir)
	r := Load(dir, clockwork.NewFakeClock(), discardLogger())

	pred := r.Predict(HealthScorer, feature.Vector{Model: HealthScorer, Values: []float64{1, 2, 3}})
	assert.True(t, pred.Degraded)
}

type panickingPredictor struct{}

func (panickingPredictor) ID() string             { return HealthScorer }
func (panickingPredictor) Schema() feature.Schema { return feature.Schema{Model: HealthScorer} }
func (panickingPredictor) Predict(feature.Vector) (Prediction, error) {
	panic("boom")
}

func TestRegistry_PredictorPanicDegrades(t *testing.T) {
	r := NewRegistryForTesting(clockwork.NewFakeClock(), discardLogger(), panickingPredictor{})

	pred := r.Predict(HealthScorer, feature.Vector{Model: HealthScorer})
	assert.True(t, pred.Degraded)
	assert.Equal(t, HealthScorer, pred.ModelID)
}

type erroringPredictor struct{}

func (erroringPredictor) ID() string             { return RiskClassifier }
func (erroringPredictor) Schema() feature.Schema { return feature.Schema{Model: RiskClassifier} }
func (erroringPredictor) Predict(feature.Vector) (Prediction, error) {
	return Prediction{}, errors.New("inference exploded")
}

func TestRegistry_PredictorErrorDegrades(t *testing.T) {
	r := NewRegistryForTesting(clockwork.NewFakeClock(), discardLogger(), erroringPredictor{})

	pred := r.Predict(RiskClassifier, feature.Vector{Model: RiskClassifier})
	assert.True(t, pred.Degraded)
}

func TestRegistry_SchemaFor(t *testing.T) {
	dir := t.TempDir()
	writeAllArtifacts(t, dir)
	r := Load(dir, clockwork.NewFakeClock(), discardLogger())

	schema, ok := r.SchemaFor(HealthScorer)
	require.True(t, ok)
	assert.Equal(t, 1, schema.Width())

	_, ok = r.SchemaFor("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_PredictStampsComputedAt(t *testing.T) {
	dir := t.TempDir()
	writeAllArtifacts(t, dir)

	at := time.Date(2026, time.August, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(at)
	r := Load(dir, clock, discardLogger())

	pred := r.Predict(HealthScorer, feature.Vector{Model: HealthScorer, Values: []float64{50}})
	require.False(t, pred.Degraded)
	assert.Equal(t, at, pred.ComputedAt)
}
