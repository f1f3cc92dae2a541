package aggregate

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/model"
)

func testObservation(at time.Time, fields map[string]float64) domain.NormalizedObservation {
	obs := domain.NormalizedObservation{
		Timestamp: at,
		Fields:    make(map[string]domain.FieldValue, len(fields)),
	}
	for name, v := range fields {
		obs.Fields[name] = domain.FieldValue{Value: v, Quality: domain.QualityMeasured}
	}
	return obs
}

func score(v float64) *float64 { return &v }

// allFreshPredictions is a complete five-model prediction set.
func allFreshPredictions(at time.Time) map[string]model.Prediction {
	return map[string]model.Prediction{
		model.HealthScorer: {
			ModelID: model.HealthScorer, Kind: model.KindScore,
			Confidence: 0.9, ComputedAt: at, Score: score(81),
		},
		model.RiskClassifier: {
			ModelID: model.RiskClassifier, Kind: model.KindRisks,
			Confidence: 0.8, ComputedAt: at,
			Risks: map[string]model.RiskOutput{
				model.RiskAir:   {Level: 4, Probability: 0.9},
				model.RiskFlood: {Level: 2, Probability: 0.8},
				model.RiskHeat:  {Level: 3, Probability: 0.7},
			},
		},
		model.Forecaster: {
			ModelID: model.Forecaster, Kind: model.KindForecast,
			Confidence: 0.85, ComputedAt: at,
			Forecast: &model.ForecastSeries{
				Horizon:        2,
				Values:         map[string][]float64{"pm2_5": {24, 26}},
				StepConfidence: []float64{0.85, 0.7},
			},
		},
		model.AnomalyDetector: {
			ModelID: model.AnomalyDetector, Kind: model.KindAnomaly,
			ComputedAt: at,
			Anomaly:    &model.AnomalySignal{Score: 0.05, Threshold: 0.1, Flagged: false, Severity: "Low"},
		},
		model.UrbanImpact: {
			ModelID: model.UrbanImpact, Kind: model.KindImpact,
			Confidence: 0.7, ComputedAt: at,
			Correlations: []model.Correlation{
				{Urban: "radiance", Env: "aqi", Coefficient: 0.6, PValue: 0.01, Significant: true, Direction: "positive", Samples: 365},
			},
		},
	}
}

func newTestAggregator() *Aggregator {
	return New(DefaultWeights, "Mumbai, India", slog.New(slog.DiscardHandler))
}

func TestAggregate_AllModelsFresh(t *testing.T) {
	at := time.Date(2026, time.January, 10, 6, 0, 0, 0, time.UTC)
	obs := testObservation(at, map[string]float64{
		domain.FieldAQI:       95,
		domain.FieldPM25:      40,
		domain.FieldHeatIndex: 31,
		domain.FieldFloodRisk: 20,
		domain.FieldUrbanLoad: 500,
	})

	result := newTestAggregator().Aggregate(obs, allFreshPredictions(at))

	assert.Equal(t, 81.0, result.HealthScore)
	assert.False(t, result.Approximate)
	assert.Equal(t, "Mumbai, India", result.Location)

	// Risk labels follow the fixed ordinal mapping.
	assert.Equal(t, "Very High", result.RiskLevels[model.RiskAir].Label)
	assert.Equal(t, "Moderate", result.RiskLevels[model.RiskFlood].Label)
	assert.Equal(t, "High", result.RiskLevels[model.RiskHeat].Label)

	assert.Equal(t, []float64{24, 26}, result.Forecast["pm2_5"])
	assert.Equal(t, []float64{0.85, 0.7}, result.ForecastConfidence)
	assert.Empty(t, result.Anomalies, "unflagged anomaly signal must not surface")
	require.Len(t, result.ImpactCorrelations, 1)

	for _, id := range model.All() {
		assert.Equal(t, QualityFresh, result.DataQuality[id], "model %s", id)
	}
}

func TestAggregate_DegradedHealthUsesFallbackFormula(t *testing.T) {
	at := time.Date(2026, time.January, 10, 6, 0, 0, 0, time.UTC)
	obs := testObservation(at, map[string]float64{
		domain.FieldPM25:      30,
		domain.FieldHeatIndex: 34,
		domain.FieldFloodRisk: 40,
	})

	preds := allFreshPredictions(at)
	preds[model.HealthScorer] = model.DegradedPrediction(model.HealthScorer, at)

	result := newTestAggregator().Aggregate(obs, preds)

	// 100 - 0.60*30 - 2.0*(34-30) - 0.30*40 = 62
	assert.InDelta(t, 62.0, result.HealthScore, 1e-9)
	assert.True(t, result.Approximate)
	assert.Equal(t, QualityDegraded, result.DataQuality[model.HealthScorer])
}

func TestAggregate_FallbackHealthClampsAtZero(t *testing.T) {
	at := time.Now()
	obs := testObservation(at, map[string]float64{
		domain.FieldPM25:      200,
		domain.FieldHeatIndex: 50,
		domain.FieldFloodRisk: 100,
	})
	preds := allFreshPredictions(at)
	preds[model.HealthScorer] = model.DegradedPrediction(model.HealthScorer, at)

	result := newTestAggregator().Aggregate(obs, preds)
	assert.Equal(t, 0.0, result.HealthScore)
}

func TestAggregate_FlaggedAnomalySurfaces(t *testing.T) {
	at := time.Date(2026, time.August, 3, 9, 0, 0, 0, time.UTC)
	obs := testObservation(at, nil)

	preds := allFreshPredictions(at)
	preds[model.AnomalyDetector] = model.Prediction{
		ModelID: model.AnomalyDetector, Kind: model.KindAnomaly, ComputedAt: at,
		Anomaly: &model.AnomalySignal{Score: 0.82, Threshold: 0.1, Flagged: true, Severity: "High"},
	}

	result := newTestAggregator().Aggregate(obs, preds)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, 0.82, result.Anomalies[0].Score)
	assert.Equal(t, "High", result.Anomalies[0].Severity)
	assert.Equal(t, at, result.Anomalies[0].DetectedAt)
}

func TestAggregate_DegradedModelsLeaveDefaults(t *testing.T) {
	at := time.Now()
	obs := testObservation(at, map[string]float64{domain.FieldPM25: 20})

	preds := map[string]model.Prediction{}
	for _, id := range model.All() {
		preds[id] = model.DegradedPrediction(id, at)
	}

	result := newTestAggregator().Aggregate(obs, preds)

	assert.True(t, result.Approximate)
	assert.Empty(t, result.RiskLevels)
	assert.Empty(t, result.Forecast)
	assert.Empty(t, result.Anomalies)
	assert.Empty(t, result.ImpactCorrelations)
	for _, id := range model.All() {
		assert.Equal(t, QualityDegraded, result.DataQuality[id])
	}
}

func TestAggregate_ResilienceIndex(t *testing.T) {
	at := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	obs := testObservation(at, map[string]float64{
		domain.FieldAQI:       50,  // air 100-40 = 60
		domain.FieldHeatIndex: 30,  // heat 100-12 = 88
		domain.FieldFloodRisk: 25,  // water 100-30 = 70
		domain.FieldUrbanLoad: 500, // urban 100-20 = 80
	})

	result := newTestAggregator().Aggregate(obs, allFreshPredictions(at))

	assert.InDelta(t, 60.0, result.DomainScores["air"], 1e-9)
	assert.InDelta(t, 88.0, result.DomainScores["heat"], 1e-9)
	assert.InDelta(t, 70.0, result.DomainScores["water"], 1e-9)
	assert.InDelta(t, 80.0, result.DomainScores["urban"], 1e-9)

	// 0.30*60 + 0.25*88 + 0.25*70 + 0.20*80 = 73.5
	assert.InDelta(t, 73.5, result.ResilienceIndex, 1e-9)
	assert.Equal(t, "B+", result.ResilienceGrade)
}

func TestResilienceGradeBands(t *testing.T) {
	tests := []struct {
		index float64
		want  string
	}{
		{92, "A+"}, {85, "A+"}, {84.9, "A"}, {75, "A"},
		{70, "B+"}, {60, "B"}, {50, "C"}, {30, "D"}, {0, "D"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResilienceGrade(tt.index), "index %v", tt.index)
	}
}

func TestRiskLabel(t *testing.T) {
	assert.Equal(t, "Low", RiskLabel(1))
	assert.Equal(t, "Extreme", RiskLabel(5))
	assert.Equal(t, "Unknown", RiskLabel(0))
	assert.Equal(t, "Unknown", RiskLabel(9))
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name    string
		in      ruleInput
		wantIDs []string
	}{
		{
			name: "hazardous_air",
			in: ruleInput{
				Health: 42,
				Risks:  map[string]model.RiskOutput{model.RiskAir: {Level: 4}},
			},
			wantIDs: []string{"air-hazard-stay-indoors"},
		},
		{
			name: "monsoon_flood_watch",
			in: ruleInput{
				Health:  70,
				Risks:   map[string]model.RiskOutput{model.RiskFlood: {Level: 3}},
				Monsoon: true,
			},
			wantIDs: []string{"flood-monsoon-waterlogging"},
		},
		{
			name: "favorable",
			in: ruleInput{
				Health: 86,
				Risks: map[string]model.RiskOutput{
					model.RiskAir:   {Level: 1},
					model.RiskFlood: {Level: 2},
					model.RiskHeat:  {Level: 1},
				},
			},
			wantIDs: []string{"conditions-favorable"},
		},
		{
			name: "high_severity_anomaly",
			in: ruleInput{
				Health:  75,
				Risks:   map[string]model.RiskOutput{model.RiskAir: {Level: 2}},
				Anomaly: &model.AnomalySignal{Flagged: true, Severity: "High"},
			},
			wantIDs: []string{"anomaly-verify-feeds"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recommendations(tt.in)
			require.Len(t, got, len(tt.wantIDs))
			for i, id := range tt.wantIDs {
				var want string
				for _, r := range recommendationRules {
					if r.id == id {
						want = r.message
					}
				}
				require.NotEmpty(t, want, "unknown rule id %s", id)
				assert.Equal(t, want, got[i])
			}
		})
	}
}
