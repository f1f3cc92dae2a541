// Package model wraps the five pre-trained predictors behind a uniform
// predict contract with isolated failure handling. Artifacts are JSON files
// produced by the training pipeline; inference here is deterministic math
// over their weights, never retraining.
//
// Confidence semantics are deliberately heterogeneous, matching how each
// model family was trained:
//
//   - health scorer: 1 minus its documented margin of error
//   - risk classifier: selected-class pseudo-probability from decision margin
//   - forecaster: base confidence decayed per forecast step
//   - anomaly detector: none; it reports score against threshold only
//   - urban impact: share of correlation pairs that are significant
package model

import "time"

// Model identifiers, stable across artifacts, metrics and API payloads.
const (
	HealthScorer    = "health_scorer"
	RiskClassifier  = "risk_classifier"
	Forecaster      = "forecaster"
	AnomalyDetector = "anomaly_detector"
	UrbanImpact     = "urban_impact"
)

// All lists the five model IDs in a stable order.
func All() []string {
	return []string{HealthScorer, RiskClassifier, Forecaster, AnomalyDetector, UrbanImpact}
}

// Kind discriminates the payload variant a Prediction carries.
type Kind string

const (
	KindScore    Kind = "score"
	KindRisks    Kind = "risks"
	KindForecast Kind = "forecast"
	KindAnomaly  Kind = "anomaly"
	KindImpact   Kind = "impact"
)

// Risk domains produced by the risk classifier.
const (
	RiskAir   = "air"
	RiskFlood = "flood"
	RiskHeat  = "heat"
)

// RiskOutput is one ordinal risk category on the 1-5 scale with the
// selected-class probability.
type RiskOutput struct {
	Level       int     `json:"level"`
	Probability float64 `json:"probability"`
}

// ForecastSeries is a fixed-horizon forecast per tracked variable. Step
// confidence is shared across variables and decays monotonically with the
// step index.
type ForecastSeries struct {
	Horizon        int                  `json:"horizon"`
	Values         map[string][]float64 `json:"values"`
	StepConfidence []float64            `json:"step_confidence"`
}

// AnomalySignal is the density score of the current feature point against the
// fixed decision threshold, plus a coarse severity band.
type AnomalySignal struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Flagged   bool    `json:"flagged"`
	Severity  string  `json:"severity"`
}

// Correlation is one precomputed urban-environmental relationship.
type Correlation struct {
	UrbanFactor float64 `json:"urban_value"`
	Urban       string  `json:"urban"`
	Env         string  `json:"environmental"`
	Coefficient float64 `json:"correlation"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Direction   string  `json:"direction"`
	Samples     int     `json:"samples"`
}

// Prediction is the uniform output of every predictor: a kind discriminator
// with exactly one populated payload. Degraded predictions carry a zero
// payload and zero confidence; they mark a model that failed to load or
// predict, and never abort the pipeline.
type Prediction struct {
	ModelID    string    `json:"model_id"`
	Kind       Kind      `json:"kind"`
	Confidence float64   `json:"confidence"`
	ComputedAt time.Time `json:"computed_at"`
	Degraded   bool      `json:"degraded,omitempty"`

	Score        *float64              `json:"score,omitempty"`
	Risks        map[string]RiskOutput `json:"risks,omitempty"`
	Forecast     *ForecastSeries       `json:"forecast,omitempty"`
	Anomaly      *AnomalySignal        `json:"anomaly,omitempty"`
	Correlations []Correlation         `json:"correlations,omitempty"`
}

// kindFor maps a model ID to its payload kind.
func kindFor(modelID string) Kind {
	switch modelID {
	case HealthScorer:
		return KindScore
	case RiskClassifier:
		return KindRisks
	case Forecaster:
		return KindForecast
	case AnomalyDetector:
		return KindAnomaly
	case UrbanImpact:
		return KindImpact
	default:
		return ""
	}
}

// DegradedPrediction builds the sentinel prediction used when a model is
// unavailable or its predict call failed.
func DegradedPrediction(modelID string, at time.Time) Prediction {
	return Prediction{
		ModelID:    modelID,
		Kind:       kindFor(modelID),
		Confidence: 0,
		ComputedAt: at,
		Degraded:   true,
	}
}
