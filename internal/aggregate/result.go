// Package aggregate merges the five model outputs and the current observation
// into one composite response object. Aggregation never fails: degraded
// inputs become data_quality annotations, and a missing health score falls
// back to a documented linear formula. Partial results always beat no result.
package aggregate

import (
	"time"

	"github.com/cityforge/enviro-intel/internal/model"
)

// Data-quality states attached per source and per model.
const (
	QualityFresh    = "fresh"
	QualityStale    = "stale"
	QualityDegraded = "degraded"
)

// RiskLevelInfo is one domain's ordinal risk with its display label.
type RiskLevelInfo struct {
	Level       int     `json:"level"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability,omitempty"`
}

// AnomalyFlag is one raised anomaly in the composite response.
type AnomalyFlag struct {
	Score      float64   `json:"score"`
	Threshold  float64   `json:"threshold"`
	Severity   string    `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// CompositeResult is the aggregate response served to the presentation layer.
// It is owned by this package, consumed read-only, and rebuilt whenever a
// contributing model output or observation moves beyond the staleness window.
type CompositeResult struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	ComputedAt time.Time `json:"computed_at"`

	HealthScore float64 `json:"health_score"`
	Approximate bool    `json:"approximate,omitempty"`

	RiskLevels map[string]RiskLevelInfo `json:"risk_levels"`

	Forecast           map[string][]float64 `json:"forecast"`
	ForecastConfidence []float64            `json:"forecast_confidence,omitempty"`

	Anomalies          []AnomalyFlag       `json:"anomalies"`
	ImpactCorrelations []model.Correlation `json:"impact_correlations"`
	Recommendations    []string            `json:"recommendations"`

	ResilienceIndex float64            `json:"resilience_index"`
	ResilienceGrade string             `json:"resilience_grade"`
	DomainScores    map[string]float64 `json:"domain_scores"`

	CurrentConditions map[string]float64 `json:"current_conditions"`

	// DataQuality annotates each source and model: fresh, stale or degraded.
	DataQuality map[string]string `json:"data_quality"`

	// Stale marks a cached result served because recomputation failed.
	Stale bool `json:"stale,omitempty"`
}

// riskLabels maps the 1-5 ordinal scale to fixed display labels.
var riskLabels = map[int]string{
	1: "Low",
	2: "Moderate",
	3: "High",
	4: "Very High",
	5: "Extreme",
}

// RiskLabel returns the display label for an ordinal risk level.
func RiskLabel(level int) string {
	if label, ok := riskLabels[level]; ok {
		return label
	}
	return "Unknown"
}

// resilience grade bands, highest first.
var gradeBands = []struct {
	min   float64
	grade string
}{
	{85, "A+"},
	{75, "A"},
	{65, "B+"},
	{55, "B"},
	{45, "C"},
	{0, "D"},
}

// ResilienceGrade bands a resilience index into a letter grade.
func ResilienceGrade(index float64) string {
	for _, b := range gradeBands {
		if index >= b.min {
			return b.grade
		}
	}
	return "D"
}
