package aggregate

import (
	"log/slog"

	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/model"
)

// Weights distributes the resilience index across the four domains. Values
// are configuration, validated to sum to 1.0, so deployments can retune the
// index without retraining any model.
type Weights struct {
	Air   float64
	Heat  float64
	Water float64
	Urban float64
}

// Sum returns the total weight, used by config validation.
func (w Weights) Sum() float64 { return w.Air + w.Heat + w.Water + w.Urban }

// DefaultWeights is the shipped resilience weighting.
var DefaultWeights = Weights{Air: 0.30, Heat: 0.25, Water: 0.25, Urban: 0.20}

// Fallback health formula constants. When the health scorer is degraded the
// score is a linear penalty over the normalized pollutant, heat and moisture
// fields, starting from a perfect 100:
//
//	100 - 0.60*pm2_5 - 2.0*max(0, heat_index-30) - 0.30*flood_risk
const (
	fallbackPMWeight    = 0.60 // points per ug/m3 of PM2.5
	fallbackHeatWeight  = 2.0  // points per degree C of heat index above the comfort bound
	fallbackFloodWeight = 0.30 // points per flood-risk point
	comfortHeatIndexC   = 30.0
)

// Aggregator merges model predictions and the current observation into a
// CompositeResult.
type Aggregator struct {
	weights  Weights
	location string
	logger   *slog.Logger
}

// New creates an Aggregator for one configured location.
func New(weights Weights, location string, logger *slog.Logger) *Aggregator {
	return &Aggregator{weights: weights, location: location, logger: logger}
}

// Aggregate builds the composite response. The prediction map always carries
// all five model slots (possibly degraded); the pipeline guarantees the
// aggregator never observes a partially populated map.
func (a *Aggregator) Aggregate(obs domain.NormalizedObservation, preds map[string]model.Prediction) CompositeResult {
	result := CompositeResult{
		Location:          a.location,
		RiskLevels:        make(map[string]RiskLevelInfo),
		Forecast:          make(map[string][]float64),
		Anomalies:         []AnomalyFlag{},
		Recommendations:   []string{},
		DataQuality:       make(map[string]string, len(preds)),
		CurrentConditions: currentConditions(obs),
	}

	for _, id := range model.All() {
		if preds[id].Degraded {
			result.DataQuality[id] = QualityDegraded
		} else {
			result.DataQuality[id] = QualityFresh
		}
	}

	a.applyHealth(&result, obs, preds[model.HealthScorer])
	applyRisks(&result, preds[model.RiskClassifier])
	applyForecast(&result, preds[model.Forecaster])
	applyAnomaly(&result, preds[model.AnomalyDetector])
	applyImpact(&result, preds[model.UrbanImpact])

	result.DomainScores = domainScores(obs)
	result.ResilienceIndex = a.weights.Air*result.DomainScores["air"] +
		a.weights.Heat*result.DomainScores["heat"] +
		a.weights.Water*result.DomainScores["water"] +
		a.weights.Urban*result.DomainScores["urban"]
	result.ResilienceGrade = ResilienceGrade(result.ResilienceIndex)

	result.Recommendations = recommendations(ruleInput{
		Health:  result.HealthScore,
		Risks:   preds[model.RiskClassifier].Risks,
		Anomaly: preds[model.AnomalyDetector].Anomaly,
		Monsoon: domain.IsMonsoonSeason(obs.Timestamp),
	})

	return result
}

// applyHealth takes the scored health value, or falls back to the documented
// linear formula over raw normalized fields when the scorer is degraded.
func (a *Aggregator) applyHealth(result *CompositeResult, obs domain.NormalizedObservation, pred model.Prediction) {
	if !pred.Degraded && pred.Score != nil {
		result.HealthScore = *pred.Score
		return
	}

	pm25, _ := obs.Value(domain.FieldPM25)
	heatIndex, _ := obs.Value(domain.FieldHeatIndex)
	flood, _ := obs.Value(domain.FieldFloodRisk)

	score := 100 -
		fallbackPMWeight*pm25 -
		fallbackHeatWeight*max(0, heatIndex-comfortHeatIndexC) -
		fallbackFloodWeight*flood

	result.HealthScore = clamp(score, 0, 100)
	result.Approximate = true
	a.logger.Warn("health scorer degraded, using fallback formula", "score", result.HealthScore)
}

func applyRisks(result *CompositeResult, pred model.Prediction) {
	if pred.Degraded {
		return
	}
	for domainName, out := range pred.Risks {
		result.RiskLevels[domainName] = RiskLevelInfo{
			Level:       out.Level,
			Label:       RiskLabel(out.Level),
			Probability: out.Probability,
		}
	}
}

func applyForecast(result *CompositeResult, pred model.Prediction) {
	if pred.Degraded || pred.Forecast == nil {
		return
	}
	for variable, series := range pred.Forecast.Values {
		result.Forecast[variable] = series
	}
	result.ForecastConfidence = pred.Forecast.StepConfidence
}

func applyAnomaly(result *CompositeResult, pred model.Prediction) {
	if pred.Degraded || pred.Anomaly == nil {
		return
	}
	if pred.Anomaly.Flagged {
		result.Anomalies = append(result.Anomalies, AnomalyFlag{
			Score:      pred.Anomaly.Score,
			Threshold:  pred.Anomaly.Threshold,
			Severity:   pred.Anomaly.Severity,
			DetectedAt: pred.ComputedAt,
		})
	}
}

func applyImpact(result *CompositeResult, pred model.Prediction) {
	if pred.Degraded {
		result.ImpactCorrelations = []model.Correlation{}
		return
	}
	result.ImpactCorrelations = pred.Correlations
}

// currentConditions extracts the headline observation fields the dashboard
// shows alongside the model outputs.
func currentConditions(obs domain.NormalizedObservation) map[string]float64 {
	fields := []string{
		domain.FieldAQI,
		domain.FieldPM25,
		domain.FieldTemperature,
		domain.FieldHumidity,
		domain.FieldHeatIndex,
		domain.FieldFloodRisk,
		domain.FieldSoilMoisture,
	}
	out := make(map[string]float64, len(fields))
	for _, name := range fields {
		if v, ok := obs.Value(name); ok {
			out[name] = v
		}
	}
	return out
}

// domainScores derives per-domain 0-100 scores from the current observation.
// Each formula is a fixed linear penalty against that domain's headline field.
func domainScores(obs domain.NormalizedObservation) map[string]float64 {
	aqi, _ := obs.Value(domain.FieldAQI)
	heatIndex, _ := obs.Value(domain.FieldHeatIndex)
	flood, _ := obs.Value(domain.FieldFloodRisk)
	urbanLoad, _ := obs.Value(domain.FieldUrbanLoad)

	return map[string]float64{
		"air":   clamp(100-0.8*aqi, 0, 100),
		"heat":  clamp(100-3.0*max(0, heatIndex-26), 0, 100),
		"water": clamp(100-1.2*flood, 0, 100),
		"urban": clamp(100-0.2*max(0, urbanLoad-400), 0, 100),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
