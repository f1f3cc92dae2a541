package model

import (
	"fmt"
	"sort"

	"github.com/cityforge/enviro-intel/internal/feature"
)

// DefaultHorizon is the fixed forecast horizon in periods.
const DefaultHorizon = 7

// stepModel is the linear regression for one forecast step: an intercept plus
// one coefficient per feature in the variable's lag/rolling block.
type stepModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// forecastVarArtifact holds the per-step models for one tracked variable.
type forecastVarArtifact struct {
	Steps []stepModel `json:"steps"`
}

// forecastArtifact is the serialized ensemble regressor over lag features.
// Confidence degrades monotonically with the step index: step k carries
// base_confidence * decay^k.
type forecastArtifact struct {
	Algorithm       string                         `json:"algorithm"`
	Horizon         int                            `json:"horizon"`
	BaseConfidence  float64                        `json:"base_confidence"`
	ConfidenceDecay float64                        `json:"confidence_decay"`
	Variables       map[string]forecastVarArtifact `json:"variables"`
}

type forecaster struct {
	art       forecastArtifact
	schema    feature.Schema
	variables []string // sorted; index matches schema.Temporal
}

func newForecaster(dir string) (*forecaster, error) {
	art, err := loadArtifact[forecastArtifact](dir, forecastArtifactFile)
	if err != nil {
		return nil, err
	}
	if art.Horizon <= 0 {
		art.Horizon = DefaultHorizon
	}
	if len(art.Variables) == 0 {
		return nil, fmt.Errorf("forecast artifact: no variables declared")
	}

	variables := make([]string, 0, len(art.Variables))
	for name, v := range art.Variables {
		if len(v.Steps) != art.Horizon {
			return nil, fmt.Errorf("forecast artifact: variable %q has %d steps, want %d", name, len(v.Steps), art.Horizon)
		}
		for i, s := range v.Steps {
			if len(s.Coefficients) != feature.TemporalBlockWidth() {
				return nil, fmt.Errorf("forecast artifact: variable %q step %d has %d coefficients, want %d",
					name, i, len(s.Coefficients), feature.TemporalBlockWidth())
			}
		}
		variables = append(variables, name)
	}
	sort.Strings(variables)

	return &forecaster{
		art:       art,
		schema:    feature.Schema{Model: Forecaster, Temporal: variables},
		variables: variables,
	}, nil
}

func (f *forecaster) ID() string { return Forecaster }

func (f *forecaster) Schema() feature.Schema { return f.schema }

// Predict evaluates each variable's per-step linear model over its lag/rolling
// block, producing a fixed-horizon series. Negative projections clamp to zero;
// every tracked variable is a non-negative quantity.
func (f *forecaster) Predict(vec feature.Vector) (Prediction, error) {
	if vec.Len() != f.schema.Width() {
		return Prediction{}, fmt.Errorf("forecaster: vector width %d, want %d", vec.Len(), f.schema.Width())
	}

	values := make(map[string][]float64, len(f.variables))
	for i, name := range f.variables {
		block := f.schema.TemporalBlock(vec, i)
		steps := f.art.Variables[name].Steps

		series := make([]float64, f.art.Horizon)
		for k, sm := range steps {
			v := sm.Intercept
			for j, c := range sm.Coefficients {
				v += c * block[j]
			}
			series[k] = max(v, 0)
		}
		values[name] = series
	}

	stepConf := make([]float64, f.art.Horizon)
	conf := f.art.BaseConfidence
	for k := range stepConf {
		conf *= f.art.ConfidenceDecay
		stepConf[k] = clamp(conf, 0, 1)
	}

	return Prediction{
		ModelID:    Forecaster,
		Kind:       KindForecast,
		Confidence: stepConf[0],
		Forecast: &ForecastSeries{
			Horizon:        f.art.Horizon,
			Values:         values,
			StepConfidence: stepConf,
		},
	}, nil
}
