package feature

import (
	"github.com/cityforge/enviro-intel/internal/domain"
)

// Build assembles a feature vector for one model schema from the current
// observation and ordered history (oldest first, current observation not
// included). Static fields come straight from the observation, falling back
// to the schema's trained mean. Temporal variables expand into lag values and
// rolling mean/variance blocks; when history is shorter than a lag or window,
// the earliest available data stands in, so temporal features are never null.
func Build(obs domain.NormalizedObservation, history []domain.NormalizedObservation, schema Schema) (Vector, error) {
	values := make([]float64, 0, schema.Width())

	for _, f := range schema.Static {
		v, ok := obs.Value(f.Name)
		if !ok {
			if f.TrainedMean == nil {
				return Vector{}, &domain.SchemaMismatchError{Model: schema.Model, Field: f.Name}
			}
			v = *f.TrainedMean
		}
		values = append(values, v)
	}

	for _, variable := range schema.Temporal {
		series := seriesFor(variable, obs, history)

		for _, offset := range LagOffsets {
			values = append(values, lag(series, offset))
		}
		for _, window := range RollingWindows {
			mean, variance := rolling(series, window)
			values = append(values, mean, variance)
		}
	}

	vec := Vector{Model: schema.Model, Values: values}
	if vec.Len() != schema.Width() {
		// Unreachable by construction; kept as a hard guard on the contract.
		return Vector{}, &domain.SchemaMismatchError{Model: schema.Model, Field: "(width)"}
	}
	return vec, nil
}

// seriesFor extracts one variable's value series, oldest first, ending with
// the current observation. Observations that lack the variable contribute the
// seasonal default via NormalizedObservation completeness, so the series has
// one point per period.
func seriesFor(variable string, obs domain.NormalizedObservation, history []domain.NormalizedObservation) []float64 {
	series := make([]float64, 0, len(history)+1)
	for _, h := range history {
		if v, ok := h.Value(variable); ok {
			series = append(series, v)
		}
	}
	if v, ok := obs.Value(variable); ok {
		series = append(series, v)
	}
	return series
}

// lag returns the value offset periods before the end of the series, clamped
// to the earliest point when the series is too short.
func lag(series []float64, offset int) float64 {
	if len(series) == 0 {
		return 0
	}
	i := len(series) - 1 - offset
	if i < 0 {
		i = 0
	}
	return series[i]
}

// rolling returns mean and population variance over the trailing window,
// shrinking the window to whatever history exists.
func rolling(series []float64, window int) (mean, variance float64) {
	if len(series) == 0 {
		return 0, 0
	}
	start := len(series) - window
	if start < 0 {
		start = 0
	}
	tail := series[start:]

	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))

	for _, v := range tail {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(tail))
	return mean, variance
}
