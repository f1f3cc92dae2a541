package model

import (
	"fmt"

	"github.com/cityforge/enviro-intel/internal/feature"
)

// significanceLevel is the p-value bound below which a correlation pair is
// reported as significant.
const significanceLevel = 0.05

// correlationPair is one precomputed urban-environmental relationship from
// the historical regression bank.
type correlationPair struct {
	Urban       string  `json:"urban"`
	Env         string  `json:"environmental"`
	Coefficient float64 `json:"correlation"`
	PValue      float64 `json:"p_value"`
	Samples     int     `json:"samples"`
}

// urbanArtifact is the correlation/regression bank refreshed independently of
// live data by the historical aggregation job.
type urbanArtifact struct {
	Algorithm string            `json:"algorithm"`
	Features  []feature.Field   `json:"features"`
	Pairs     []correlationPair `json:"pairs"`
}

type urbanAnalyzer struct {
	art    urbanArtifact
	schema feature.Schema
}

func newUrbanAnalyzer(dir string) (*urbanAnalyzer, error) {
	art, err := loadArtifact[urbanArtifact](dir, urbanArtifactFile)
	if err != nil {
		return nil, err
	}
	if len(art.Pairs) == 0 {
		return nil, fmt.Errorf("urban artifact: empty correlation bank")
	}

	schema := feature.Schema{Model: UrbanImpact, Static: art.Features}
	for i, p := range art.Pairs {
		if schema.StaticIndex(p.Urban) < 0 {
			return nil, fmt.Errorf("urban artifact: pair %d references undeclared urban feature %q", i, p.Urban)
		}
	}

	return &urbanAnalyzer{art: art, schema: schema}, nil
}

func (u *urbanAnalyzer) ID() string { return UrbanImpact }

func (u *urbanAnalyzer) Schema() feature.Schema { return u.schema }

// Predict attaches the current urban factor values to the precomputed
// correlation bank. The bank is built from historical aggregates, so this
// model never fails on missing live data: every urban feature carries a
// trained-mean fallback in its schema. Confidence is the share of pairs that
// are statistically significant.
func (u *urbanAnalyzer) Predict(vec feature.Vector) (Prediction, error) {
	if vec.Len() != u.schema.Width() {
		return Prediction{}, fmt.Errorf("urban analyzer: vector width %d, want %d", vec.Len(), u.schema.Width())
	}

	correlations := make([]Correlation, len(u.art.Pairs))
	significant := 0
	for i, p := range u.art.Pairs {
		direction := "positive"
		if p.Coefficient < 0 {
			direction = "negative"
		}
		sig := p.PValue < significanceLevel
		if sig {
			significant++
		}
		correlations[i] = Correlation{
			UrbanFactor: vec.At(u.schema.StaticIndex(p.Urban)),
			Urban:       p.Urban,
			Env:         p.Env,
			Coefficient: p.Coefficient,
			PValue:      p.PValue,
			Significant: sig,
			Direction:   direction,
			Samples:     p.Samples,
		}
	}

	return Prediction{
		ModelID:      UrbanImpact,
		Kind:         KindImpact,
		Confidence:   float64(significant) / float64(len(u.art.Pairs)),
		Correlations: correlations,
	}, nil
}
