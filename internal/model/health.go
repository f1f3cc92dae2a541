package model

import (
	"fmt"

	"github.com/cityforge/enviro-intel/internal/feature"
)

// stump is one shallow regression tree in the boosted ensemble: a single
// split on one feature with additive left/right contributions.
type stump struct {
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// healthArtifact is the serialized gradient-boosted regression model that
// scores overall environmental health on a 0-100 scale.
type healthArtifact struct {
	Algorithm     string          `json:"algorithm"`
	BaseScore     float64         `json:"base_score"`
	MarginOfError float64         `json:"margin_of_error"`
	Features      []feature.Field `json:"features"`
	Stumps        []stump         `json:"stumps"`
}

type healthScorer struct {
	art     healthArtifact
	schema  feature.Schema
	indexes []int // stump i splits on feature indexes[i]
}

func newHealthScorer(dir string) (*healthScorer, error) {
	art, err := loadArtifact[healthArtifact](dir, healthArtifactFile)
	if err != nil {
		return nil, err
	}

	schema := feature.Schema{Model: HealthScorer, Static: art.Features}
	indexes := make([]int, len(art.Stumps))
	for i, s := range art.Stumps {
		idx := schema.StaticIndex(s.Feature)
		if idx < 0 {
			return nil, fmt.Errorf("health artifact: stump %d splits on undeclared feature %q", i, s.Feature)
		}
		indexes[i] = idx
	}

	return &healthScorer{art: art, schema: schema, indexes: indexes}, nil
}

func (h *healthScorer) ID() string { return HealthScorer }

func (h *healthScorer) Schema() feature.Schema { return h.schema }

// Predict sums the ensemble's additive contributions over the base score and
// clamps to [0,100]. Confidence is fixed per deployment: one minus the
// documented margin of error, expressed as a fraction of the score range.
func (h *healthScorer) Predict(vec feature.Vector) (Prediction, error) {
	if vec.Len() != h.schema.Width() {
		return Prediction{}, fmt.Errorf("health scorer: vector width %d, want %d", vec.Len(), h.schema.Width())
	}

	score := h.art.BaseScore
	for i, s := range h.art.Stumps {
		if vec.At(h.indexes[i]) <= s.Threshold {
			score += s.Left
		} else {
			score += s.Right
		}
	}
	score = clamp(score, 0, 100)

	return Prediction{
		ModelID:    HealthScorer,
		Kind:       KindScore,
		Confidence: clamp(1-h.art.MarginOfError/100, 0, 1),
		Score:      &score,
	}, nil
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
