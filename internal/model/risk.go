package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/cityforge/enviro-intel/internal/feature"
)

// riskOutputArtifact is one ordinal head of the multi-output classifier: a
// linear score over the shared feature vector, cut into five levels.
type riskOutputArtifact struct {
	Weights     map[string]float64 `json:"weights"`
	Intercept   float64            `json:"intercept"`
	Cuts        []float64          `json:"cuts"`         // 4 ascending boundaries for levels 1-5
	MarginScale float64            `json:"margin_scale"` // logistic temperature for the class probability
}

// riskArtifact is the serialized multi-output risk classifier covering the
// air, flood and heat domains.
type riskArtifact struct {
	Algorithm string                        `json:"algorithm"`
	Features  []feature.Field               `json:"features"`
	Outputs   map[string]riskOutputArtifact `json:"outputs"`
}

type riskClassifier struct {
	art     riskArtifact
	schema  feature.Schema
	domains []string // stable iteration order
}

func newRiskClassifier(dir string) (*riskClassifier, error) {
	art, err := loadArtifact[riskArtifact](dir, riskArtifactFile)
	if err != nil {
		return nil, err
	}
	if len(art.Outputs) == 0 {
		return nil, fmt.Errorf("risk artifact: no outputs declared")
	}

	schema := feature.Schema{Model: RiskClassifier, Static: art.Features}
	domains := make([]string, 0, len(art.Outputs))
	for domainName, out := range art.Outputs {
		if len(out.Cuts) != 4 {
			return nil, fmt.Errorf("risk artifact: output %q has %d cuts, want 4", domainName, len(out.Cuts))
		}
		for name := range out.Weights {
			if schema.StaticIndex(name) < 0 {
				return nil, fmt.Errorf("risk artifact: output %q weights undeclared feature %q", domainName, name)
			}
		}
		domains = append(domains, domainName)
	}
	sort.Strings(domains)

	return &riskClassifier{art: art, schema: schema, domains: domains}, nil
}

func (r *riskClassifier) ID() string { return RiskClassifier }

func (r *riskClassifier) Schema() feature.Schema { return r.schema }

// Predict scores each domain head and cuts the score into an ordinal 1-5
// level. The per-output probability is a logistic function of the distance to
// the nearest cut boundary: confident deep inside a band, near 0.5 at the
// edge. Overall confidence is the mean across domains.
func (r *riskClassifier) Predict(vec feature.Vector) (Prediction, error) {
	if vec.Len() != r.schema.Width() {
		return Prediction{}, fmt.Errorf("risk classifier: vector width %d, want %d", vec.Len(), r.schema.Width())
	}

	risks := make(map[string]RiskOutput, len(r.domains))
	var confSum float64
	for _, domainName := range r.domains {
		out := r.art.Outputs[domainName]

		score := out.Intercept
		for name, w := range out.Weights {
			score += w * vec.At(r.schema.StaticIndex(name))
		}

		level := 1
		margin := math.Inf(1)
		for _, cut := range out.Cuts {
			if score > cut {
				level++
			}
			if d := math.Abs(score - cut); d < margin {
				margin = d
			}
		}

		scale := out.MarginScale
		if scale <= 0 {
			scale = 1
		}
		prob := 1 / (1 + math.Exp(-margin/scale))
		prob = clamp(prob, 0.5, 0.99)

		risks[domainName] = RiskOutput{Level: level, Probability: prob}
		confSum += prob
	}

	return Prediction{
		ModelID:    RiskClassifier,
		Kind:       KindRisks,
		Confidence: confSum / float64(len(r.domains)),
		Risks:      risks,
	}, nil
}
