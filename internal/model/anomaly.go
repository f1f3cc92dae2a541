package model

import (
	"fmt"
	"math"

	"github.com/cityforge/enviro-intel/internal/feature"
)

// DefaultAnomalyThreshold is the conventional decision boundary on the
// density score.
const DefaultAnomalyThreshold = 0.1

// anomalyArtifact is the serialized density-based detector: cluster centroids
// in standardized feature space plus the kernel bandwidth. A point far from
// every centroid scores close to 1.
type anomalyArtifact struct {
	Algorithm string          `json:"algorithm"`
	Features  []feature.Field `json:"features"`
	Means     []float64       `json:"means"`
	Stddevs   []float64       `json:"stddevs"`
	Centroids [][]float64     `json:"centroids"`
	Bandwidth float64         `json:"bandwidth"`
	Threshold float64         `json:"threshold"`
}

type anomalyDetector struct {
	art    anomalyArtifact
	schema feature.Schema
}

func newAnomalyDetector(dir string) (*anomalyDetector, error) {
	art, err := loadArtifact[anomalyArtifact](dir, anomalyArtifactFile)
	if err != nil {
		return nil, err
	}

	n := len(art.Features)
	if len(art.Means) != n || len(art.Stddevs) != n {
		return nil, fmt.Errorf("anomaly artifact: scaler dims %d/%d, want %d", len(art.Means), len(art.Stddevs), n)
	}
	if len(art.Centroids) == 0 {
		return nil, fmt.Errorf("anomaly artifact: no centroids")
	}
	for i, c := range art.Centroids {
		if len(c) != n {
			return nil, fmt.Errorf("anomaly artifact: centroid %d dim %d, want %d", i, len(c), n)
		}
	}
	if art.Bandwidth <= 0 {
		return nil, fmt.Errorf("anomaly artifact: non-positive bandwidth %v", art.Bandwidth)
	}
	if art.Threshold <= 0 {
		art.Threshold = DefaultAnomalyThreshold
	}

	return &anomalyDetector{
		art:    art,
		schema: feature.Schema{Model: AnomalyDetector, Static: art.Features},
	}, nil
}

func (a *anomalyDetector) ID() string { return AnomalyDetector }

func (a *anomalyDetector) Schema() feature.Schema { return a.schema }

// Predict standardizes the feature point, measures its distance to the
// nearest cluster centroid, and maps that through a Gaussian kernel to a
// score in [0,1). The detector has no confidence notion: it reports score and
// threshold only, so Confidence stays zero by design of the contract, not as
// a degradation marker.
func (a *anomalyDetector) Predict(vec feature.Vector) (Prediction, error) {
	if vec.Len() != a.schema.Width() {
		return Prediction{}, fmt.Errorf("anomaly detector: vector width %d, want %d", vec.Len(), a.schema.Width())
	}

	point := make([]float64, vec.Len())
	for i := range point {
		sd := a.art.Stddevs[i]
		if sd == 0 {
			sd = 1
		}
		point[i] = (vec.At(i) - a.art.Means[i]) / sd
	}

	minDist := math.Inf(1)
	for _, c := range a.art.Centroids {
		var sum float64
		for i := range point {
			d := point[i] - c[i]
			sum += d * d
		}
		if dist := math.Sqrt(sum / float64(len(point))); dist < minDist {
			minDist = dist
		}
	}

	score := 1 - math.Exp(-(minDist*minDist)/(2*a.art.Bandwidth*a.art.Bandwidth))
	flagged := score > a.art.Threshold

	return Prediction{
		ModelID: AnomalyDetector,
		Kind:    KindAnomaly,
		Anomaly: &AnomalySignal{
			Score:     score,
			Threshold: a.art.Threshold,
			Flagged:   flagged,
			Severity:  anomalySeverity(score),
		},
	}, nil
}

// anomalySeverity bands the score for user-facing display.
func anomalySeverity(score float64) string {
	switch {
	case score > 0.7:
		return "High"
	case score > 0.3:
		return "Medium"
	default:
		return "Low"
	}
}
