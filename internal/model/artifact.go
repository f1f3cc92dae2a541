package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact filenames within the artifact directory. One JSON file per model,
// written by the training pipeline (or cmd/genartifacts for local runs).
const (
	healthArtifactFile   = "health_scorer.json"
	riskArtifactFile     = "risk_classifier.json"
	forecastArtifactFile = "forecaster.json"
	anomalyArtifactFile  = "anomaly_detector.json"
	urbanArtifactFile    = "urban_impact.json"
)

// loadArtifact reads and decodes one artifact file. A missing or unreadable
// artifact is an error the registry records per model; it never aborts startup.
func loadArtifact[T any](dir, file string) (T, error) {
	var art T
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return art, fmt.Errorf("read artifact %s: %w", file, err)
	}
	if err := json.Unmarshal(data, &art); err != nil {
		return art, fmt.Errorf("decode artifact %s: %w", file, err)
	}
	return art, nil
}
