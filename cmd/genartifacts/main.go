// Command genartifacts writes a locally runnable set of model artifacts and a
// synthetic satellite archive. The artifacts carry hand-tuned parameters in
// the exact serialized layout the training pipeline exports, so a fresh
// checkout can serve real responses without access to the training bucket.
//
// Usage:
//
//	go run ./cmd/genartifacts \
//	  -artifact-dir data/artifacts \
//	  -archive-out data/archive/daily_composites.jsonl \
//	  -days 60
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/feature"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	artifactDir := flag.String("artifact-dir", "data/artifacts", "output directory for model artifact JSON files")
	archiveOut := flag.String("archive-out", "data/archive/daily_composites.jsonl", "output path for the synthetic satellite archive")
	days := flag.Int("days", 60, "number of archive days to generate")
	flag.Parse()

	if err := os.MkdirAll(*artifactDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*archiveOut), 0o755); err != nil {
		return err
	}

	artifacts := map[string]any{
		"health_scorer.json":    healthArtifact(),
		"risk_classifier.json":  riskArtifact(),
		"forecaster.json":       forecastArtifact(),
		"anomaly_detector.json": anomalyArtifact(),
		"urban_impact.json":     urbanArtifact(),
	}
	for file, art := range artifacts {
		if err := writeJSON(filepath.Join(*artifactDir, file), art); err != nil {
			return err
		}
		fmt.Println("wrote", filepath.Join(*artifactDir, file))
	}

	if err := writeArchive(*archiveOut, *days); err != nil {
		return err
	}
	fmt.Println("wrote", *archiveOut)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func mean(v float64) *float64 { return &v }

// fields builds a static feature list with trained-mean fallbacks taken from
// the climate default table.
func fields(names ...string) []feature.Field {
	out := make([]feature.Field, len(names))
	for i, name := range names {
		v, _ := domain.DefaultFor(name, time.Time{})
		out[i] = feature.Field{Name: name, TrainedMean: mean(v)}
	}
	return out
}

func healthArtifact() any {
	type stump struct {
		Feature   string  `json:"feature"`
		Threshold float64 `json:"threshold"`
		Left      float64 `json:"left"`
		Right     float64 `json:"right"`
	}
	return map[string]any{
		"algorithm":       "gradient_boosted_stumps",
		"base_score":      72.0,
		"margin_of_error": 8.0,
		"features": fields(
			domain.FieldAQI, domain.FieldPM25, domain.FieldNO2,
			domain.FieldHeatIndex, domain.FieldHumidity,
			domain.FieldFloodRisk, domain.FieldSoilMoisture,
			domain.FieldEnvironmentalStress,
		),
		"stumps": []stump{
			{Feature: domain.FieldAQI, Threshold: 100, Left: 4, Right: -9},
			{Feature: domain.FieldAQI, Threshold: 150, Left: 1, Right: -6},
			{Feature: domain.FieldPM25, Threshold: 35, Left: 3, Right: -7},
			{Feature: domain.FieldPM25, Threshold: 60, Left: 1, Right: -5},
			{Feature: domain.FieldNO2, Threshold: 0.6, Left: 1, Right: -3},
			{Feature: domain.FieldHeatIndex, Threshold: 32, Left: 3, Right: -6},
			{Feature: domain.FieldHeatIndex, Threshold: 40, Left: 1, Right: -8},
			{Feature: domain.FieldFloodRisk, Threshold: 50, Left: 2, Right: -7},
			{Feature: domain.FieldSoilMoisture, Threshold: 0.45, Left: 1, Right: -3},
			{Feature: domain.FieldEnvironmentalStress, Threshold: 30, Left: 2, Right: -5},
		},
	}
}

func riskArtifact() any {
	return map[string]any{
		"algorithm": "multi_output_ordinal",
		"features": fields(
			domain.FieldAQI, domain.FieldPM25,
			domain.FieldHeatIndex, domain.FieldTempMax, domain.FieldHumidity,
			domain.FieldPrecipitation, domain.FieldFloodRisk, domain.FieldNDWI,
		),
		"outputs": map[string]any{
			"air": map[string]any{
				"weights": map[string]float64{
					domain.FieldAQI:  0.020,
					domain.FieldPM25: 0.030,
				},
				"intercept":    -0.6,
				"cuts":         []float64{0.8, 1.6, 2.6, 3.6},
				"margin_scale": 0.5,
			},
			"heat": map[string]any{
				"weights": map[string]float64{
					domain.FieldHeatIndex: 0.10,
					domain.FieldTempMax:   0.03,
					domain.FieldHumidity:  0.004,
				},
				"intercept":    -2.6,
				"cuts":         []float64{1.0, 1.8, 2.6, 3.4},
				"margin_scale": 0.4,
			},
			"flood": map[string]any{
				"weights": map[string]float64{
					domain.FieldPrecipitation: 0.05,
					domain.FieldFloodRisk:     0.035,
					domain.FieldNDWI:          0.8,
				},
				"intercept":    -0.4,
				"cuts":         []float64{0.9, 1.8, 2.8, 3.8},
				"margin_scale": 0.5,
			},
		},
	}
}

func forecastArtifact() any {
	type stepModel struct {
		Intercept    float64   `json:"intercept"`
		Coefficients []float64 `json:"coefficients"`
	}

	// One linear model per step: lean on lag-1 heavily at step 1 and shift
	// weight toward the rolling means at longer horizons.
	steps := func(base float64) []stepModel {
		width := feature.TemporalBlockWidth()
		out := make([]stepModel, 7)
		for k := range out {
			decay := float64(k+1) / 7
			coeffs := make([]float64, width)
			// Lags 1 and 3, then the window-3 and window-7 rolling means.
			coeffs[0] = 0.85 * (1 - decay)
			coeffs[1] = 0.10 * (1 - decay)
			coeffs[len(feature.LagOffsets)] = 0.25 + 0.55*decay
			coeffs[len(feature.LagOffsets)+2] = 0.15 * decay
			out[k] = stepModel{Intercept: base * 0.05 * decay, Coefficients: coeffs}
		}
		return out
	}

	return map[string]any{
		"algorithm":        "per_step_linear",
		"horizon":          7,
		"base_confidence":  0.92,
		"confidence_decay": 0.88,
		"variables": map[string]any{
			domain.FieldAQI:           map[string]any{"steps": steps(45)},
			domain.FieldPM25:          map[string]any{"steps": steps(22)},
			domain.FieldTemperature:   map[string]any{"steps": steps(28.5)},
			domain.FieldPrecipitation: map[string]any{"steps": steps(1.2)},
		},
	}
}

func anomalyArtifact() any {
	names := []string{
		domain.FieldAQI, domain.FieldPM25, domain.FieldTemperature,
		domain.FieldHumidity, domain.FieldPrecipitation,
		domain.FieldFloodRisk, domain.FieldRadiance,
	}
	means := []float64{55, 26, 28.8, 76, 4.5, 30, 28.5}
	stddevs := []float64{22, 11, 2.4, 9, 7.5, 16, 6}

	// Three regimes observed in the historical clustering: dry season,
	// monsoon, and high-pollution winter episodes, in standardized space.
	centroids := [][]float64{
		{-0.3, -0.3, 0.2, -0.6, -0.5, -0.5, 0.1},
		{-0.5, -0.6, -0.4, 1.0, 1.3, 1.1, -0.3},
		{1.4, 1.5, -0.5, -0.4, -0.5, -0.4, 0.4},
	}

	return map[string]any{
		"algorithm": "nearest_centroid_density",
		"features":  fields(names...),
		"means":     means,
		"stddevs":   stddevs,
		"centroids": centroids,
		"bandwidth": 1.1,
		"threshold": 0.1,
	}
}

func urbanArtifact() any {
	type pair struct {
		Urban       string  `json:"urban"`
		Env         string  `json:"environmental"`
		Coefficient float64 `json:"correlation"`
		PValue      float64 `json:"p_value"`
		Samples     int     `json:"samples"`
	}
	return map[string]any{
		"algorithm": "pearson_bank",
		"features": fields(
			domain.FieldRadiance, domain.FieldEconomicActivity, domain.FieldUrbanLoad,
		),
		"pairs": []pair{
			{Urban: domain.FieldRadiance, Env: domain.FieldAQI, Coefficient: 0.62, PValue: 0.001, Samples: 365},
			{Urban: domain.FieldRadiance, Env: domain.FieldPM25, Coefficient: 0.57, PValue: 0.002, Samples: 365},
			{Urban: domain.FieldEconomicActivity, Env: domain.FieldNO2, Coefficient: 0.48, PValue: 0.01, Samples: 365},
			{Urban: domain.FieldEconomicActivity, Env: domain.FieldEnvironmentalStress, Coefficient: 0.41, PValue: 0.03, Samples: 365},
			{Urban: domain.FieldUrbanLoad, Env: domain.FieldHeatIndex, Coefficient: 0.36, PValue: 0.04, Samples: 365},
			{Urban: domain.FieldUrbanLoad, Env: domain.FieldNDWI, Coefficient: -0.29, PValue: 0.09, Samples: 365},
		},
	}
}

// writeArchive generates a synthetic but plausibly seasonal daily archive
// under the source-native column names, ending yesterday. A fixed seed keeps
// fixtures reproducible across runs.
func writeArchive(path string, days int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(20250801))
	enc := json.NewEncoder(f)

	end := time.Now().UTC().Truncate(24 * time.Hour)
	for i := days; i >= 1; i-- {
		day := end.AddDate(0, 0, -i)
		monsoon := domain.IsMonsoonSeason(day)

		season := math.Sin(2 * math.Pi * float64(day.YearDay()) / 365)
		noise := func(scale float64) float64 { return (rng.Float64()*2 - 1) * scale }

		temp := 28.5 + 3*season + noise(1.2)
		humidity := 72 + noise(6)
		precip := 0.8 + noise(0.7)
		flood := 22 + noise(8)
		soil := 0.24 + noise(0.05)
		if monsoon {
			humidity = 86 + noise(5)
			precip = 14 + rng.Float64()*20
			flood = 44 + noise(12)
			soil = 0.37 + noise(0.06)
		}

		aqi := 48 + 25*math.Max(0, -season) + noise(15)
		pm25 := aqi * 0.45

		record := map[string]any{
			"date":                     day.Format(time.DateOnly),
			"T2M":                      round1(temp),
			"T2M_MAX":                  round1(temp + 3.4),
			"T2M_MIN":                  round1(temp - 3.1),
			"RH2M":                     round1(humidity),
			"WS10M":                    round1(2.4 + noise(0.8)),
			"PRECTOTCORR":              round1(math.Max(0, precip)),
			"aqi_estimated":            round1(aqi),
			"pm25_estimated":           round1(pm25),
			"no2_column_density":       round2(0.32 + noise(0.1)),
			"aod_550nm":                round2(0.46 + noise(0.12)),
			"soil_moisture":            round2(soil),
			"ndwi":                     round2(0.17 + noise(0.05)),
			"flood_risk_score":         round1(math.Max(0, flood)),
			"radiance_nw_cm2_sr":       round1(28.5 + noise(4)),
			"economic_activity_index":  round1(65 + noise(7)),
			"urban_environmental_load": round1(520 + noise(60)),
			"environmental_stress":     round1(18.5 + noise(5)),
			"air_quality_composite":    round2(0.28 + noise(0.08)),
			"water_stress_index":       round2(2.3 + noise(0.4)),
		}

		// A handful of sentinel gaps per month keeps local runs honest about
		// substitution handling.
		if rng.Intn(12) == 0 {
			record["aod_550nm"] = -999.0
		}
		if rng.Intn(15) == 0 {
			record["soil_moisture"] = -9999.0
		}

		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
