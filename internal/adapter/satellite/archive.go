// Package satellite reads daily environmental composites from a line-
// delimited JSON archive. Each line is one day of merged NASA POWER, Sentinel
// and VIIRS products under their source-native field names; the adapter maps
// them to canonical names and leaves sentinel handling to normalization.
package satellite

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/cityforge/enviro-intel/internal/domain"
)

// nativeFieldMap translates archive column names to canonical field names.
// POWER meteorology keeps its upstream all-caps identifiers; derived product
// columns are already lowercase.
var nativeFieldMap = map[string]string{
	"T2M":                      domain.FieldTemperature,
	"T2M_MAX":                  domain.FieldTempMax,
	"T2M_MIN":                  domain.FieldTempMin,
	"RH2M":                     domain.FieldHumidity,
	"WS10M":                    domain.FieldWindSpeed,
	"PRECTOTCORR":              domain.FieldPrecipitation,
	"heat_index_c":             domain.FieldHeatIndex,
	"aqi_estimated":            domain.FieldAQI,
	"pm25_estimated":           domain.FieldPM25,
	"no2_column_density":       domain.FieldNO2,
	"aod_550nm":                domain.FieldAOD550,
	"soil_moisture":            domain.FieldSoilMoisture,
	"ndwi":                     domain.FieldNDWI,
	"flood_risk_score":         domain.FieldFloodRisk,
	"radiance_nw_cm2_sr":       domain.FieldRadiance,
	"economic_activity_index":  domain.FieldEconomicActivity,
	"urban_environmental_load": domain.FieldUrbanLoad,
	"environmental_stress":     domain.FieldEnvironmentalStress,
	"air_quality_composite":    domain.FieldAirComposite,
	"water_stress_index":       domain.FieldWaterStress,
}

// Archive is a read-only JSONL satellite archive.
type Archive struct {
	path   string
	logger *slog.Logger
}

// NewArchive creates an Archive over the given file path. The file is opened
// per fetch, so the archive can be replaced on disk between cycles.
func NewArchive(path string, logger *slog.Logger) *Archive {
	return &Archive{path: path, logger: logger}
}

// Fetch returns one RawReading per archive day inside [from, to], oldest
// first, restricted to the requested canonical fields (empty means all). An
// unreadable archive is a ServiceUnavailableError; individually malformed
// lines are skipped and logged.
func (a *Archive) Fetch(ctx context.Context, fields []string, from, to time.Time) ([]domain.RawReading, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, &domain.ServiceUnavailableError{Source: domain.SourceSatellite, Err: fmt.Errorf("opening archive: %w", err)}
	}
	defer f.Close()

	wanted := make(map[string]bool, len(fields))
	for _, name := range fields {
		wanted[name] = true
	}

	var out []domain.RawReading
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		raw, err := parseLine(line)
		if err != nil {
			a.logger.Warn("skipping malformed archive line", "line", lineNo, "error", err)
			continue
		}
		if raw.Timestamp.Before(from) || raw.Timestamp.After(to) {
			continue
		}
		if len(wanted) > 0 {
			for name := range raw.Fields {
				if !wanted[name] {
					delete(raw.Fields, name)
				}
			}
		}
		out = append(out, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.ServiceUnavailableError{Source: domain.SourceSatellite, Err: fmt.Errorf("reading archive: %w", err)}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Latest returns the newest archive reading inside the lookback window.
func (a *Archive) Latest(ctx context.Context, lookback time.Duration, now time.Time) (domain.RawReading, error) {
	readings, err := a.Fetch(ctx, nil, now.Add(-lookback), now)
	if err != nil {
		return domain.RawReading{}, err
	}
	if len(readings) == 0 {
		return domain.RawReading{}, &domain.ServiceUnavailableError{
			Source: domain.SourceSatellite,
			Err:    fmt.Errorf("no archive data within %s", lookback),
		}
	}
	return readings[len(readings)-1], nil
}

// parseLine decodes one archive record. The date column is required; every
// other column passes through if a canonical mapping exists. Numbers are kept
// as json.Number so normalization can reject non-numeric payloads itself.
func parseLine(line []byte) (domain.RawReading, error) {
	record := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return domain.RawReading{}, fmt.Errorf("decoding record: %w", err)
	}

	dateVal, ok := record["date"].(string)
	if !ok {
		return domain.RawReading{}, fmt.Errorf("record has no date column")
	}
	ts, err := time.Parse(time.DateOnly, dateVal)
	if err != nil {
		// Some archive exports carry full timestamps.
		ts, err = time.Parse(time.RFC3339, dateVal)
		if err != nil {
			return domain.RawReading{}, fmt.Errorf("unparseable date %q", dateVal)
		}
	}

	raw := domain.RawReading{
		Source:    domain.SourceSatellite,
		Timestamp: ts.UTC(),
		Fields:    make(map[string]any, len(record)),
	}
	for native, v := range record {
		if canonical, ok := nativeFieldMap[native]; ok {
			raw.Fields[canonical] = v
		}
	}
	return raw, nil
}
