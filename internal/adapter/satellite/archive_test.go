package satellite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityforge/enviro-intel/internal/domain"
)

func writeArchive(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daily_composites.jsonl")
	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFetch_MapsNativeFieldsToCanonical(t *testing.T) {
	path := writeArchive(t,
		`{"date":"2026-08-01","T2M":28.3,"RH2M":84.0,"aqi_estimated":52.0,"pm25_estimated":24.1,"flood_risk_score":41.0,"unknown_column":5}`,
	)
	a := NewArchive(path, testLogger())

	readings, err := a.Fetch(context.Background(), nil,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, readings, 1)

	raw := readings[0]
	assert.Equal(t, domain.SourceSatellite, raw.Source)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), raw.Timestamp)

	assert.Contains(t, raw.Fields, domain.FieldTemperature)
	assert.Contains(t, raw.Fields, domain.FieldHumidity)
	assert.Contains(t, raw.Fields, domain.FieldAQI)
	assert.Contains(t, raw.Fields, domain.FieldPM25)
	assert.Contains(t, raw.Fields, domain.FieldFloodRisk)
	assert.NotContains(t, raw.Fields, "unknown_column", "unmapped columns are dropped")
	assert.NotContains(t, raw.Fields, "date")
}

func TestFetch_WindowAndOrdering(t *testing.T) {
	path := writeArchive(t,
		`{"date":"2026-08-03","T2M":29.0}`,
		`{"date":"2026-08-01","T2M":27.0}`,
		`{"date":"2026-08-02","T2M":28.0}`,
		`{"date":"2026-07-01","T2M":26.0}`,
	)
	a := NewArchive(path, testLogger())

	readings, err := a.Fetch(context.Background(), nil,
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, readings, 3, "out-of-window days are excluded")

	for i := 1; i < len(readings); i++ {
		assert.True(t, readings[i-1].Timestamp.Before(readings[i].Timestamp), "readings must be oldest first")
	}
}

func TestFetch_FieldFilter(t *testing.T) {
	path := writeArchive(t,
		`{"date":"2026-08-01","T2M":28.3,"RH2M":84.0,"aqi_estimated":52.0}`,
	)
	a := NewArchive(path, testLogger())

	readings, err := a.Fetch(context.Background(), []string{domain.FieldAQI},
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, readings, 1)

	assert.Contains(t, readings[0].Fields, domain.FieldAQI)
	assert.NotContains(t, readings[0].Fields, domain.FieldTemperature)
}

func TestFetch_SkipsMalformedLines(t *testing.T) {
	path := writeArchive(t,
		`{"date":"2026-08-01","T2M":28.3}`,
		`{not json at all`,
		`{"T2M":28.3}`,
		`{"date":"2026-08-02","T2M":28.9}`,
	)
	a := NewArchive(path, testLogger())

	readings, err := a.Fetch(context.Background(), nil,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, readings, 2, "malformed and dateless lines are skipped, not fatal")
}

func TestFetch_SentinelValuesPassThrough(t *testing.T) {
	path := writeArchive(t,
		`{"date":"2026-08-01","aod_550nm":-999.0,"soil_moisture":-9999.0}`,
	)
	a := NewArchive(path, testLogger())

	readings, err := a.Fetch(context.Background(), nil,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, readings, 1)

	// Sentinels are normalization's concern, not the adapter's.
	assert.Contains(t, readings[0].Fields, domain.FieldAOD550)
	assert.Contains(t, readings[0].Fields, domain.FieldSoilMoisture)
}

func TestFetch_MissingArchiveIsServiceUnavailable(t *testing.T) {
	a := NewArchive(filepath.Join(t.TempDir(), "nope.jsonl"), testLogger())

	_, err := a.Fetch(context.Background(), nil, time.Time{}, time.Now())
	require.Error(t, err)

	var unavailable *domain.ServiceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, domain.SourceSatellite, unavailable.Source)
}

func TestLatest(t *testing.T) {
	path := writeArchive(t,
		`{"date":"2026-08-01","T2M":27.0}`,
		`{"date":"2026-08-03","T2M":29.5}`,
	)
	a := NewArchive(path, testLogger())

	now := time.Date(2026, 8, 4, 12, 0, 0, 0, time.UTC)
	raw, err := a.Latest(context.Background(), 7*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), raw.Timestamp)

	_, err = a.Latest(context.Background(), 24*time.Hour, now.AddDate(0, 6, 0))
	var unavailable *domain.ServiceUnavailableError
	require.True(t, errors.As(err, &unavailable))
}
