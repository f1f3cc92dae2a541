package domain

import "time"

// Canonical field names. Every model schema and both source adapters speak in
// these names; source-native names (T2M, RH2M, pm25_estimated, ...) are mapped
// by the adapters before normalization.
const (
	FieldAQI                 = "aqi"
	FieldPM25                = "pm2_5"
	FieldNO2                 = "no2"
	FieldAOD550              = "aod_550nm"
	FieldTemperature         = "temperature"
	FieldTempMax             = "temp_max"
	FieldTempMin             = "temp_min"
	FieldHumidity            = "humidity"
	FieldHeatIndex           = "heat_index"
	FieldWindSpeed           = "wind_speed"
	FieldPrecipitation       = "precipitation"
	FieldSoilMoisture        = "soil_moisture"
	FieldNDWI                = "ndwi"
	FieldFloodRisk           = "flood_risk"
	FieldRadiance            = "radiance"
	FieldEconomicActivity    = "economic_activity"
	FieldUrbanLoad           = "urban_load"
	FieldEnvironmentalStress = "environmental_stress"
	FieldAirComposite        = "air_quality_composite"
	FieldWaterStress         = "water_stress"
)

// SentinelThreshold marks the boundary of the NASA missing-data encoding.
// Values at or below it (-999, -9999) are treated as missing.
const SentinelThreshold = -900.0

// FieldSpec describes one canonical field: its internal unit, its dry-season
// climate default, and an optional monsoon override for fields whose typical
// value shifts materially during June-September.
type FieldSpec struct {
	Name           string
	Unit           string
	Default        float64
	MonsoonDefault *float64
}

func monsoon(v float64) *float64 { return &v }

// fieldTable is the authoritative list of canonical fields and their climate
// defaults for Mumbai. Order here is stable and used wherever a deterministic
// field iteration is needed.
var fieldTable = []FieldSpec{
	{Name: FieldAQI, Unit: "index", Default: 45.0},
	{Name: FieldPM25, Unit: "ug/m3", Default: 22.0},
	{Name: FieldNO2, Unit: "mol/m2e4", Default: 0.35},
	{Name: FieldAOD550, Unit: "index", Default: 0.48},
	{Name: FieldTemperature, Unit: "C", Default: 28.5},
	{Name: FieldTempMax, Unit: "C", Default: 32.0},
	{Name: FieldTempMin, Unit: "C", Default: 25.0},
	{Name: FieldHumidity, Unit: "%", Default: 75.0, MonsoonDefault: monsoon(85.0)},
	{Name: FieldHeatIndex, Unit: "C", Default: 30.2},
	{Name: FieldWindSpeed, Unit: "m/s", Default: 2.5},
	{Name: FieldPrecipitation, Unit: "mm", Default: 1.2, MonsoonDefault: monsoon(18.0)},
	{Name: FieldSoilMoisture, Unit: "m3/m3", Default: 0.25, MonsoonDefault: monsoon(0.38)},
	{Name: FieldNDWI, Unit: "index", Default: 0.18},
	{Name: FieldFloodRisk, Unit: "score", Default: 25.0, MonsoonDefault: monsoon(45.0)},
	{Name: FieldRadiance, Unit: "nW/cm2/sr", Default: 28.5},
	{Name: FieldEconomicActivity, Unit: "index", Default: 65.0},
	{Name: FieldUrbanLoad, Unit: "index", Default: 520.0},
	{Name: FieldEnvironmentalStress, Unit: "index", Default: 18.5},
	{Name: FieldAirComposite, Unit: "index", Default: 0.28},
	{Name: FieldWaterStress, Unit: "index", Default: 2.3},
}

var fieldSpecs = func() map[string]FieldSpec {
	m := make(map[string]FieldSpec, len(fieldTable))
	for _, spec := range fieldTable {
		m[spec.Name] = spec
	}
	return m
}()

// CanonicalFields returns the canonical field names in table order.
func CanonicalFields() []string {
	names := make([]string, len(fieldTable))
	for i, spec := range fieldTable {
		names[i] = spec.Name
	}
	return names
}

// SpecFor returns the FieldSpec for a canonical field name.
func SpecFor(name string) (FieldSpec, bool) {
	spec, ok := fieldSpecs[name]
	return spec, ok
}

// DefaultFor returns the climate default for a field at the given time,
// applying the monsoon override when the date falls in June-September.
func DefaultFor(name string, at time.Time) (float64, bool) {
	spec, ok := fieldSpecs[name]
	if !ok {
		return 0, false
	}
	if spec.MonsoonDefault != nil && IsMonsoonSeason(at) {
		return *spec.MonsoonDefault, true
	}
	return spec.Default, true
}

// IsMonsoonSeason reports whether the date falls in Mumbai's southwest monsoon
// window, June 1 through September 30.
func IsMonsoonSeason(at time.Time) bool {
	m := at.UTC().Month()
	return m >= time.June && m <= time.September
}
