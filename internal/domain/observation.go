package domain

import "time"

// Source identifies an upstream data source tracked for freshness.
type Source string

const (
	SourceSatellite Source = "satellite"
	SourceWeather   Source = "weather"
)

// RawReading is a timestamped set of named numeric fields as delivered by one
// source adapter. Values may carry the source's missing-data sentinel; they
// are interface-typed because malformed payloads (non-numeric values) must be
// detectable rather than silently coerced. RawReadings are immutable and live
// only until normalized.
type RawReading struct {
	Source    Source
	Timestamp time.Time
	Fields    map[string]any
}

// Quality tags how a normalized field value was obtained.
type Quality string

const (
	QualityMeasured     Quality = "measured"
	QualityInterpolated Quality = "interpolated"
	QualityDefaulted    Quality = "defaulted"
)

// FieldValue is one cleaned observation value plus its provenance tag.
type FieldValue struct {
	Value   float64 `json:"value"`
	Quality Quality `json:"quality"`
}

// NormalizedObservation maps every canonical field to a cleaned value. The
// normalizer guarantees completeness: each field any downstream model needs is
// present, substituted from history or the default table when the source did
// not deliver it.
type NormalizedObservation struct {
	Timestamp time.Time             `json:"timestamp"`
	Fields    map[string]FieldValue `json:"fields"`
}

// Value returns the cleaned value for a canonical field, or ok=false if the
// observation does not carry it.
func (o NormalizedObservation) Value(name string) (float64, bool) {
	fv, ok := o.Fields[name]
	return fv.Value, ok
}

// QualityOf returns the quality tag for a canonical field, defaulting to
// QualityDefaulted for fields the observation does not carry.
func (o NormalizedObservation) QualityOf(name string) Quality {
	if fv, ok := o.Fields[name]; ok {
		return fv.Quality
	}
	return QualityDefaulted
}

// Measured reports whether the field was delivered by the source as-is.
func (o NormalizedObservation) Measured(name string) bool {
	return o.QualityOf(name) == QualityMeasured
}
