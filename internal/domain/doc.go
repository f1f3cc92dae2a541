// Package domain models the canonical environmental observation schema and
// the normalization rules that convert heterogeneous source payloads into it.
//
// # Data Sources
//
// Observations arrive from two upstream sources:
//
//   - The satellite archive: daily composites derived from NASA MODIS, POWER,
//     VIIRS, SMAP and OMI products, delivered by the acquisition service as
//     flat numeric records keyed by canonical field name.
//   - The live weather feed: a credential-gated REST provider polled for
//     current conditions (temperature, humidity, wind, precipitation,
//     particulates).
//
// # Missing-Data Sentinels
//
// NASA-derived products encode missing samples as large negative placeholders
// (-999 and -9999 are both seen in the wild). Any value at or below
// [SentinelThreshold] is treated as missing. Sentinel detection happens only
// here, at the ingestion boundary; downstream packages never see sentinel
// values, only a per-field quality tag:
//
//	measured      the source delivered a plausible value
//	interpolated  substituted from the last good value within the recency window
//	defaulted     substituted from the seasonal climate default table
//
// # Climate Defaults
//
// When a field is missing and no recent good value exists, the seasonal
// default for the configured city is used. The table in fields.go holds
// long-term typical values for Mumbai, with monsoon-season (June through
// September) overrides for the moisture-driven fields. These are policy
// values, not measurements, and every substitution is tagged defaulted so
// consumers can discount them.
//
// # Field Units
//
// All values are stored in a fixed internal unit per field (degrees Celsius,
// percent relative humidity, ug/m3, millimetres, unitless indices). Source
// adapters convert before constructing a RawReading; normalization assumes
// internal units throughout.
package domain
