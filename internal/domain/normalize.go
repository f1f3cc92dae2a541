package domain

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

// Normalizer converts raw source readings into complete, sentinel-free
// observations. It remembers the last good value per field so short gaps can
// be bridged by interpolation before falling back to climate defaults.
//
// A Normalizer is safe for concurrent use.
type Normalizer struct {
	recency time.Duration

	mu       sync.Mutex
	lastGood map[string]goodValue
}

type goodValue struct {
	value float64
	at    time.Time
}

// DefaultRecencyWindow bounds how old a remembered value may be and still be
// used for interpolation. Satellite composites are daily, so anything older
// than a few hours says little about current conditions.
const DefaultRecencyWindow = 6 * time.Hour

// NewNormalizer creates a Normalizer. A non-positive recency window falls back
// to DefaultRecencyWindow.
func NewNormalizer(recency time.Duration) *Normalizer {
	if recency <= 0 {
		recency = DefaultRecencyWindow
	}
	return &Normalizer{
		recency:  recency,
		lastGood: make(map[string]goodValue),
	}
}

// Normalize cleans a raw reading into a complete observation covering every
// canonical field. Missing fields (sentinel-encoded or structurally absent)
// are substituted; substitution never fails. The only error condition is a
// malformed payload whose field value is not numeric.
func (n *Normalizer) Normalize(raw RawReading) (NormalizedObservation, error) {
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = clock.Now()
	}

	obs := NormalizedObservation{
		Timestamp: ts,
		Fields:    make(map[string]FieldValue, len(fieldTable)),
	}

	for _, spec := range fieldTable {
		rawVal, present := raw.Fields[spec.Name]
		if !present {
			// Structurally absent fields always take the climate default;
			// the source never claimed to measure them at all.
			obs.Fields[spec.Name] = FieldValue{Value: n.defaultValue(spec.Name, ts), Quality: QualityDefaulted}
			continue
		}

		v, ok := toFloat(rawVal)
		if !ok {
			return NormalizedObservation{}, &MalformedInputError{Source: raw.Source, Field: spec.Name, Value: rawVal}
		}

		if isMissing(v) {
			obs.Fields[spec.Name] = n.substitute(spec.Name, ts)
			continue
		}

		obs.Fields[spec.Name] = FieldValue{Value: v, Quality: QualityMeasured}
		n.remember(spec.Name, v, ts)
	}

	deriveHeatIndex(&obs)
	return obs, nil
}

// MergeReadings combines several raw readings into one, with later readings
// overriding earlier ones for overlapping fields. The merged timestamp is the
// newest of the inputs. Used to layer the live weather snapshot on top of the
// daily satellite composite before normalization.
func MergeReadings(raws ...RawReading) RawReading {
	merged := RawReading{Fields: make(map[string]any)}
	for _, raw := range raws {
		if raw.Timestamp.After(merged.Timestamp) {
			merged.Timestamp = raw.Timestamp
		}
		if raw.Source != "" {
			merged.Source = raw.Source
		}
		for name, v := range raw.Fields {
			merged.Fields[name] = v
		}
	}
	return merged
}

// ValidateReading checks that every canonical field a raw reading carries is
// numeric. Sentinel values pass validation; they are handled later by
// normalization. Callers validate before caching a reading so one malformed
// source payload cannot poison subsequent merge cycles.
func ValidateReading(raw RawReading) error {
	for _, spec := range fieldTable {
		rawVal, present := raw.Fields[spec.Name]
		if !present {
			continue
		}
		if _, ok := toFloat(rawVal); !ok {
			return &MalformedInputError{Source: raw.Source, Field: spec.Name, Value: rawVal}
		}
	}
	return nil
}

// substitute picks a replacement for a missing field: the last good value if
// recent enough, otherwise the seasonal climate default.
func (n *Normalizer) substitute(name string, ts time.Time) FieldValue {
	n.mu.Lock()
	good, ok := n.lastGood[name]
	n.mu.Unlock()

	if ok && !good.at.Before(ts.Add(-n.recency)) {
		return FieldValue{Value: good.value, Quality: QualityInterpolated}
	}
	return FieldValue{Value: n.defaultValue(name, ts), Quality: QualityDefaulted}
}

func (n *Normalizer) defaultValue(name string, ts time.Time) float64 {
	v, _ := DefaultFor(name, ts)
	return v
}

func (n *Normalizer) remember(name string, v float64, ts time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if good, ok := n.lastGood[name]; ok && good.at.After(ts) {
		return
	}
	n.lastGood[name] = goodValue{value: v, at: ts}
}

// isMissing reports whether a value is the NASA missing-data sentinel or
// otherwise non-finite.
func isMissing(v float64) bool {
	return v <= SentinelThreshold || math.IsNaN(v) || math.IsInf(v, 0)
}

// toFloat coerces the numeric types a JSON or CSV decode can produce.
// Strings are deliberately rejected: unit-tagged string payloads must be
// converted by the source adapter, not guessed at here.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// deriveHeatIndex recomputes a non-measured heat index from measured
// temperature and humidity using the Rothfusz regression. A derived value is
// closer to truth than the seasonal constant but is still tagged defaulted
// because no instrument produced it.
func deriveHeatIndex(obs *NormalizedObservation) {
	if obs.Measured(FieldHeatIndex) {
		return
	}
	if !obs.Measured(FieldTemperature) || !obs.Measured(FieldHumidity) {
		return
	}
	t, _ := obs.Value(FieldTemperature)
	rh, _ := obs.Value(FieldHumidity)
	obs.Fields[FieldHeatIndex] = FieldValue{Value: heatIndexC(t, rh), Quality: QualityDefaulted}
}

// heatIndexC computes the NWS heat index in Celsius from air temperature in
// Celsius and relative humidity in percent. Below the 80F applicability bound
// the simplified Steadman average is used instead of the full regression.
func heatIndexC(tempC, rh float64) float64 {
	tf := tempC*9/5 + 32

	simple := 0.5 * (tf + 61.0 + (tf-68.0)*1.2 + rh*0.094)
	if (simple+tf)/2 < 80 {
		return (simple - 32) * 5 / 9
	}

	hi := -42.379 +
		2.04901523*tf +
		10.14333127*rh -
		0.22475541*tf*rh -
		0.00683783*tf*tf -
		0.05481717*rh*rh +
		0.00122874*tf*tf*rh +
		0.00085282*tf*rh*rh -
		0.00000199*tf*tf*rh*rh

	switch {
	case rh < 13 && tf >= 80 && tf <= 112:
		hi -= ((13 - rh) / 4) * math.Sqrt((17-math.Abs(tf-95))/17)
	case rh > 85 && tf >= 80 && tf <= 87:
		hi += ((rh - 85) / 10) * ((87 - tf) / 5)
	}

	return (hi - 32) * 5 / 9
}
