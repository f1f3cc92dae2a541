// Package feature assembles fixed-width model input vectors from normalized
// observations and rolling history. Each model declares a Schema; Build
// produces a Vector whose length and order match that schema exactly, or
// fails with a SchemaMismatchError. Vectors are never silently truncated or
// padded.
package feature

// LagOffsets are the fixed lookback offsets, in periods, for temporal models.
var LagOffsets = []int{1, 3, 7, 14}

// RollingWindows are the fixed window lengths, in periods, over which rolling
// mean and variance features are computed.
var RollingWindows = []int{3, 7, 30}

// TemporalBlockWidth returns the number of features one temporal variable
// expands into: one per lag offset plus mean and variance per rolling window.
func TemporalBlockWidth() int {
	return len(LagOffsets) + 2*len(RollingWindows)
}

// Field is one static feature: a canonical field name plus the model's
// trained-mean fallback for when the observation lacks the field. A nil
// TrainedMean means the model has no fallback and the field is mandatory.
type Field struct {
	Name        string   `json:"name"`
	TrainedMean *float64 `json:"trained_mean,omitempty"`
}

// Schema is a model's declared input contract: static fields in order,
// followed by a lag/rolling block per temporal variable.
type Schema struct {
	Model    string   `json:"model"`
	Static   []Field  `json:"static,omitempty"`
	Temporal []string `json:"temporal,omitempty"`
}

// Width returns the exact vector length the schema produces.
func (s Schema) Width() int {
	return len(s.Static) + len(s.Temporal)*TemporalBlockWidth()
}

// StaticIndex returns the position of a named static field within vectors
// built from this schema, or -1 if the schema does not declare it.
func (s Schema) StaticIndex(name string) int {
	for i, f := range s.Static {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// TemporalBlock returns the sub-slice of a vector holding the lag/rolling
// block for the i-th temporal variable.
func (s Schema) TemporalBlock(v Vector, i int) []float64 {
	start := len(s.Static) + i*TemporalBlockWidth()
	return v.Values[start : start+TemporalBlockWidth()]
}

// Vector is a feature vector bound to one model's schema.
type Vector struct {
	Model  string
	Values []float64
}

// At returns the value at index i.
func (v Vector) At(i int) float64 { return v.Values[i] }

// Len returns the vector length.
func (v Vector) Len() int { return len(v.Values) }
