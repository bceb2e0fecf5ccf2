package series

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sample is one multi-channel value. A single-channel sample is encoded as a
// bare JSON number, anything wider as an array.
type Sample []float64

// Channel returns the value at ch, falling back to channel 0 when ch is out
// of range. An empty sample projects to 0.
func (s Sample) Channel(ch int) float64 {
	if len(s) == 0 {
		return 0
	}
	if ch >= 0 && ch < len(s) {
		return s[ch]
	}
	return s[0]
}

// MarshalJSON implements json.Marshaler.
func (s Sample) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]float64(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sample) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var vals []float64
		if err := json.Unmarshal(data, &vals); err != nil {
			return fmt.Errorf("sample: %w", err)
		}
		*s = vals
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	*s = Sample{v}
	return nil
}

// Scalars wraps plain values as single-channel samples.
func Scalars(values []float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{v}
	}
	return out
}
