package types

import (
	"encoding/json"
	"math"
)

// Number reads a finite float from any Go numeric type or a json.Number,
// as produced by encoding/json, a UseNumber decoder or maps built by hand.
// Strings, NaN and infinities report false.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
