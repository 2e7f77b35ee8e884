package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// Author is an opaque author record. Only the id field is interpreted.
type Author map[string]any

// Column is an opaque board column record.
type Column map[string]any

// ID reports the author's integer id.
func (a Author) ID() (int, bool) {
	return intField(a, "id")
}

func intField(rec map[string]any, key string) (int, bool) {
	switch v := rec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
