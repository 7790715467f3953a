package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// statKeys are tried in order when a stat arrives as an object,
// e.g. {"total": 15, "goals": 12, "penalties": 3}.
var statKeys = []string{"total", "all", "count", "average"}

// StatValue is a numeric stat that may be encoded as a number, a numeric
// string, or an object wrapping the aggregate. Valid reports whether a
// number was found.
type StatValue struct {
	Value float64
	Valid bool
}

func (s *StatValue) UnmarshalJSON(b []byte) error {
	*s = StatValue{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			*s = StatValue{Value: f, Valid: true}
		}
		return nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		for _, key := range statKeys {
			inner, ok := obj[key]
			if !ok {
				continue
			}
			var v StatValue
			if err := v.UnmarshalJSON(inner); err != nil {
				return err
			}
			if v.Valid {
				*s = v
				return nil
			}
		}
		return nil
	case '[', 't', 'f':
		// Lists and booleans carry no aggregate.
		return nil
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*s = StatValue{Value: f, Valid: true}
		return nil
	}
}
