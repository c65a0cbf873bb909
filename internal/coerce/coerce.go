// Package coerce normalises the loosely typed scalars found in ERP payloads.
// Identifiers, years and months arrive as JSON numbers in some tables and as
// strings in others; every comparison goes through this package.
package coerce

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Int64 converts numbers and numeric strings into an int64. Fractional values
// and blanks are rejected.
func Int64(v any) (int64, bool) {
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// Int is Int64 narrowed to int.
func Int(v any) (int, bool) {
	n, ok := Int64(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// Float converts numbers and numeric strings into a float64. Strings using a
// comma as decimal separator ("12,50") are accepted.
func Float(v any) (float64, bool) {
	switch val := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		if strings.Contains(s, ",") && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		// ParseFloat keeps "08" as eight; integer parsing in cast would
		// treat a leading zero as an octal prefix.
		f, err := cast.ToFloat64E(s)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case json.Number:
		return Float(val.String())
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatOr returns Float(v) or zero.
func FloatOr(v any) float64 {
	f, _ := Float(v)
	return f
}

// String renders a scalar as trimmed text. Whole floats lose their decimals
// so 2024.0 and "2024" compare equal.
func String(v any) string {
	if v == nil {
		return ""
	}
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Equal compares two scalars numerically when both sides are integers and
// textually otherwise.
func Equal(a, b any) bool {
	ai, aok := Int64(a)
	bi, bok := Int64(b)
	if aok && bok {
		return ai == bi
	}
	as, bs := String(a), String(b)
	return as != "" && as == bs
}
