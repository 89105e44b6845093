package query

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// driverText unwraps the []byte some drivers return for text and numeric
// columns and trims it, so cast sees a plain string.
func driverText(v any) any {
	switch t := v.(type) {
	case []byte:
		return strings.TrimSpace(string(t))
	case string:
		return strings.TrimSpace(t)
	}
	return v
}

// AsInt64 converts a driver value to int64. NULL does not convert.
func AsInt64(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	n, err := cast.ToInt64E(driverText(v))
	return n, err == nil
}

// AsString converts a driver value to its text form. NULL becomes "".
func AsString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// Truthy reports whether a column value counts as set: NULL, false, zero,
// the empty string and "0" do not. Any other text, "0.0" included, does.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != "" && t != "0"
	case []byte:
		return len(t) > 0 && string(t) != "0"
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return true
	}
	return b
}

// AsFloat64 converts a driver value to float64. Decimal columns some drivers
// return as text are parsed. NULL does not convert.
func AsFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(driverText(v))
	return f, err == nil
}
