package parsers

import (
	"regexp"
	"strconv"
	"strings"
)

var priceNumberRE = regexp.MustCompile(`(\d[\d,]*\.?\d*)`)

// str coerces an arbitrary decoded-JSON value to a string, returning "" for
// nil, non-scalar, or unparsable values. Backend API responses mix string
// and numeric encodings of the same logical field.
func str(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		return ""
	}
}

// firstNonEmpty returns the first argument that stringifies to a non-empty
// value.
func firstNonEmpty(vs ...any) any {
	for _, v := range vs {
		if str(v) != "" {
			return v
		}
	}
	return nil
}

// firstNonEmptyString returns the first non-empty string argument.
func firstNonEmptyString(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// coercePrice extracts a currency amount from a JSON-decoded value, which
// may already be numeric or may be a formatted string like "$45,000".
func coercePrice(v any) *float64 {
	switch vv := v.(type) {
	case nil:
		return nil
	case float64:
		if vv <= 0 {
			return nil
		}
		return &vv
	case string:
		m := priceNumberRE.FindStringSubmatch(vv)
		if m == nil {
			return nil
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || n <= 0 {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// yearOf coerces a decoded-JSON model year to an int pointer.
func yearOf(v any) *int {
	switch vv := v.(type) {
	case nil:
		return nil
	case float64:
		y := int(vv)
		return &y
	case string:
		y, err := strconv.Atoi(strings.TrimSpace(vv))
		if err != nil {
			return nil
		}
		return &y
	default:
		return nil
	}
}
