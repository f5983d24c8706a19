package patient

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"medvise-backend/pkg"
)

// rangePattern matches "<number><dash><number>" where dash is an ASCII hyphen
// or an en-dash and numbers may use comma or dot decimals.
var rangePattern = regexp.MustCompile(`^\s*([+-]?\d+(?:[.,]\d+)?)\s*[-–]\s*([+-]?\d+(?:[.,]\d+)?)\s*$`)

// ToNumber coerces a numeric or textual value to a float.  Strings use the
// comma as decimal separator ("2,97" is 2.97).  Anything that cannot be parsed
// yields ok=false rather than an error.
func ToNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", "."))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	}
	return 0, false
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Range is a parsed reference range.  Known is false when the source text did
// not have the expected shape.
type Range struct {
	Lo, Hi float64
	Known  bool
}

// ParseRange parses a textual "lo-hi" reference range.
func ParseRange(s string) Range {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return Range{}
	}
	lo, okLo := ToNumber(m[1])
	hi, okHi := ToNumber(m[2])
	if !okLo || !okHi {
		return Range{}
	}
	return Range{Lo: lo, Hi: hi, Known: true}
}

// ComputeStatus classifies value against the textual range.  An unknown value
// or an unknown range yields an empty status; the status is never guessed.
func ComputeStatus(value *float64, normalRange string) pkg.LabStatus {
	if value == nil {
		return ""
	}
	r := ParseRange(normalRange)
	if !r.Known {
		return ""
	}
	switch {
	case *value < r.Lo:
		return pkg.LabLow
	case *value > r.Hi:
		return pkg.LabHigh
	}
	return pkg.LabNormal
}

// CoerceLabValues fills in the numeric value and the status of every row.
// A caller-supplied status among the three valid labels is kept as is.
func CoerceLabValues(in []pkg.LabValue) []pkg.LabValue {
	out := make([]pkg.LabValue, 0, len(in))
	for _, lv := range in {
		if lv.Value == nil && lv.RawValue != "" {
			if f, ok := ToNumber(lv.RawValue); ok {
				lv.Value = &f
				lv.RawValue = ""
			}
		}
		if !lv.Status.Valid() {
			lv.Status = ComputeStatus(lv.Value, lv.NormalRange)
		}
		out = append(out, lv)
	}
	return out
}

// FormatLabValue renders a row the way prompts show it to the model.
func FormatLabValue(lv pkg.LabValue) string {
	value := lv.RawValue
	if lv.Value != nil {
		value = strconv.FormatFloat(*lv.Value, 'f', -1, 64)
	}
	s := fmt.Sprintf("%s: %s", lv.Name, value)
	if lv.Unit != "" {
		s += " " + lv.Unit
	}
	if lv.NormalRange != "" {
		s += fmt.Sprintf(" (referans %s)", lv.NormalRange)
	}
	if lv.Status != "" {
		s += fmt.Sprintf(" [%s]", lv.Status)
	}
	return s
}
