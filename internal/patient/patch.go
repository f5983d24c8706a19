package patient

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"medvise-backend/pkg"
)

// Patch is a partial patient record.  A nil field means "no opinion" and never
// overwrites the base record.  A non-nil empty LabResults replaces the lab
// panel with an empty one.
type Patch struct {
	Name            *string                `json:"name,omitempty"`
	Age             *int                   `json:"age,omitempty"`
	Gender          *string                `json:"gender,omitempty"`
	Symptoms        *string                `json:"symptoms,omitempty"`
	Duration        *string                `json:"duration,omitempty"`
	ExtraNotes      *string                `json:"extra_notes,omitempty"`
	PreviousAnswers []string               `json:"previousAnswers,omitempty"`
	LabResults      []pkg.LabValue         `json:"labResults,omitempty" validate:"omitempty,dive"`
	AdditionalInfo  map[string]interface{} `json:"additionalInfo,omitempty"`
}

// decodePatch coerces a loosely typed JSON object into a Patch.  Unknown keys
// are ignored.  Type mismatches are collected into a ValidationError.
func decodePatch(m map[string]interface{}) (Patch, error) {
	var p Patch
	verr := &ValidationError{}

	p.Name = stringField(m, "name", verr)
	p.Gender = stringField(m, "gender", verr)
	p.Symptoms = stringField(m, "symptoms", verr)
	p.Duration = stringField(m, "duration", verr)
	p.ExtraNotes = stringField(m, "extra_notes", verr)

	if raw, ok := m["age"]; ok && raw != nil {
		if age, ok := toInt(raw); ok {
			p.Age = &age
		} else {
			verr.add("age", "value is not a valid integer")
		}
	}

	if raw, ok := m["previousAnswers"]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			verr.add("previousAnswers", "value is not a valid list")
		} else {
			p.PreviousAnswers = make([]string, 0, len(list))
			for i, item := range list {
				s, ok := item.(string)
				if !ok {
					verr.add(fmt.Sprintf("previousAnswers[%d]", i), "value is not a valid string")
					continue
				}
				p.PreviousAnswers = append(p.PreviousAnswers, s)
			}
		}
	}

	if raw, ok := m["labResults"]; ok && raw != nil {
		p.LabResults = decodeLabResults(raw, verr)
	}

	if raw, ok := m["additionalInfo"]; ok && raw != nil {
		switch v := raw.(type) {
		case map[string]interface{}:
			p.AdditionalInfo = v
		case string:
			p.AdditionalInfo = map[string]interface{}{"client_ref": v}
		default:
			verr.add("additionalInfo", "value is not a valid dict")
		}
	}

	if err := verr.orNil(); err != nil {
		return Patch{}, err
	}
	if err := validateStruct(p); err != nil {
		return Patch{}, err
	}
	p.LabResults = coerceIfSet(p.LabResults)
	return p, nil
}

func coerceIfSet(in []pkg.LabValue) []pkg.LabValue {
	if in == nil {
		return nil
	}
	return CoerceLabValues(in)
}

func decodeLabResults(raw interface{}, verr *ValidationError) []pkg.LabValue {
	list, ok := raw.([]interface{})
	if !ok {
		verr.add("labResults", "value is not a valid list")
		return nil
	}
	out := make([]pkg.LabValue, 0, len(list))
	for i, item := range list {
		loc := fmt.Sprintf("labResults[%d]", i)
		obj, ok := item.(map[string]interface{})
		if !ok {
			verr.add(loc, "value is not a valid dict")
			continue
		}
		var lv pkg.LabValue
		if obj["name"] == nil {
			verr.add(loc+".name", "field required")
		} else if s := stringField(obj, "name", verr, loc); s != nil {
			lv.Name = *s
		}
		if s := stringField(obj, "unit", verr, loc); s != nil {
			lv.Unit = *s
		}
		if s := stringField(obj, "normalRange", verr, loc); s != nil {
			lv.NormalRange = *s
		}
		if s := stringField(obj, "status", verr, loc); s != nil {
			lv.Status = pkg.LabStatus(*s)
		}
		switch v := obj["value"].(type) {
		case nil:
			verr.add(loc+".value", "field required")
		case string:
			lv.RawValue = v
		case bool:
			verr.add(loc+".value", "value is not a valid number or string")
		default:
			if f, ok := ToNumber(v); ok {
				lv.Value = &f
			} else {
				verr.add(loc+".value", "value is not a valid number or string")
			}
		}
		out = append(out, lv)
	}
	return out
}

// stringField reads an optional string.  The optional prefix is prepended to
// the field name in error locations.
func stringField(m map[string]interface{}, key string, verr *ValidationError, prefix ...string) *string {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		loc := key
		if len(prefix) > 0 {
			loc = prefix[0] + "." + key
		}
		verr.add(loc, "value is not a valid string")
		return nil
	}
	return &s
}

// toInt accepts JSON numbers with no fractional part and integer strings.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
