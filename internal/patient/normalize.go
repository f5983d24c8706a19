package patient

import (
	"fmt"

	"medvise-backend/pkg"
)

// NormalizePayload turns an inbound request body into a Patch.  Three shapes
// are accepted:
//
//	{"patientData": {...}}     nested patient object
//	{"name": ..., "age": ...}  bare top-level object
//	{"patientData": "<ref>"}   opaque string, kept as additionalInfo.client_ref
//
// Only true type mismatches against the record schema produce an error.
func NormalizePayload(raw map[string]interface{}) (Patch, error) {
	pd, nested := raw["patientData"]
	if !nested {
		return decodePatch(raw)
	}
	switch v := pd.(type) {
	case map[string]interface{}:
		return decodePatch(v)
	case nil:
		return Patch{}, nil
	case string:
		return clientRef(v), nil
	default:
		return clientRef(fmt.Sprint(v)), nil
	}
}

func clientRef(ref string) Patch {
	return Patch{AdditionalInfo: map[string]interface{}{"client_ref": ref}}
}

// InitialForm is the symptom intake form.  Only these fields are taken from
// the initial request; anything else in the body is ignored.
type InitialForm struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	Symptoms   *string `json:"symptoms,omitempty"`
	Duration   *string `json:"duration,omitempty"`
	ExtraNotes *string `json:"extra_notes,omitempty"`
}

var initialFormKeys = []string{"name", "age", "gender", "symptoms", "duration", "extra_notes"}

// NormalizeInitialForm extracts the intake form from either a nested
// patientData object or the top-level body.
func NormalizeInitialForm(raw map[string]interface{}) (InitialForm, error) {
	src := raw
	if pd, ok := raw["patientData"].(map[string]interface{}); ok {
		src = pd
	}
	subset := make(map[string]interface{}, len(initialFormKeys))
	for _, k := range initialFormKeys {
		if v, ok := src[k]; ok {
			subset[k] = v
		}
	}
	p, err := decodePatch(subset)
	if err != nil {
		return InitialForm{}, err
	}
	return InitialForm{
		Name:       p.Name,
		Age:        p.Age,
		Gender:     p.Gender,
		Symptoms:   p.Symptoms,
		Duration:   p.Duration,
		ExtraNotes: p.ExtraNotes,
	}, nil
}

// Patch returns the merge patch recorded when the form is submitted.  The
// duration and notes are mirrored into additionalInfo together with the
// source marker.
func (f InitialForm) Patch() Patch {
	return Patch{
		Name:            f.Name,
		Age:             f.Age,
		Gender:          f.Gender,
		Symptoms:        f.Symptoms,
		Duration:        f.Duration,
		ExtraNotes:      f.ExtraNotes,
		PreviousAnswers: []string{},
		AdditionalInfo: map[string]interface{}{
			"duration":    deref(f.Duration),
			"extra_notes": deref(f.ExtraNotes),
			"source":      "initial_form",
		},
	}
}

// Record returns the form as a standalone patient record.
func (f InitialForm) Record() pkg.PatientRecord {
	return Merge(pkg.PatientRecord{}, Patch{
		Name:       f.Name,
		Age:        f.Age,
		Gender:     f.Gender,
		Symptoms:   f.Symptoms,
		Duration:   f.Duration,
		ExtraNotes: f.ExtraNotes,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
