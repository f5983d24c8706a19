package patient

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	return m
}

func TestNormalizePayload_Nested(t *testing.T) {
	p, err := NormalizePayload(decode(t, `{"stage":"lab_analysis","patientData":{"name":"Ayşe","age":34,
		"labResults":[{"name":"Hb","value":"11","normalRange":"12-15"}]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name == nil || *p.Name != "Ayşe" {
		t.Errorf("Name = %v, want Ayşe", p.Name)
	}
	if p.Age == nil || *p.Age != 34 {
		t.Errorf("Age = %v, want 34", p.Age)
	}
	if len(p.LabResults) != 1 || p.LabResults[0].Status != "low" {
		t.Errorf("LabResults = %+v, want one low row", p.LabResults)
	}
}

func TestNormalizePayload_TopLevel(t *testing.T) {
	p, err := NormalizePayload(decode(t, `{"symptoms":"ateş","age":"41","previousAnswers":["evet"],"additionalInfo":"ref-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Symptoms == nil || *p.Symptoms != "ateş" {
		t.Errorf("Symptoms = %v, want ateş", p.Symptoms)
	}
	if p.Age == nil || *p.Age != 41 {
		t.Errorf("Age = %v, want 41 coerced from string", p.Age)
	}
	if len(p.PreviousAnswers) != 1 || p.PreviousAnswers[0] != "evet" {
		t.Errorf("PreviousAnswers = %v, want [evet]", p.PreviousAnswers)
	}
	if p.AdditionalInfo["client_ref"] != "ref-1" {
		t.Errorf("additionalInfo string should be wrapped as client_ref, got %v", p.AdditionalInfo)
	}
}

func TestNormalizePayload_StringReference(t *testing.T) {
	ref := "0123456789abcdef0123456789abcdef"
	p, err := NormalizePayload(decode(t, `{"stage":"lab_final","patientData":"`+ref+`"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AdditionalInfo["client_ref"] != ref {
		t.Errorf("client_ref = %v, want %q", p.AdditionalInfo["client_ref"], ref)
	}
	if p.Name != nil || p.LabResults != nil {
		t.Errorf("string reference should only set client_ref, got %+v", p)
	}
}

func TestNormalizePayload_OtherShapes(t *testing.T) {
	p, err := NormalizePayload(decode(t, `{"patientData":null}`))
	if err != nil || !reflect.DeepEqual(p, Patch{}) {
		t.Errorf("null patientData = (%+v, %v), want empty patch", p, err)
	}
	p, err = NormalizePayload(decode(t, `{"patientData":42}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AdditionalInfo["client_ref"] != "42" {
		t.Errorf("client_ref = %v, want \"42\"", p.AdditionalInfo["client_ref"])
	}
}

func TestNormalizePayload_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"age not integer", `{"age":"otuz"}`, "age"},
		{"age fractional", `{"age":30.5}`, "age"},
		{"name not string", `{"patientData":{"name":5}}`, "name"},
		{"answers not list", `{"previousAnswers":"evet"}`, "previousAnswers"},
		{"answer not string", `{"previousAnswers":["evet",3]}`, "previousAnswers[1]"},
		{"labs not list", `{"labResults":{"name":"Hb"}}`, "labResults"},
		{"lab missing name", `{"labResults":[{"value":1}]}`, "labResults[0].name"},
		{"lab missing value", `{"labResults":[{"name":"Hb"}]}`, "labResults[0].value"},
		{"lab bool value", `{"labResults":[{"name":"Hb","value":true}]}`, "labResults[0].value"},
		{"lab null name", `{"labResults":[{"name":null,"value":1}]}`, "labResults[0].name"},
		{"lab unknown status", `{"labResults":[{"name":"Hb","value":1,"status":"critical"}]}`, "labResults[0].status"},
		{"info wrong type", `{"additionalInfo":[1]}`, "additionalInfo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePayload(decode(t, tt.body))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("errors = %+v, want one for field %q", verr.Errors, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error() = %q, want to contain %q", err.Error(), tt.field)
			}
		})
	}
}

func TestNormalizePayload_AcceptsWellTypedValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		age  *int
	}{
		{"age above any plausible bound", `{"age":200}`, intPtr(200)},
		{"negative age", `{"age":-1}`, intPtr(-1)},
		{"empty lab name", `{"labResults":[{"name":"","value":1}]}`, nil},
		{"known status", `{"labResults":[{"name":"Hb","value":13,"status":"normal"}]}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NormalizePayload(decode(t, tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.age != nil && (p.Age == nil || *p.Age != *tt.age) {
				t.Errorf("Age = %v, want %d", p.Age, *tt.age)
			}
		})
	}

	p, err := NormalizePayload(decode(t, `{"labResults":[{"name":"","value":1}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.LabResults) != 1 || p.LabResults[0].Name != "" || p.LabResults[0].Value == nil || *p.LabResults[0].Value != 1 {
		t.Errorf("LabResults = %+v, want one unnamed row with value 1", p.LabResults)
	}
}

func TestNormalizeInitialForm(t *testing.T) {
	form, err := NormalizeInitialForm(decode(t, `{"patientData":{"name":"Ayşe","symptoms":"ateş","labResults":"ignored"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if form.Name == nil || *form.Name != "Ayşe" || form.Symptoms == nil || *form.Symptoms != "ateş" {
		t.Errorf("form = %+v, want name and symptoms", form)
	}

	form, err = NormalizeInitialForm(decode(t, `{"name":"Mehmet","duration":"2 gün"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	patch := form.Patch()
	if patch.AdditionalInfo["source"] != "initial_form" {
		t.Errorf("source = %v, want initial_form", patch.AdditionalInfo["source"])
	}
	if patch.AdditionalInfo["duration"] != "2 gün" || patch.AdditionalInfo["extra_notes"] != "" {
		t.Errorf("additionalInfo = %v, want mirrored duration and empty notes", patch.AdditionalInfo)
	}
	if patch.PreviousAnswers == nil || len(patch.PreviousAnswers) != 0 {
		t.Errorf("PreviousAnswers = %v, want empty non-nil", patch.PreviousAnswers)
	}

	rec := form.Record()
	if rec.Name != "Mehmet" || rec.Duration != "2 gün" {
		t.Errorf("Record() = %+v", rec)
	}

	if _, err := NormalizeInitialForm(decode(t, `{"age":"abc"}`)); err == nil {
		t.Error("expected validation error for non-numeric age")
	}
}

func intPtr(n int) *int { return &n }
