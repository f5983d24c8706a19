package pkg

import "time"

// Stage is the current phase of the intake workflow for a session.  The zero
// value (StageNone) means the session was just created and no endpoint has
// produced a reply yet.
type Stage string

const (
	StageNone              Stage = ""
	StageInitialAssessment Stage = "initial_assessment"
	StageFollowUp          Stage = "follow_up"
	StageExpertEvaluation  Stage = "expert_evaluation"
	StageLabAnalysis       Stage = "lab_analysis"
	StageLabFollowUp       Stage = "lab_follow_up"
	StageLabFinal          Stage = "lab_final"
)

// Valid reports whether s is one of the enumerated stages (StageNone included).
func (s Stage) Valid() bool {
	switch s {
	case StageNone, StageInitialAssessment, StageFollowUp, StageExpertEvaluation,
		StageLabAnalysis, StageLabFollowUp, StageLabFinal:
		return true
	}
	return false
}

// Role describes who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatTurn is one message in a session's history.  Turns are immutable once
// appended.  Stage records the session stage after the turn was produced.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Stage     Stage     `json:"stage,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// LabStatus classifies a lab value against its reference range.
type LabStatus string

const (
	LabNormal LabStatus = "normal"
	LabHigh   LabStatus = "high"
	LabLow    LabStatus = "low"
)

// Valid reports whether st is one of the three recognised labels.
func (st LabStatus) Valid() bool {
	return st == LabNormal || st == LabHigh || st == LabLow
}

// LabValue is a single lab result row.  Value holds the parsed number when the
// raw input could be coerced; RawValue keeps the original text otherwise.
type LabValue struct {
	Name        string    `json:"name"`
	Value       *float64  `json:"value,omitempty"`
	RawValue    string    `json:"rawValue,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	NormalRange string    `json:"normalRange,omitempty"`
	Status      LabStatus `json:"status,omitempty" validate:"omitempty,oneof=normal high low"`
}

// PatientRecord is the cumulative view of everything learned about the
// patient in a session.  It is accreted by merge and never replaced
// wholesale.
type PatientRecord struct {
	Name            string                 `json:"name,omitempty"`
	Age             *int                   `json:"age,omitempty"`
	Gender          string                 `json:"gender,omitempty"`
	Symptoms        string                 `json:"symptoms,omitempty"`
	Duration        string                 `json:"duration,omitempty"`
	ExtraNotes      string                 `json:"extra_notes,omitempty"`
	PreviousAnswers []string               `json:"previousAnswers,omitempty"`
	LabResults      []LabValue             `json:"labResults,omitempty"`
	AdditionalInfo  map[string]interface{} `json:"additionalInfo,omitempty"`
}

// Clone returns a deep copy of the record.  Values nested inside
// AdditionalInfo are copied by reference.
func (p PatientRecord) Clone() PatientRecord {
	out := p
	if p.Age != nil {
		age := *p.Age
		out.Age = &age
	}
	if p.PreviousAnswers != nil {
		out.PreviousAnswers = append([]string(nil), p.PreviousAnswers...)
	}
	if p.LabResults != nil {
		out.LabResults = make([]LabValue, len(p.LabResults))
		for i, lv := range p.LabResults {
			if lv.Value != nil {
				v := *lv.Value
				lv.Value = &v
			}
			out.LabResults[i] = lv
		}
	}
	if p.AdditionalInfo != nil {
		out.AdditionalInfo = make(map[string]interface{}, len(p.AdditionalInfo))
		for k, v := range p.AdditionalInfo {
			out.AdditionalInfo[k] = v
		}
	}
	return out
}

// Session is the unit of conversation state.  It is keyed by an opaque id
// generated at creation.
type Session struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	LastUsedAt time.Time     `json:"last_used_at"`
	Stage      Stage         `json:"stage"`
	Patient    PatientRecord `json:"patient"`
	History    []ChatTurn    `json:"history"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := *s
	out.Patient = s.Patient.Clone()
	out.History = append([]ChatTurn(nil), s.History...)
	return &out
}

// CreateSessionResponse is returned when a session is created.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ChatRequest carries a free-form chat message.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	Mode    string `json:"mode,omitempty"`
}

// ContentResponse is the generic reply of completion-producing endpoints.
type ContentResponse struct {
	Content string `json:"content"`
}

// ChatResponse is the reply of the chat endpoint.  AutoExpert is true when the
// call itself triggered the expert hand-off.
type ChatResponse struct {
	Content    string `json:"content"`
	AutoExpert bool   `json:"auto_expert"`
}

// LabAnalysisResponse is the reply of the lab analysis endpoint.
type LabAnalysisResponse struct {
	Content          string   `json:"content"`
	RequiresFollowUp bool     `json:"requiresFollowUp"`
	Questions        []string `json:"questions"`
	CriticalAlerts   []string `json:"criticalAlerts"`
}

// LabFollowUpResponse is the reply of the lab follow-up endpoint.
type LabFollowUpResponse struct {
	Content   string   `json:"content"`
	Questions []string `json:"questions"`
}

// UploadResponse describes a document whose text was extracted.
type UploadResponse struct {
	Success       bool   `json:"success"`
	Filename      string `json:"filename"`
	ExtractedText string `json:"extracted_text"`
	TextLength    int    `json:"text_length"`
}
