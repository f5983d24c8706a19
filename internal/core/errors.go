package core

import (
	"errors"
	"fmt"
)

// Operations reported in UpstreamError.Op.
const (
	OpInitial     = "initial_assessment"
	OpFollowUp    = "follow_up"
	OpExpert      = "expert_evaluation"
	OpChat        = "chat"
	OpHandOff     = "expert_handoff"
	OpLabAnalysis = "lab_analysis"
	OpLabFollowUp = "lab_follow_up"
	OpLabFinal    = "lab_final"
	OpExtract     = "extract_text"
)

// ErrFileTooLarge is returned when an uploaded document exceeds the
// configured size limit.
var ErrFileTooLarge = errors.New("core: uploaded file is too large")

// UpstreamError wraps a failure of the completion function or the document
// extractor.  The session is left untouched when one is returned.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("core: %s: upstream failure: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
