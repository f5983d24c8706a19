package core

import (
	"context"
	"fmt"

	"medvise-backend/internal/extract"
	"medvise-backend/internal/patient"
	"medvise-backend/pkg"
)

const (
	markerLabAnalysis = "[LAB ANALYSIS REQUEST]"
	markerLabFollowUp = "[LAB FOLLOW-UP REQUEST]"
	markerLabFinal    = "[LAB FINAL REQUEST]"
)

// AnalyzeLabs merges the submitted lab panel and interprets it.  Text from a
// previously uploaded document is passed along to the prompt.
func (s *IntakeService) AnalyzeLabs(ctx context.Context, id string, raw map[string]interface{}) (pkg.LabAnalysisResponse, error) {
	patch, err := patient.NormalizePayload(raw)
	if err != nil {
		return pkg.LabAnalysisResponse{}, err
	}
	var resp pkg.LabAnalysisResponse
	_, err = s.transact(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, patch)
		if text, ok := sess.Patient.AdditionalInfo["extracted_text"]; ok {
			sess.Patient = patient.Merge(sess.Patient, patient.Patch{
				AdditionalInfo: map[string]interface{}{"extractedText": text},
			})
		}
		out, err := s.complete(ctx, OpLabAnalysis, LabAnalysis(sess.Patient), questionTemperature)
		if err != nil {
			return err
		}
		s.record(sess, pkg.StageLabAnalysis, markerLabAnalysis, out)
		resp = pkg.LabAnalysisResponse{
			Content:        out,
			Questions:      []string{},
			CriticalAlerts: DetectCritical(out),
		}
		return nil
	})
	if err != nil {
		return pkg.LabAnalysisResponse{}, err
	}
	return resp, nil
}

// LabFollowUp asks clarifying questions about the lab panel and returns them
// parsed out of the reply.
func (s *IntakeService) LabFollowUp(ctx context.Context, id string, raw map[string]interface{}) (pkg.LabFollowUpResponse, error) {
	patch, err := patient.NormalizePayload(raw)
	if err != nil {
		return pkg.LabFollowUpResponse{}, err
	}
	var resp pkg.LabFollowUpResponse
	_, err = s.transact(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, patch)
		out, err := s.complete(ctx, OpLabFollowUp, LabFollowUp(sess.Patient), questionTemperature)
		if err != nil {
			return err
		}
		s.record(sess, pkg.StageLabFollowUp, markerLabFollowUp, out)
		resp = pkg.LabFollowUpResponse{Content: out, Questions: ExtractQuestions(out)}
		return nil
	})
	if err != nil {
		return pkg.LabFollowUpResponse{}, err
	}
	return resp, nil
}

// LabFinal produces the closing lab report.
func (s *IntakeService) LabFinal(ctx context.Context, id string, raw map[string]interface{}) (Reply, error) {
	patch, err := patient.NormalizePayload(raw)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	_, err = s.transact(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, patch)
		out, err := s.complete(ctx, OpLabFinal, LabFinal(sess.Patient), questionTemperature)
		if err != nil {
			return err
		}
		s.record(sess, pkg.StageLabFinal, markerLabFinal, out)
		reply = Reply{Content: out, Stage: sess.Stage}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// UploadDocument extracts the text of an uploaded document and stores it in
// the patient's additionalInfo.  Size and format are checked before any
// extraction, after the session is resolved.  No turns are recorded.
func (s *IntakeService) UploadDocument(ctx context.Context, id, filename string, data []byte) (pkg.UploadResponse, error) {
	var resp pkg.UploadResponse
	_, err := s.transact(id, func(sess *pkg.Session) error {
		if int64(len(data)) > s.maxUpload {
			return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), s.maxUpload)
		}
		if !extract.Supported(filename) {
			return extract.ErrUnsupportedFormat
		}
		text, err := s.extractor.ExtractText(data, filename)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", id).Str("filename", filename).Msg("extraction failed")
			return &UpstreamError{Op: OpExtract, Err: err}
		}
		sess.Patient = patient.Merge(sess.Patient, patient.Patch{
			AdditionalInfo: map[string]interface{}{
				"uploaded_file":  filename,
				"extracted_text": text,
				"file_size":      len(data),
			},
		})
		resp = pkg.UploadResponse{
			Success:       true,
			Filename:      filename,
			ExtractedText: text,
			TextLength:    len([]rune(text)),
		}
		return nil
	})
	if err != nil {
		return pkg.UploadResponse{}, err
	}
	return resp, nil
}
