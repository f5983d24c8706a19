package core

import (
	"context"

	"medvise-backend/internal/patient"
	"medvise-backend/pkg"
)

// Turn markers recorded as the user side of form-driven operations.
const (
	markerInitialForm   = "[INITIAL FORM]"
	markerFollowUp      = "[FOLLOW-UP ANSWERS]"
	markerExpertRequest = "[REQUEST EXPERT EVALUATION]"
)

// Initial records the intake form and asks the first round of questions.  A
// reply containing the control token anywhere hands off to the expert in the
// same call.  On a session already in expert mode the expert answers
// directly and the stage is kept.
func (s *IntakeService) Initial(ctx context.Context, id string, raw map[string]interface{}) (Reply, error) {
	form, err := patient.NormalizeInitialForm(raw)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	_, err = s.transact(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, form.Patch())
		userTurn := markerInitialForm + "\n" + marshalText(form)

		if s.inExpertMode(sess) {
			out, err := s.complete(ctx, OpExpert, Expert(sess.Patient), expertTemperature)
			if err != nil {
				return err
			}
			s.record(sess, pkg.StageExpertEvaluation, userTurn, out)
			reply = Reply{Content: out, Stage: sess.Stage}
			return nil
		}

		out, err := s.complete(ctx, OpInitial, InitialFromForm(form.Record()), questionTemperature)
		if err != nil {
			return err
		}
		if d := Decide(out, MatchContains); d.HandOff {
			expert, err := s.complete(ctx, OpHandOff, Expert(sess.Patient), expertTemperature)
			if err != nil {
				return err
			}
			s.record(sess, pkg.StageExpertEvaluation, userTurn, expert)
			reply = Reply{Content: expert, Stage: sess.Stage, AutoExpert: true}
			return nil
		}
		s.record(sess, pkg.StageInitialAssessment, userTurn, out)
		reply = Reply{Content: out, Stage: sess.Stage}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// FollowUp merges the patient's answers and asks the next targeted
// questions.  The reply is returned as produced; no hand-off is attempted
// here.
func (s *IntakeService) FollowUp(ctx context.Context, id string, raw map[string]interface{}) (Reply, error) {
	patch, err := patient.NormalizePayload(raw)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	_, err = s.transact(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, patch)
		answers := patch.PreviousAnswers
		if answers == nil {
			answers = []string{}
		}
		userTurn := markerFollowUp + "\n" + marshalText(answers)

		if s.inExpertMode(sess) {
			out, err := s.complete(ctx, OpExpert, Expert(sess.Patient), expertTemperature)
			if err != nil {
				return err
			}
			s.record(sess, pkg.StageExpertEvaluation, userTurn, out)
			reply = Reply{Content: out, Stage: sess.Stage}
			return nil
		}

		out, err := s.complete(ctx, OpFollowUp, FollowUp(sess.Patient), questionTemperature)
		if err != nil {
			return err
		}
		s.record(sess, pkg.StageFollowUp, userTurn, out)
		reply = Reply{Content: out, Stage: sess.Stage}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// ExpertEvaluation merges any supplied patient data and produces the expert
// evaluation directly, moving the session to the expert stage.
func (s *IntakeService) ExpertEvaluation(ctx context.Context, id string, raw map[string]interface{}) (Reply, error) {
	patch, err := patient.NormalizePayload(raw)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	_, err = s.transact(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, patch)
		out, err := s.complete(ctx, OpExpert, Expert(sess.Patient), expertTemperature)
		if err != nil {
			return err
		}
		s.record(sess, pkg.StageExpertEvaluation, markerExpertRequest, out)
		reply = Reply{Content: out, Stage: sess.Stage}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}
