package core

import (
	"context"

	"medvise-backend/pkg"
)

// Chat handles one free-form message.  In expert mode the message is
// answered directly.  Otherwise the question prompt runs until the model
// answers with exactly the control token or the round cap is reached, at
// which point the expert hand-off runs in the same call and AutoExpert is
// set.
func (s *IntakeService) Chat(ctx context.Context, id, message string) (Reply, error) {
	var reply Reply
	_, err := s.transact(id, func(sess *pkg.Session) error {
		log := s.log.With().Str("session_id", id).Logger()
		history := append(sess.History[:len(sess.History):len(sess.History)], pkg.ChatTurn{Role: pkg.RoleUser, Content: message})

		if s.inExpertMode(sess) {
			out, err := s.complete(ctx, OpChat, ExpertReply(CaseSummary(sess.Patient, history), message), replyTemperature)
			if err != nil {
				return err
			}
			s.record(sess, pkg.StageExpertEvaluation, message, out)
			reply = Reply{Content: out, Stage: sess.Stage}
			return nil
		}

		rounds := CountQARounds(history)
		if rounds >= s.maxRounds {
			log.Info().Int("rounds", rounds).Msg("question round cap reached, handing off")
			return s.handOff(ctx, sess, message, history, &reply)
		}

		out, err := s.complete(ctx, OpChat, ChatFollowUp(message, sess.Patient, history, rounds, s.maxRounds), questionTemperature)
		if err != nil {
			return err
		}
		if d := Decide(out, MatchExact); d.HandOff {
			log.Info().Int("rounds", rounds).Msg("model requested expert hand-off")
			return s.handOff(ctx, sess, message, history, &reply)
		}
		s.record(sess, pkg.StageFollowUp, message, out)
		reply = Reply{Content: out, Stage: sess.Stage}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// handOff runs the expert prompt on the case summary and records the user
// message followed by the expert reply.  The control token is never stored.
func (s *IntakeService) handOff(ctx context.Context, sess *pkg.Session, message string, history []pkg.ChatTurn, reply *Reply) error {
	out, err := s.complete(ctx, OpHandOff, ExpertFromSummary(CaseSummary(sess.Patient, history)), expertTemperature)
	if err != nil {
		return err
	}
	s.record(sess, pkg.StageExpertEvaluation, message, out)
	*reply = Reply{Content: out, Stage: sess.Stage, AutoExpert: true}
	return nil
}
