// Package core orchestrates the intake conversation: it selects the prompt
// for a session's stage, calls the completion function, interprets the
// reply and commits the resulting turns, patient data and stage change.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"medvise-backend/internal/extract"
	"medvise-backend/internal/llm"
	"medvise-backend/internal/store"
	"medvise-backend/pkg"
)

// Defaults applied by NewIntakeService.
const (
	DefaultCompletionTimeout = 60 * time.Second
	DefaultMaxQARounds       = 4
	DefaultMaxUploadBytes    = 10 << 20

	notifyQueueSize = 256
	notifyTimeout   = 5 * time.Second
)

// Temperatures per prompt family.
const (
	questionTemperature float32 = 0.2
	expertTemperature   float32 = 0.1
	replyTemperature    float32 = 0.2
)

// StageNotifier is told about every committed stage change.
type StageNotifier interface {
	NotifyStage(ctx context.Context, sessionID string, stage pkg.Stage) error
}

// Options configures an IntakeService.  Store and LLM are required.
type Options struct {
	Store     *store.Store
	LLM       llm.Client
	Extractor extract.Extractor // defaults to the PDF extractor
	Notifier  StageNotifier     // optional
	Logger    zerolog.Logger

	CompletionTimeout     time.Duration
	MaxQARounds           int
	MaxUploadBytes        int64
	LegacyExpertDetection bool

	Now func() time.Time
}

// IntakeService implements every stage-machine operation.  Each operation
// runs as one store transaction: the session is only changed when the whole
// operation, completion calls included, succeeds.
type IntakeService struct {
	store     *store.Store
	llm       llm.Client
	extractor extract.Extractor
	notifier  StageNotifier
	log       zerolog.Logger

	timeout      time.Duration
	maxRounds    int
	maxUpload    int64
	legacyExpert bool
	now          func() time.Time

	notifyMu     sync.Mutex
	notifyClosed bool
	notifyQueue  chan stageChange
	notifyDone   chan struct{}
}

type stageChange struct {
	sessionID string
	stage     pkg.Stage
}

// Reply is the outcome of a completion-producing operation.
type Reply struct {
	Content    string
	Stage      pkg.Stage
	AutoExpert bool
}

// NewIntakeService validates opts and fills in defaults.
func NewIntakeService(opts Options) (*IntakeService, error) {
	if opts.Store == nil {
		return nil, errors.New("core: store is required")
	}
	if opts.LLM == nil {
		return nil, errors.New("core: completion client is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.NewPDFExtractor()
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = DefaultCompletionTimeout
	}
	if opts.MaxQARounds <= 0 {
		opts.MaxQARounds = DefaultMaxQARounds
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &IntakeService{
		store:        opts.Store,
		llm:          opts.LLM,
		extractor:    opts.Extractor,
		notifier:     opts.Notifier,
		log:          opts.Logger.With().Str("component", "intake").Logger(),
		timeout:      opts.CompletionTimeout,
		maxRounds:    opts.MaxQARounds,
		maxUpload:    opts.MaxUploadBytes,
		legacyExpert: opts.LegacyExpertDetection,
		now:          opts.Now,
	}
	if s.notifier != nil {
		s.notifyQueue = make(chan stageChange, notifyQueueSize)
		s.notifyDone = make(chan struct{})
		go s.dispatchNotifications()
	}
	return s, nil
}

// Close stops the notification dispatcher after delivering what is queued.
// Operations must not be started after Close.
func (s *IntakeService) Close() {
	s.notifyMu.Lock()
	if s.notifyQueue == nil || s.notifyClosed {
		s.notifyMu.Unlock()
		return
	}
	s.notifyClosed = true
	close(s.notifyQueue)
	s.notifyMu.Unlock()
	<-s.notifyDone
}

// CreateSession allocates a new empty session.
func (s *IntakeService) CreateSession() *pkg.Session {
	sess := s.store.Create()
	s.log.Info().Str("session_id", sess.ID).Msg("session created")
	return sess
}

// MaxUploadBytes is the largest document UploadDocument accepts.
func (s *IntakeService) MaxUploadBytes() int64 { return s.maxUpload }

// Session returns a snapshot of the session.
func (s *IntakeService) Session(id string) (*pkg.Session, error) {
	return s.store.Get(id)
}

// transact runs fn inside a store transaction.  A stage change is queued for
// notification as the last step of a successful fn, while the session is
// still locked, so changes to one session are published in commit order.
func (s *IntakeService) transact(id string, fn func(sess *pkg.Session) error) (*pkg.Session, error) {
	return s.store.Update(id, func(sess *pkg.Session) error {
		before := sess.Stage
		if err := fn(sess); err != nil {
			return err
		}
		if sess.Stage != before {
			s.log.Info().Str("session_id", id).Str("from", string(before)).Str("stage", string(sess.Stage)).Msg("stage changed")
			s.notify(id, sess.Stage)
		}
		return nil
	})
}

// notify queues a stage change for the dispatcher.  It never blocks; when the
// queue is full the change is dropped and logged.
func (s *IntakeService) notify(id string, stage pkg.Stage) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.notifyQueue == nil || s.notifyClosed {
		return
	}
	select {
	case s.notifyQueue <- stageChange{sessionID: id, stage: stage}:
	default:
		s.log.Warn().Str("session_id", id).Str("stage", string(stage)).Msg("notification queue full, dropping stage change")
	}
}

// dispatchNotifications delivers queued stage changes in commit order.
func (s *IntakeService) dispatchNotifications() {
	defer close(s.notifyDone)
	for ch := range s.notifyQueue {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if err := s.notifier.NotifyStage(ctx, ch.sessionID, ch.stage); err != nil {
			s.log.Warn().Err(err).Str("session_id", ch.sessionID).Str("stage", string(ch.stage)).Msg("stage notification failed")
		}
		cancel()
	}
}

// complete calls the completion function under the configured timeout.
func (s *IntakeService) complete(ctx context.Context, op string, p Prompt, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := s.now()
	out, err := s.llm.Complete(ctx, p.System, p.User, temperature)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("completion failed")
		return "", &UpstreamError{Op: op, Err: err}
	}
	s.log.Debug().Str("op", op).Dur("took", s.now().Sub(start)).Int("chars", len(out)).Msg("completion")
	return out, nil
}

// addTurn appends a turn tagged with the session's current stage.
func (s *IntakeService) addTurn(sess *pkg.Session, role pkg.Role, content string) {
	sess.History = append(sess.History, pkg.ChatTurn{
		Role:      role,
		Content:   content,
		Stage:     sess.Stage,
		Timestamp: s.now().UTC(),
	})
}

// record sets the resulting stage and appends the user turn followed by the
// assistant reply.  An empty userContent appends the assistant turn only.
func (s *IntakeService) record(sess *pkg.Session, stage pkg.Stage, userContent, assistantContent string) {
	sess.Stage = stage
	if userContent != "" {
		s.addTurn(sess, pkg.RoleUser, userContent)
	}
	s.addTurn(sess, pkg.RoleAssistant, assistantContent)
}

// inExpertMode reports whether the symptom track has reached the expert stage.
func (s *IntakeService) inExpertMode(sess *pkg.Session) bool {
	return sess.Stage == pkg.StageExpertEvaluation || DetectExpertMode(sess.History, s.legacyExpert)
}

func marshalText(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
