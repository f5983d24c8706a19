// Package store keeps the live intake sessions in process memory.  Nothing is
// persisted; a restart starts from an empty registry.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medvise-backend/internal/patient"
	"medvise-backend/pkg"
)

// ErrNotFound is returned for any operation on a session id that does not
// exist or was evicted.
var ErrNotFound = errors.New("session not found or expired")

// DefaultTTL is the idle time after which a session is swept.
const DefaultTTL = time.Hour

// Options configures a Store.
type Options struct {
	TTL time.Duration    // defaults to DefaultTTL
	Now func() time.Time // defaults to time.Now
}

// Store is the session registry.  Operations on one session id are serialized
// by a per-session transaction lock; different sessions never block each
// other except for the short registry lock.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// entry holds one session.  lastUsed and inflight are guarded by Store.mu so
// the janitor's staleness check and a request's touch are one atomic step.
type entry struct {
	tx sync.Mutex // serializes transactions

	mu   sync.Mutex // guards sess
	sess *pkg.Session

	lastUsed time.Time
	inflight int
}

// New constructs an empty Store.
func New(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		ttl:     opts.TTL,
		now:     opts.Now,
		entries: make(map[string]*entry),
	}
}

// TTL returns the configured idle timeout.
func (s *Store) TTL() time.Duration { return s.ttl }

// newID returns a 32 character hex id.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create allocates a fresh session with an empty record, empty history and
// no stage.
func (s *Store) Create() *pkg.Session {
	now := s.now().UTC()
	sess := &pkg.Session{
		ID:         newID(),
		CreatedAt:  now,
		LastUsedAt: now,
		History:    []pkg.ChatTurn{},
	}
	s.mu.Lock()
	s.entries[sess.ID] = &entry{sess: sess, lastUsed: now}
	s.mu.Unlock()
	return sess.Clone()
}

// Get returns a snapshot of the session and extends its life.
func (s *Store) Get(id string) (*pkg.Session, error) {
	e, now, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.release(e)

	e.mu.Lock()
	snap := e.sess.Clone()
	e.mu.Unlock()
	snap.LastUsedAt = now
	return snap, nil
}

// Update runs fn against a copy of the session and commits the copy only when
// fn returns nil.  Concurrent updates of the same session run one after the
// other in arrival order of the lock; the session cannot be swept while fn
// runs.
func (s *Store) Update(id string, fn func(sess *pkg.Session) error) (*pkg.Session, error) {
	e, _, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.release(e)

	e.tx.Lock()
	defer e.tx.Unlock()

	e.mu.Lock()
	work := e.sess.Clone()
	e.mu.Unlock()
	sid, created := work.ID, work.CreatedAt

	if err := fn(work); err != nil {
		return nil, err
	}
	work.ID = sid
	work.CreatedAt = created
	work.LastUsedAt = s.now().UTC()

	e.mu.Lock()
	e.sess = work
	e.mu.Unlock()
	return work.Clone(), nil
}

// AddTurn appends one turn to the session history.
func (s *Store) AddTurn(id string, role pkg.Role, content string) error {
	_, err := s.Update(id, func(sess *pkg.Session) error {
		sess.History = append(sess.History, pkg.ChatTurn{
			Role:      role,
			Content:   content,
			Stage:     sess.Stage,
			Timestamp: s.now().UTC(),
		})
		return nil
	})
	return err
}

// UpsertPatient merges patch into the session's patient record.
func (s *Store) UpsertPatient(id string, patch patient.Patch) error {
	_, err := s.Update(id, func(sess *pkg.Session) error {
		sess.Patient = patient.Merge(sess.Patient, patch)
		return nil
	})
	return err
}

// SetStage moves the session to stage.
func (s *Store) SetStage(id string, stage pkg.Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("store: invalid stage %q", stage)
	}
	_, err := s.Update(id, func(sess *pkg.Session) error {
		sess.Stage = stage
		return nil
	})
	return err
}

// Sweep removes every session idle for longer than the TTL and returns their
// ids.  Sessions with an operation in progress are skipped.
func (s *Store) Sweep() []string {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, e := range s.entries {
		if e.inflight > 0 {
			continue
		}
		if now.Sub(e.lastUsed) > s.ttl {
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// acquire resolves id, touches it and pins it against eviction.
func (s *Store) acquire(id string) (*entry, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("store: %s: %w", id, ErrNotFound)
	}
	now := s.now().UTC()
	e.lastUsed = now
	e.inflight++
	return e, now, nil
}

// release unpins e and touches it again, so a long transaction does not count
// as idle time.
func (s *Store) release(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.inflight--
	e.lastUsed = s.now().UTC()
}
