package store

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the janitor once a minute.
const DefaultSweepSchedule = "@every 60s"

// Janitor sweeps idle sessions on a fixed wall-clock schedule, independent of
// request traffic.
type Janitor struct {
	store *Store
	cron  *cron.Cron
	log   zerolog.Logger
}

// NewJanitor registers the sweep job.  schedule accepts standard 5-field cron
// expressions and descriptors such as "@every 30s".
func NewJanitor(s *Store, schedule string, logger zerolog.Logger) (*Janitor, error) {
	if s == nil {
		return nil, fmt.Errorf("store: janitor: store is required")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	j := &Janitor{
		store: s,
		cron:  cron.New(),
		log:   logger.With().Str("component", "janitor").Logger(),
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("store: janitor: schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce() {
	evicted := j.store.Sweep()
	if len(evicted) == 0 {
		return
	}
	j.log.Debug().Int("evicted", len(evicted)).Int("live", j.store.Len()).Msg("swept idle sessions")
}

// Start begins running the schedule in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }
