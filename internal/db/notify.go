package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"medvise-backend/pkg"
)

// DefaultChannel is the Postgres channel stage events are published on.
const DefaultChannel = "medvise_stage"

// StageEvent is the NOTIFY payload sent whenever a session changes stage.
type StageEvent struct {
	SessionID string    `json:"session_id"`
	Stage     pkg.Stage `json:"stage"`
	At        time.Time `json:"at"`
}

// ParseStageEvent decodes a NOTIFY payload.
func ParseStageEvent(payload string) (StageEvent, error) {
	var ev StageEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return StageEvent{}, fmt.Errorf("db: parse stage event: %w", err)
	}
	if ev.SessionID == "" {
		return StageEvent{}, errors.New("db: parse stage event: session_id missing")
	}
	return ev, nil
}

// Open connects to Postgres and verifies the connection within five seconds.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return conn, nil
}

// Notifier publishes stage transitions through LISTEN/NOTIFY so dashboards
// can follow intake progress.  Session state itself is never written to the
// database.
type Notifier struct {
	DB      *sql.DB
	Channel string
	Now     func() time.Time
}

// NewNotifier constructs a Notifier.  The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{DB: db, Channel: channel, Now: time.Now}
}

// NotifyStage sends a StageEvent for the session.
func (n *Notifier) NotifyStage(ctx context.Context, sessionID string, stage pkg.Stage) error {
	if n.DB == nil {
		return errors.New("db: notifier has no database")
	}
	payload, err := json.Marshal(StageEvent{SessionID: sessionID, Stage: stage, At: n.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, string(payload))
	return err
}

// Listen subscribes to the channel on a dedicated connection and delivers
// decoded events until ctx is cancelled.  Malformed payloads are logged and
// skipped.
func Listen(ctx context.Context, dsn, channel string, logger zerolog.Logger) (<-chan StageEvent, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	log := logger.With().Str("component", "notify").Str("channel", channel).Logger()
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("listener connection event")
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("db: listen %s: %w", pq.QuoteIdentifier(channel), err)
	}

	out := make(chan StageEvent)
	go func() {
		defer func() {
			_ = listener.Close()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect
				if n == nil {
					continue
				}
				ev, err := ParseStageEvent(n.Extra)
				if err != nil {
					log.Warn().Err(err).Str("payload", n.Extra).Msg("skipping notification")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				if err := listener.Ping(); err != nil {
					log.Warn().Err(err).Msg("listener ping failed")
				}
			}
		}
	}()
	return out, nil
}
