// Package transcript persists finished turns to a local sqlite database. It
// is a write-side collaborator: the session records turns here, and nothing
// in the protocol path ever reads them back.
package transcript

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sudosu-ai/sudosu/pkg/stream"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	agent       TEXT NOT NULL,
	state       TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	deltas      INTEGER NOT NULL,
	tool_calls  INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
CREATE INDEX IF NOT EXISTS idx_turns_started ON turns(started_at);
`

// Config holds transcript store configuration.
type Config struct {
	// Path is the sqlite database file; parent directories are created.
	Path string

	// RetentionDays bounds how long turns are kept. Zero disables pruning.
	RetentionDays int

	// PruneSchedule is a cron expression for the retention sweep. Ignored
	// when RetentionDays is zero.
	PruneSchedule string

	Logger zerolog.Logger
}

// Stats summarizes stored turns.
type Stats struct {
	Turns     int
	Completed int
	Errored   int
	Cancelled int
	Deltas    int
	ToolCalls int
	Oldest    time.Time
	Newest    time.Time
}

// Store is a sqlite-backed transcript.
type Store struct {
	db        *sql.DB
	retention time.Duration
	scheduler *cron.Cron
	logger    zerolog.Logger
}

// Open opens (creating if needed) the transcript database and starts the
// retention sweep if one is configured.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("transcript path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize transcript schema: %w", err)
	}

	s := &Store{
		db:        db,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    cfg.Logger.With().Str("component", "transcript").Logger(),
	}

	if cfg.RetentionDays > 0 && cfg.PruneSchedule != "" {
		s.scheduler = cron.New()
		if _, err := s.scheduler.AddFunc(cfg.PruneSchedule, s.sweep); err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSchedule, err)
		}
		s.scheduler.Start()
	}

	return s, nil
}

// Record stores one finished turn. Non-terminal turns are rejected.
func (s *Store) Record(sessionID string, turn *stream.Turn) error {
	if turn == nil {
		return fmt.Errorf("turn is required")
	}
	if !turn.State.Terminal() {
		return fmt.Errorf("refusing to record non-terminal turn %s in state %s", turn.ID, turn.State)
	}

	_, err := s.db.Exec(`
		INSERT INTO turns (id, session_id, agent, state, error, deltas, tool_calls, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, sessionID, turn.Agent, string(turn.State), turn.Error,
		turn.Deltas, turn.ToolCalls, turn.StartedAt, turn.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// SessionStats summarizes the turns of one session.
func (s *Store) SessionStats(sessionID string) (Stats, error) {
	return s.stats("WHERE session_id = ?", sessionID)
}

// TotalStats summarizes everything in the store.
func (s *Store) TotalStats() (Stats, error) {
	return s.stats("")
}

func (s *Store) stats(where string, args ...interface{}) (Stats, error) {
	var st Stats
	var oldest, newest sql.NullTime

	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN state = 'errored' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN state = 'cancelled' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(deltas), 0),
		       COALESCE(SUM(tool_calls), 0),
		       MIN(started_at),
		       MAX(started_at)
		FROM turns `+where, args...)

	if err := row.Scan(&st.Turns, &st.Completed, &st.Errored, &st.Cancelled,
		&st.Deltas, &st.ToolCalls, &oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	if oldest.Valid {
		st.Oldest = oldest.Time
	}
	if newest.Valid {
		st.Newest = newest.Time
	}
	return st, nil
}

// Prune deletes turns that started before the cutoff and returns how many.
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM turns WHERE started_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transcript: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every stored turn.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM turns"); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// Close stops the retention sweep and closes the database.
func (s *Store) Close() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	return s.db.Close()
}

func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.retention)
	pruned, err := s.Prune(cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return
	}
	if pruned > 0 {
		s.logger.Info().
			Int64("pruned", pruned).
			Time("cutoff", cutoff).
			Msg("Pruned old transcript turns")
	}
}
