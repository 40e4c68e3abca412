package store

import (
	"context"

	"github.com/google/uuid"
)

// AppendLogEntry persists one log line for a build.
func (s *Store) AppendLogEntry(ctx context.Context, e *LogEntry) error {
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO log_entries (build_id, level, message, timestamp)
		VALUES (:build_id, :level, :message, :timestamp)`, e)
	return err
}

// AppendLogEntries persists a batch of log lines in one round trip, used by
// the Build Worker's grouped-by-level flush (spec §4.2, "Log streaming").
func (s *Store) AppendLogEntries(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO log_entries (build_id, level, message, timestamp)
		VALUES (:build_id, :level, :message, :timestamp)`, entries)
	return err
}

// ListLogEntries returns a build's log lines in chronological order.
func (s *Store) ListLogEntries(ctx context.Context, buildID uuid.UUID) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.DB.SelectContext(ctx, &entries,
		`SELECT * FROM log_entries WHERE build_id = $1 ORDER BY timestamp ASC`, buildID)
	return entries, err
}

// DeleteLogEntries removes every log line for a build (spec §6, "DELETE
// /builds/:id/logs").
func (s *Store) DeleteLogEntries(ctx context.Context, buildID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM log_entries WHERE build_id = $1`, buildID)
	return err
}
