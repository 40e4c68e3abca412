package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertAuditEntry persists one audit log row. Meta is marshaled to JSONB;
// a nil Meta is stored as SQL NULL.
func (s *Store) InsertAuditEntry(ctx context.Context, e *AuditEntry) error {
	var metaJSON []byte
	if e.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO audit_entries (actor, action, target_type, target_id, meta)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Actor, e.Action, e.TargetType, e.TargetID, metaJSON)
	return err
}

// ListRecentAuditEntries returns the most recent audit rows, newest first.
func (s *Store) ListRecentAuditEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []AuditEntry
	err := s.DB.SelectContext(ctx, &entries,
		`SELECT id, timestamp, actor, action, target_type, target_id, meta FROM audit_entries
		 ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if len(entries[i].MetaJSON) > 0 {
			_ = json.Unmarshal(entries[i].MetaJSON, &entries[i].Meta)
		}
	}
	return entries, nil
}
