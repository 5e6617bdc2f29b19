package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
)

const insertEventSQL = `
INSERT OR IGNORE INTO events (id, session_id, ts, type, stage_id, domain_id, app_version, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertEvents writes a batch of events in a single transaction. Rows whose
// id already exists are ignored, so re-delivered batches never fail or
// double-count. Either the whole batch commits or none of it does.
func (s *Store) InsertEvents(ctx context.Context, records []storage.EventRecord) (storage.InsertResult, error) {
	if err := s.ready(ctx); err != nil {
		return storage.InsertResult{}, err
	}
	if len(records) == 0 {
		return storage.InsertResult{}, nil
	}
	for i, record := range records {
		if strings.TrimSpace(record.ID) == "" {
			return storage.InsertResult{}, fmt.Errorf("event %d: id is required", i)
		}
		if strings.TrimSpace(record.Type) == "" {
			return storage.InsertResult{}, fmt.Errorf("event %d: type is required", i)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.InsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return storage.InsertResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	result := storage.InsertResult{}
	seenTypes := make(map[string]struct{}, len(records))
	for i, record := range records {
		res, err := stmt.ExecContext(ctx,
			record.ID,
			record.SessionID,
			record.Timestamp,
			record.Type,
			nullable(record.StageID),
			nullable(record.DomainID),
			nullable(record.AppVersion),
			nullable(record.PayloadJSON),
		)
		if err != nil {
			return storage.InsertResult{}, fmt.Errorf("insert event %d: %w", i, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return storage.InsertResult{}, fmt.Errorf("insert event %d rows affected: %w", i, err)
		}
		result.Inserted += int(affected)
		if _, seen := seenTypes[record.Type]; !seen {
			seenTypes[record.Type] = struct{}{}
			result.Types = append(result.Types, record.Type)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.InsertResult{}, fmt.Errorf("commit: %w", err)
	}

	s.scheduleFlush()
	return result, nil
}

// ListEvents returns raw event rows ordered by timestamp ascending.
func (s *Store) ListEvents(ctx context.Context, window storage.Window) ([]storage.EventRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	query := `
SELECT id, session_id, ts, type,
       COALESCE(stage_id, ''), COALESCE(domain_id, ''),
       COALESCE(app_version, ''), COALESCE(payload, '')
FROM events
`
	var args []any
	if window.Bounded {
		query += "WHERE ts >= ?\n"
		args = append(args, window.Cutoff)
	}
	query += "ORDER BY ts ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var records []storage.EventRecord
	for rows.Next() {
		var record storage.EventRecord
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Timestamp,
			&record.Type,
			&record.StageID,
			&record.DomainID,
			&record.AppVersion,
			&record.PayloadJSON,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// CountEvents returns the total number of stored rows.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// nullable maps an empty string to a SQL NULL so optional columns stay
// queryable with IS NULL semantics.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
