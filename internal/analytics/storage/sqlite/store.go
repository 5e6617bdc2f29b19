// Package sqlite implements the analytics event store on an embedded
// SQLite database.
//
// Two backing strategies are supported. The default opens a file-backed
// database with WAL journaling, so every committed transaction is durable.
// The in-memory strategy keeps the working set in RAM and persists a full
// snapshot to disk on a debounced schedule; it trades a small durability
// window for write throughput, which is acceptable because the kiosk client
// retains unacknowledged events and re-sends them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage/sqlite/migrations"
	sqlitemigrate "github.com/meridianworks/kiosk-analytics/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// DefaultFlushDelay is the debounce window for snapshot persistence.
const DefaultFlushDelay = 200 * time.Millisecond

var memDBCounter atomic.Uint64

// Options selects the backing strategy for a store.
type Options struct {
	// InMemory keeps the database in RAM and persists debounced snapshots
	// to the store path instead of writing through on every transaction.
	InMemory bool
	// FlushDelay overrides the snapshot debounce window. Zero means
	// DefaultFlushDelay. Ignored for file-backed stores.
	FlushDelay time.Duration
}

// Store provides SQLite-backed persistence for kiosk telemetry events.
type Store struct {
	sqlDB        *sql.DB
	snapshotPath string
	flusher      *debouncer
}

// Open opens an analytics store at the provided path.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)

	var sqlDB *sql.DB
	var err error
	if opts.InMemory {
		// Each store gets its own named memory database; shared cache keeps
		// it alive across pooled connections without colliding with other
		// stores in the same process.
		dsn := fmt.Sprintf("file:analytics_mem_%d?mode=memory&cache=shared", memDBCounter.Add(1))
		sqlDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open in-memory sqlite db: %w", err)
		}
		// A second connection would see its own empty image without shared
		// cache; cap at one so all statements observe the same database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		// modernc.org/sqlite applies pragmas via _pragma=name(value)
		// parameters. busy_timeout makes concurrent writers queue on the
		// write lock instead of failing with SQLITE_BUSY.
		dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
		sqlDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if opts.InMemory {
		store.snapshotPath = cleanPath
		if err := store.restoreSnapshot(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		delay := opts.FlushDelay
		if delay <= 0 {
			delay = DefaultFlushDelay
		}
		store.flusher = newDebouncer(delay, store.writeSnapshot)
	}

	return store, nil
}

// Close flushes any pending snapshot and closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	if s.flusher != nil {
		s.flusher.Close()
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS)
}

// scheduleFlush is a no-op for file-backed stores.
func (s *Store) scheduleFlush() {
	if s.flusher != nil {
		s.flusher.Schedule()
	}
}

// restoreSnapshot loads previously persisted rows into the in-memory image.
func (s *Store) restoreSnapshot() error {
	if s.snapshotPath == "" {
		return nil
	}
	if _, err := os.Stat(s.snapshotPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if _, err := s.sqlDB.Exec("ATTACH DATABASE ? AS snapshot", s.snapshotPath); err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	_, copyErr := s.sqlDB.Exec(`
INSERT OR IGNORE INTO events (id, session_id, ts, type, stage_id, domain_id, app_version, payload)
SELECT id, session_id, ts, type, stage_id, domain_id, app_version, payload FROM snapshot.events
`)
	if _, err := s.sqlDB.Exec("DETACH DATABASE snapshot"); err != nil {
		return fmt.Errorf("detach snapshot: %w", err)
	}
	if copyErr != nil {
		return fmt.Errorf("copy snapshot rows: %w", copyErr)
	}
	return nil
}

// writeSnapshot persists the full in-memory image to disk. It writes to a
// temp file first and renames, so a crash mid-flush never corrupts the
// previous snapshot.
func (s *Store) writeSnapshot() error {
	if s == nil || s.sqlDB == nil || s.snapshotPath == "" {
		return nil
	}
	tempPath := s.snapshotPath + ".tmp"
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot temp: %w", err)
	}
	// VACUUM INTO does not accept bound parameters in every SQLite build,
	// so the path is embedded as an escaped literal.
	escaped := strings.ReplaceAll(tempPath, "'", "''")
	if _, err := s.sqlDB.Exec("VACUUM INTO '" + escaped + "'"); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	if err := os.Rename(tempPath, s.snapshotPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// FlushNow forces any pending snapshot to disk. File-backed stores are
// always durable, so this is a no-op for them.
func (s *Store) FlushNow() error {
	if s == nil || s.flusher == nil {
		return nil
	}
	return s.flusher.FlushNow()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}
