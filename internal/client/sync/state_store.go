package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/localbox/internal/db"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS directory_state (
    path TEXT PRIMARY KEY,
    mtime INTEGER NOT NULL -- unix seconds
);
`

var (
	ErrStoreNotOpen = errors.New("state store not open")
)

type dbStateEntry struct {
	Path  string `db:"path"`
	MTime int64  `db:"mtime"`
}

// StateStore persists the DirectoryState in SQLite. Every save replaces the
// whole table in one transaction, so the file on disk always holds one
// complete cycle's state.
type StateStore struct {
	db     *sqlx.DB
	dbPath string
	mu     sync.Mutex
}

func NewStateStore(dbPath string) *StateStore {
	return &StateStore{
		dbPath: dbPath,
	}
}

// Open the store. A database that cannot be opened is moved aside and
// replaced with an empty one.
func (s *StateStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return fmt.Errorf("state store already open")
	}

	err := s.openLocked()
	if err == nil {
		return nil
	}

	slog.Warn("state store unreadable, rebuilding", "path", s.dbPath, "error", err)
	if err := s.backupLocked(); err != nil {
		return err
	}
	return s.openLocked()
}

func (s *StateStore) openLocked() error {
	sdb, err := db.Open(s.dbPath, db.WithSchema(stateSchema), db.WithMaxConns(1))
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	s.db = sdb
	return nil
}

// backupLocked closes the database and renames it to state.db.<timestamp>.bak
func (s *StateStore) backupLocked() error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	if _, err := os.Stat(s.dbPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	timestamp := time.Now().Format("20060102150405")
	backup := fmt.Sprintf("%s.%s.bak", s.dbPath, timestamp)
	if err := os.Rename(s.dbPath, backup); err != nil {
		return fmt.Errorf("failed to back up state store: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.dbPath + suffix)
	}

	slog.Warn("state store backed up", "backup", backup)
	return nil
}

func (s *StateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreNotOpen
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		slog.Error("state store close", "error", err)
		return err
	}
	slog.Debug("state store closed")
	return nil
}

// Destroy closes the store and moves the database aside.
func (s *StateStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupLocked()
}

// Load returns the persisted state. An unreadable table is treated as
// corruption: the database is rebuilt and an empty state returned.
func (s *StateStore) Load() (DirectoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *StateStore) loadLocked() (DirectoryState, error) {
	if s.db == nil {
		return nil, ErrStoreNotOpen
	}

	var rows []dbStateEntry
	if err := s.db.Select(&rows, "SELECT path, mtime FROM directory_state"); err != nil {
		slog.Warn("state store unreadable, rebuilding", "path", s.dbPath, "error", err)
		if err := s.backupLocked(); err != nil {
			return nil, err
		}
		if err := s.openLocked(); err != nil {
			return nil, err
		}
		return DirectoryState{}, nil
	}

	state := make(DirectoryState, len(rows))
	for _, row := range rows {
		state[row.Path] = row.MTime
	}
	return state, nil
}

// Save atomically replaces the persisted state with state.
func (s *StateStore) Save(state DirectoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(state)
}

func (s *StateStore) saveLocked(state DirectoryState) error {
	if s.db == nil {
		return ErrStoreNotOpen
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin state save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM directory_state"); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}

	if len(state) > 0 {
		stmt, err := tx.Preparex("INSERT INTO directory_state (path, mtime) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare state insert: %w", err)
		}
		defer stmt.Close()

		for path, mtime := range state {
			if _, err := stmt.Exec(path, mtime); err != nil {
				return fmt.Errorf("failed to save state for %s: %w", path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	slog.Debug("state saved", "entries", len(state))
	return nil
}

// Update runs load, fn and save under the store lock. When fn returns an
// error nothing is saved.
func (s *StateStore) Update(fn func(DirectoryState) (DirectoryState, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}

	next, err := fn(state)
	if err != nil {
		return err
	}
	return s.saveLocked(next)
}
