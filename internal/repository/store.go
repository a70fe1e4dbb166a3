package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Querier is the subset of *sql.DB and *sql.Tx the repositories need, so the
// same repository code runs inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories bundles every repository bound to one Querier.
type Repositories struct {
	Notes       NoteRepository
	Placements  PlacementRepository
	History     NoteHistoryRepository
	Audits      AuditRepository
	Sync        SyncRepository
	Attachments AttachmentRepository
	Options     OptionRepository
}

func newRepositories(q Querier) *Repositories {
	return &Repositories{
		Notes:       NewNoteRepository(q),
		Placements:  NewPlacementRepository(q),
		History:     NewNoteHistoryRepository(q),
		Audits:      NewAuditRepository(q),
		Sync:        NewSyncRepository(q),
		Attachments: NewAttachmentRepository(q),
		Options:     NewOptionRepository(q),
	}
}

// UnitOfWork gives services plain repositories for reads and a transactional
// unit for multi-write operations.
type UnitOfWork interface {
	Repositories() *Repositories
	RunInTransaction(ctx context.Context, fn func(r *Repositories) error) error
}

type Store struct {
	db    *sql.DB
	repos *Repositories
}

// Open opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	// Units read before they write. Taking the write lock at BEGIN makes
	// concurrent units wait on busy_timeout instead of failing the upgrade
	// with SQLITE_BUSY.
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every connection to :memory: is a different database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, repos: newRepositories(db)}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			note_id TEXT PRIMARY KEY,
			note_title TEXT NOT NULL DEFAULT '',
			note_text BLOB,
			is_protected INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			date_created INTEGER NOT NULL,
			date_modified INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes_tree (
			note_tree_id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL,
			note_pid TEXT,
			note_pos INTEGER NOT NULL,
			is_expanded INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			date_modified INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_tree_parent ON notes_tree(note_pid, is_deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_tree_note ON notes_tree(note_id)`,
		`CREATE TABLE IF NOT EXISTS notes_history (
			note_history_id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL,
			note_title TEXT NOT NULL DEFAULT '',
			note_text BLOB,
			is_protected INTEGER NOT NULL DEFAULT 0,
			date_modified_from INTEGER NOT NULL,
			date_modified_to INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_history_note ON notes_history(note_id, date_modified_from)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date_added INTEGER NOT NULL,
			category TEXT NOT NULL,
			browser_id TEXT,
			note_id TEXT,
			change_from TEXT,
			change_to TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_recent ON audit_log(category, browser_id, note_id, date_added)`,
		`CREATE TABLE IF NOT EXISTS sync (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_name TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			sync_date INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			image_id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL,
			mime_type TEXT NOT NULL DEFAULT '',
			image_data BLOB,
			date_created INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_note ON images(note_id)`,
		`CREATE TABLE IF NOT EXISTS options (
			opt_name TEXT PRIMARY KEY,
			opt_value TEXT NOT NULL,
			date_modified INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func (s *Store) Repositories() *Repositories {
	return s.repos
}

// RunInTransaction runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(r *Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
