package identity

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"icstask/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the IdentitySet in a SQLite database, one row per uid.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS synced_tasks (
			uid TEXT PRIMARY KEY,
			task_ref TEXT NOT NULL,
			due_fingerprint TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			synced_at DATETIME
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Load reads every stored record.
func (s *SQLiteStore) Load(ctx context.Context) (models.IdentitySet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, task_ref, due_fingerprint, content, synced_at FROM synced_tasks`)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	defer rows.Close()

	set := make(models.IdentitySet)
	for rows.Next() {
		var rec models.SyncedTaskRecord
		var syncedAt sql.NullTime
		if err := rows.Scan(&rec.UID, &rec.TaskRef, &rec.DueFingerprint, &rec.Content, &syncedAt); err != nil {
			return nil, &StoreError{Op: "load", Err: err}
		}
		if syncedAt.Valid {
			rec.SyncedAt = syncedAt.Time.UTC()
		}
		set[rec.UID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	return set, nil
}

// Save replaces every row in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, set models.IdentitySet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM synced_tasks`); err != nil {
		return &StoreError{Op: "save", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO synced_tasks (uid, task_ref, due_fingerprint, content, synced_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	defer stmt.Close()

	for _, uid := range set.UIDs() {
		rec := set[uid]
		var syncedAt interface{}
		if !rec.SyncedAt.IsZero() {
			syncedAt = rec.SyncedAt.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx, uid, rec.TaskRef, rec.DueFingerprint, rec.Content, syncedAt); err != nil {
			return &StoreError{Op: "save", Err: fmt.Errorf("insert %s: %w", uid, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}

// Durable is true.
func (s *SQLiteStore) Durable() bool { return true }
