package auth

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the allow-list in an allowed_users table. SaveAll rewrites
// the table inside one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "allowlist-store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS allowed_users (
			position INTEGER NOT NULL,
			username TEXT PRIMARY KEY,
			added_at TEXT NOT NULL DEFAULT '',
			added_by TEXT NOT NULL DEFAULT ''
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite allow-list store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Load() ([]User, error) {
	rows, err := s.db.Query(`SELECT username, added_at, added_by FROM allowed_users ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var (
			u       User
			addedAt string
		)
		if err := rows.Scan(&u.Username, &addedAt, &u.AddedBy); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		if addedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, addedAt); err == nil {
				u.AddedAt = t
			}
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) SaveAll(users []User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM allowed_users`); err != nil {
		return fmt.Errorf("clearing users: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO allowed_users (position, username, added_at, added_by) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, u := range users {
		var addedAt string
		if !u.AddedAt.IsZero() {
			addedAt = u.AddedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(i, u.Username, addedAt, u.AddedBy); err != nil {
			return fmt.Errorf("inserting %s: %w", u.Username, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	s.logger.Debug("allow-list saved", "users", len(users))
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
