package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cart_identity (
  session_key TEXT PRIMARY KEY,
  cart_id     TEXT NOT NULL,
  quantity    INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL
)`

// SQLiteStore persists identities in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the identity database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("identity db path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create identity schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Load implements LocalStore.
func (s *SQLiteStore) Load(ctx context.Context, key string) (Identity, bool, error) {
	if s == nil || s.db == nil {
		return Identity{}, false, ErrStoreClosed
	}
	var id Identity
	err := s.db.QueryRowContext(ctx,
		`SELECT cart_id, quantity FROM cart_identity WHERE session_key = ?`, key,
	).Scan(&id.CartID, &id.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("load identity: %w", err)
	}
	return id, true, nil
}

// Save implements LocalStore.
func (s *SQLiteStore) Save(ctx context.Context, key string, id Identity) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_identity (session_key, cart_id, quantity, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET
		   cart_id = excluded.cart_id,
		   quantity = excluded.quantity,
		   updated_at = excluded.updated_at`,
		key, id.CartID, id.Quantity, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Delete implements LocalStore.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_identity WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// Close implements LocalStore.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
