// Package session persists the authenticated session across restarts.
// Objects are stored as whole JSON blobs: load and save are atomic
// per object, never field-by-field.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/plumeapp/plume/internal/model"
	"github.com/plumeapp/plume/internal/ops"
)

const (
	keyCurrentUser   = "current_user"
	keyUserDirectory = "user_directory"
)

// Store is a sqlite-backed blob store for session state
type Store struct {
	db     *sqlx.DB
	logger *ops.Logger
}

// Open opens (and migrates) the session database at path
func Open(path string, logger *ops.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach session database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.WithComponent("session"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_blobs (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate session schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	start := time.Now()
	err := s.saveBlob(ctx, key, value)
	s.logger.LogSessionOperation("save_"+key, time.Since(start), err)
	return err
}

func (s *Store) saveBlob(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_blobs (key, value, updated_at) VALUES (?, ?, ?)`,
		key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// load decodes the blob for key into out; found is false when no blob exists
func (s *Store) load(ctx context.Context, key string, out any) (bool, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data,
		`SELECT value FROM session_blobs WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SaveCurrentUser persists the current-user record
func (s *Store) SaveCurrentUser(ctx context.Context, user *model.User) error {
	return s.save(ctx, keyCurrentUser, user)
}

// LoadCurrentUser returns the persisted current user, or nil when none
// has been saved
func (s *Store) LoadCurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	found, err := s.load(ctx, keyCurrentUser, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// SaveUserDirectory persists the known-users directory
func (s *Store) SaveUserDirectory(ctx context.Context, users map[string]model.User) error {
	return s.save(ctx, keyUserDirectory, users)
}

// LoadUserDirectory returns the persisted user directory, empty when
// none has been saved
func (s *Store) LoadUserDirectory(ctx context.Context) (map[string]model.User, error) {
	users := make(map[string]model.User)
	if _, err := s.load(ctx, keyUserDirectory, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Clear wipes all persisted session state (logout boundary)
func (s *Store) Clear(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_blobs`)
	s.logger.LogSessionOperation("clear", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to clear session state: %w", err)
	}
	return nil
}
