// Package state persists client preferences in a small SQLite database.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Tyrowin/mentionchat/internal/theme"
)

const (
	keyTheme        = "theme"
	keyLastNickname = "last_nickname"
)

// State manages client-side persistent state.
type State struct {
	db *sql.DB
}

// Open opens or creates the state database at path.
func Open(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// The client only ever needs one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &State{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS Config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the state database.
func (s *State) Close() error {
	return s.db.Close()
}

// GetConfig retrieves a stored value. Missing keys yield "".
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a value.
func (s *State) SetConfig(key, value string) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Theme returns the stored theme preference, or theme.Default.
func (s *State) Theme() theme.Name {
	v, err := s.GetConfig(keyTheme)
	if err != nil {
		return theme.Default
	}
	return theme.Parse(v)
}

// SetTheme stores the theme preference.
func (s *State) SetTheme(name theme.Name) error {
	return s.SetConfig(keyTheme, string(name))
}

// LastNickname returns the last nickname used, if any.
func (s *State) LastNickname() string {
	v, _ := s.GetConfig(keyLastNickname)
	return v
}

// SetLastNickname stores the nickname.
func (s *State) SetLastNickname(nick string) error {
	return s.SetConfig(keyLastNickname, nick)
}
