// Package settings persists the kiosk's user-adjustable settings in sqlite.
//
// Each setting is stored as one row holding its JSON-encoded value. A key
// with no row reads as its default, so Reset only has to delete rows.
package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

// Known setting keys.
const (
	KeySerialBaudRate = "serialBaudRate"
	KeySerialPortPath = "serialPortPath"
)

// Defaults for every known key.
const (
	DefaultSerialBaudRate = 115200
	DefaultSerialPortPath = "/dev/ttyS3"
)

var (
	// ErrInvalidKey is returned for a key the store does not know.
	ErrInvalidKey = errors.New("invalid settings key")
	// ErrInvalidValue is returned when a value has the wrong type or range.
	ErrInvalidValue = errors.New("invalid settings value")
)

// Store is a sqlite-backed settings map. It is safe for concurrent use.
type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the settings database at path and brings
// its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+pragmaQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(migrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// pragmaQuery is applied by the driver to every pooled connection.
const pragmaQuery = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// Keys returns the known keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var defaults = map[string]any{
	KeySerialBaudRate: DefaultSerialBaudRate,
	KeySerialPortPath: DefaultSerialPortPath,
}

// validate checks a JSON value for key and returns its canonical encoding.
func validate(key string, raw json.RawMessage) (json.RawMessage, error) {
	switch key {
	case KeySerialBaudRate:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidValue, key, v)
		}
		return json.Marshal(v)
	case KeySerialPortPath:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidValue, key)
		}
		if v == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, key)
		}
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
}

// Get returns the JSON value stored for key, or the key's default.
func (s *Store) Get(key string) (json.RawMessage, error) {
	def, ok := defaults[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	var value string
	err := s.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return json.Marshal(def)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// Set validates value and stores it under key.
func (s *Store) Set(key string, value json.RawMessage) error {
	canonical, err := validate(key, value)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, UNIXEPOCH())
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(canonical))
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Reset restores every key to its default.
func (s *Store) Reset() error {
	if _, err := s.Exec(`DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to reset settings: %w", err)
	}
	return nil
}

// All returns the effective value of every known key.
func (s *Store) All() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(defaults))
	for _, k := range Keys() {
		v, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// PortPath returns the configured serial device path.
func (s *Store) PortPath() (string, error) {
	var v string
	if err := s.getInto(KeySerialPortPath, &v); err != nil {
		return "", err
	}
	return v, nil
}

// BaudRate returns the configured serial baud rate.
func (s *Store) BaudRate() (int, error) {
	var v int
	if err := s.getInto(KeySerialBaudRate, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *Store) getInto(key string, v any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return nil
}
