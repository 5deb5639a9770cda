package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots in a single sqlite file, one row per user.
// The file plays the role browser localStorage plays for the web client:
// device-local, origin-shared, no locking between writers.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cart_snapshots (
	user_id    TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_flags (
	user_id     TEXT PRIMARY KEY,
	sync_failed INTEGER NOT NULL DEFAULT 0,
	updated_at  TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the snapshot database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveCart(userID string, lines []domain.CartLine) error {
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO cart_snapshots (user_id, payload, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, userID, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

func (s *SQLiteStore) LoadCart(userID string) ([]domain.CartLine, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM cart_snapshots WHERE user_id = $1`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(payload, &lines); err != nil {
		// Corrupt payload is treated as absent, not fatal.
		log.Printf("corrupt cart snapshot for user %s: %v", userID, err)
		return []domain.CartLine{}, nil
	}

	return lines, nil
}

func (s *SQLiteStore) DeleteCart(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM cart_snapshots WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetSyncFailed(userID string, failed bool) error {
	v := 0
	if failed {
		v = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_flags (user_id, sync_failed, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT(user_id) DO UPDATE SET sync_failed = excluded.sync_failed, updated_at = excluded.updated_at
	`, userID, v, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set sync flag: %w", err)
	}

	return nil
}

func (s *SQLiteStore) SyncFailed(userID string) bool {
	var v int
	err := s.db.QueryRow(`SELECT sync_failed FROM sync_flags WHERE user_id = $1`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		log.Printf("failed to read sync flag for user %s: %v", userID, err)
		return false
	}
	return v != 0
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
