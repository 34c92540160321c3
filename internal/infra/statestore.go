// Package infra implements infrastructure concerns (encrypted state
// store, encryption key provisioning).
package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	stateDBName = "state.db"

	metaSetupCompleted = "setup_completed"
	metaLastSync       = "last_sync"
)

// EncryptedStateStore implements domain.StateStore using a SQLCipher
// encrypted SQLite database. Health permission state is sensitive enough
// to warrant at-rest encryption even though it holds no metric payloads
// beyond the baseline snapshot.
type EncryptedStateStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStateStore opens (or creates) the encrypted state database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStateStore(dataDir string, key []byte) (*EncryptedStateStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStateStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *EncryptedStateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS granted_permissions (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		granted_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		slot TEXT PRIMARY KEY,
		metrics TEXT NOT NULL,
		captured_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GrantedIDs returns persisted granted ids in first-granted order.
func (s *EncryptedStateStore) GrantedIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM granted_permissions ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query granted permissions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddGranted merges ids into the granted set, preserving the position of
// ids already present.
func (s *EncryptedStateStore) AddGranted(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var maxPos sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(position) FROM granted_permissions`).Scan(&maxPos); err != nil {
		return err
	}
	pos := maxPos.Int64
	now := time.Now().Unix()

	for _, id := range ids {
		pos++
		_, err := tx.Exec(`
			INSERT INTO granted_permissions (id, position, granted_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			id, pos, now,
		)
		if err != nil {
			return fmt.Errorf("failed to persist grant %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// ClearGranted removes the whole granted set.
func (s *EncryptedStateStore) ClearGranted() error {
	_, err := s.db.Exec(`DELETE FROM granted_permissions`)
	return err
}

// SetSetupCompleted records whether permission setup ever ran.
func (s *EncryptedStateStore) SetSetupCompleted(done bool) error {
	value := "false"
	if done {
		value = "true"
	}
	return s.setMeta(metaSetupCompleted, value)
}

// SetupCompleted reports whether permission setup ever ran.
func (s *EncryptedStateStore) SetupCompleted() (bool, error) {
	value, err := s.getMeta(metaSetupCompleted)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// SaveSnapshot replaces the last-known-good baseline snapshot.
func (s *EncryptedStateStore) SaveSnapshot(snap *domain.HealthSnapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot persist nil snapshot")
	}
	metrics, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO snapshots (slot, metrics, captured_at)
		VALUES ('baseline', ?, ?)`,
		string(metrics), snap.CapturedAt.Unix(),
	)
	return err
}

// LatestSnapshot returns the baseline snapshot, or nil when none exists.
func (s *EncryptedStateStore) LatestSnapshot() (*domain.HealthSnapshot, error) {
	var metricsJSON string
	var capturedAt int64
	err := s.db.QueryRow(
		`SELECT metrics, captured_at FROM snapshots WHERE slot = 'baseline'`,
	).Scan(&metricsJSON, &capturedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	metrics := make(map[string]float64)
	if err := json.Unmarshal([]byte(metricsJSON), &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &domain.HealthSnapshot{
		Metrics:    metrics,
		CapturedAt: time.Unix(capturedAt, 0),
	}, nil
}

// SetLastSync records the last successful sync time as ISO-8601.
func (s *EncryptedStateStore) SetLastSync(t time.Time) error {
	return s.setMeta(metaLastSync, t.UTC().Format(time.RFC3339))
}

// LastSync returns the last successful sync time, zero if never synced.
func (s *EncryptedStateStore) LastSync() (time.Time, error) {
	value, err := s.getMeta(metaLastSync)
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last-sync timestamp: %w", err)
	}
	return t, nil
}

// Close releases the database connection.
func (s *EncryptedStateStore) Close() error {
	return s.db.Close()
}

// DBPath returns the database file path (for tests).
func (s *EncryptedStateStore) DBPath() string {
	return s.dbPath
}

func (s *EncryptedStateStore) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

func (s *EncryptedStateStore) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Ensure EncryptedStateStore implements domain.StateStore.
var _ domain.StateStore = (*EncryptedStateStore)(nil)
