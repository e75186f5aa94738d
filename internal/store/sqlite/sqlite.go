package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/store"
)

// Schema creates the tables used by SQLiteStore.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	muted_until  INTEGER NOT NULL DEFAULT 0,
	mute_reason  TEXT NOT NULL DEFAULT '',
	banned       BOOLEAN NOT NULL DEFAULT 0,
	ban_reason   TEXT NOT NULL DEFAULT '',
	permissions  TEXT NOT NULL DEFAULT '{}',
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS kv_values (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RecordStore implementation ====

// LoadRecord retrieves a record by identity.
func (s *SQLiteStore) LoadRecord(ctx context.Context, id core.Identity) (*core.ClientRecord, error) {
	query := `
		SELECT name, muted_until, mute_reason, banned, ban_reason, permissions
		FROM records
		WHERE id = ?
	`
	var (
		rec        = core.ClientRecord{ID: id}
		mutedUntil int64
		perms      string
	)
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&rec.Name,
		&mutedUntil,
		&rec.MuteReason,
		&rec.Banned,
		&rec.BanReason,
		&perms,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query record: %w", err)
	}

	if mutedUntil != 0 {
		rec.MutedUntil = time.Unix(0, mutedUntil)
	}
	if err := json.Unmarshal([]byte(perms), &rec.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	return &rec, nil
}

// SaveRecord upserts a record.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *core.ClientRecord) error {
	perms, err := json.Marshal(rec.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	var mutedUntil int64
	if !rec.MutedUntil.IsZero() {
		mutedUntil = rec.MutedUntil.UnixNano()
	}

	query := `
		INSERT INTO records (id, name, muted_until, mute_reason, banned, ban_reason, permissions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			muted_until = excluded.muted_until,
			mute_reason = excluded.mute_reason,
			banned = excluded.banned,
			ban_reason = excluded.ban_reason,
			permissions = excluded.permissions,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID.String(),
		rec.Name,
		mutedUntil,
		rec.MuteReason,
		rec.Banned,
		rec.BanReason,
		string(perms),
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// RecordExists checks whether a record row exists.
func (s *SQLiteStore) RecordExists(ctx context.Context, id core.Identity) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM records WHERE id = ?)`, id.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return exists, nil
}

// ListRecords returns every persisted record.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*core.ClientRecord, error) {
	query := `
		SELECT id, name, muted_until, mute_reason, banned, ban_reason, permissions
		FROM records
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*core.ClientRecord
	for rows.Next() {
		var (
			rec        core.ClientRecord
			rawID      string
			mutedUntil int64
			perms      string
		)
		if err := rows.Scan(&rawID, &rec.Name, &mutedUntil, &rec.MuteReason, &rec.Banned, &rec.BanReason, &perms); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		id, err := core.ParseIdentity(rawID)
		if err != nil {
			continue
		}
		rec.ID = id
		if mutedUntil != 0 {
			rec.MutedUntil = time.Unix(0, mutedUntil)
		}
		if err := json.Unmarshal([]byte(perms), &rec.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// ==== KVStore implementation ====

// LoadValues returns all keys for a scope.
func (s *SQLiteStore) LoadValues(ctx context.Context, scope string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv_values WHERE scope = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	return values, nil
}

// SaveValues replaces the whole scope inside one transaction.
func (s *SQLiteStore) SaveValues(ctx context.Context, scope string, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_values WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("clear scope: %w", err)
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv_values (scope, key, value) VALUES (?, ?, ?)`, scope, k, v); err != nil {
			return fmt.Errorf("insert value: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
