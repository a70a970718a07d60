package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName   = "pactd.db"
	storeKeyAlias = "store"
)

// EncryptedStore implements domain.AgreementRepository and
// domain.MappingRepository using a SQLCipher encrypted SQLite database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database. The key
// comes from the key provider and is used as the SQLCipher passphrase via
// PRAGMA key.
func NewEncryptedStore(dataDir string, keys domain.KeyProvider) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	key, err := keys.GetOrCreateKey(storeKeyAlias)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain store key: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agreements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id TEXT NOT NULL DEFAULT '',
		app_name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		resolved_at INTEGER NOT NULL DEFAULT 0,
		conversation_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_agreements_status ON agreements(status, created_at DESC);

	CREATE TABLE IF NOT EXISTS app_categories (
		app_id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		custom_threshold_ms INTEGER NOT NULL DEFAULT 0,
		has_threshold INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.AgreementRepository implementation ---

// Create inserts a new agreement and returns its identifier.
func (s *EncryptedStore) Create(ctx context.Context, a domain.Agreement) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agreements
			(app_id, app_name, category, duration_ms, created_at, expires_at, status, resolved_at, conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AppID, a.AppName, string(a.Category), a.Duration.Milliseconds(),
		a.CreatedAt.UnixMilli(), a.ExpiresAt.UnixMilli(), string(a.Status),
		resolvedMillis(a.ResolvedAt), a.ConversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert agreement: %w", err)
	}
	return res.LastInsertId()
}

// GetActive returns ACTIVE agreements, newest first, optionally filtered
// by app identifier.
func (s *EncryptedStore) GetActive(ctx context.Context, appID string) ([]domain.Agreement, error) {
	query := `SELECT id, app_id, app_name, category, duration_ms, created_at, expires_at, status, resolved_at, conversation_id
		FROM agreements WHERE status = ?`
	args := []any{string(domain.StatusActive)}
	if appID != "" {
		query += ` AND app_id = ?`
		args = append(args, appID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active agreements: %w", err)
	}
	defer rows.Close()
	return scanAgreements(rows)
}

// GetRecent returns the most recent agreements in any status, newest first.
func (s *EncryptedStore) GetRecent(ctx context.Context, limit int) ([]domain.Agreement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, app_id, app_name, category, duration_ms, created_at, expires_at, status, resolved_at, conversation_id
		FROM agreements ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent agreements: %w", err)
	}
	defer rows.Close()
	return scanAgreements(rows)
}

// UpdateStatus applies a terminal status transition. The WHERE guard on
// ACTIVE makes the transition happen at most once.
func (s *EncryptedStore) UpdateStatus(ctx context.Context, id int64, status domain.AgreementStatus, resolvedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agreements SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(status), resolvedAt.UnixMilli(), id, string(domain.StatusActive))
	if err != nil {
		return fmt.Errorf("failed to update agreement status: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("agreement %d is not active", id)
	}
	return nil
}

// Reset deletes all agreements (explicit data-reset only).
func (s *EncryptedStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agreements`)
	return err
}

func scanAgreements(rows *sql.Rows) ([]domain.Agreement, error) {
	var out []domain.Agreement
	for rows.Next() {
		var a domain.Agreement
		var category, status string
		var durationMs, createdMs, expiresMs, resolvedMs int64
		if err := rows.Scan(&a.ID, &a.AppID, &a.AppName, &category, &durationMs,
			&createdMs, &expiresMs, &status, &resolvedMs, &a.ConversationID); err != nil {
			return nil, err
		}
		a.Category = domain.Category(category)
		a.Status = domain.AgreementStatus(status)
		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.CreatedAt = time.UnixMilli(createdMs)
		a.ExpiresAt = time.UnixMilli(expiresMs)
		if resolvedMs != 0 {
			a.ResolvedAt = time.UnixMilli(resolvedMs)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func resolvedMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// --- domain.MappingRepository implementation ---

// GetByApp returns the mapping for an app identifier, or nil if none.
func (s *EncryptedStore) GetByApp(ctx context.Context, appID string) (*domain.AppCategoryMapping, error) {
	var m domain.AppCategoryMapping
	var category, source string
	var thresholdMs, updatedMs int64
	var hasThreshold, blocked int
	err := s.db.QueryRowContext(ctx, `
		SELECT app_id, category, custom_threshold_ms, has_threshold, blocked, source, updated_at
		FROM app_categories WHERE app_id = ?`, appID).
		Scan(&m.AppID, &category, &thresholdMs, &hasThreshold, &blocked, &source, &updatedMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	m.Category = domain.Category(category)
	m.Source = domain.MappingSource(source)
	m.CustomThreshold = thresholdFromMillis(thresholdMs)
	m.HasThreshold = hasThreshold != 0
	m.Blocked = blocked != 0
	m.UpdatedAt = time.UnixMilli(updatedMs)
	return &m, nil
}

// Upsert inserts or unconditionally replaces a mapping.
func (s *EncryptedStore) Upsert(ctx context.Context, m domain.AppCategoryMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO app_categories
			(app_id, category, custom_threshold_ms, has_threshold, blocked, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.AppID, string(m.Category), thresholdMillis(m.CustomThreshold),
		boolInt(m.HasThreshold), boolInt(m.Blocked), string(m.Source), m.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts a mapping only when none exists for the app.
func (s *EncryptedStore) InsertIfAbsent(ctx context.Context, m domain.AppCategoryMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO app_categories
			(app_id, category, custom_threshold_ms, has_threshold, blocked, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.AppID, string(m.Category), thresholdMillis(m.CustomThreshold),
		boolInt(m.HasThreshold), boolInt(m.Blocked), string(m.Source), m.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert mapping: %w", err)
	}
	return nil
}

// Delete removes the mapping for an app identifier.
func (s *EncryptedStore) Delete(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_categories WHERE app_id = ?`, appID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// noLimitMillis encodes domain.NoLimit on disk. Milliseconds() of the
// sentinel would not round-trip.
const noLimitMillis = int64(-1)

func thresholdMillis(d time.Duration) int64 {
	if d == domain.NoLimit {
		return noLimitMillis
	}
	return d.Milliseconds()
}

func thresholdFromMillis(ms int64) time.Duration {
	if ms == noLimitMillis {
		return domain.NoLimit
	}
	return time.Duration(ms) * time.Millisecond
}

// GetStorePath returns the database file path.
func (s *EncryptedStore) GetStorePath() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements both repositories.
var _ domain.AgreementRepository = (*EncryptedStore)(nil)
var _ domain.MappingRepository = (*EncryptedStore)(nil)
