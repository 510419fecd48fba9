// Package store is the single-file persistence layer: settings, approval
// requests, and the append-only audit log share one SQLite database.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/canonical"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS approval_requests (
    id TEXT PRIMARY KEY,
    action TEXT NOT NULL,
    target TEXT NOT NULL,
    metadata_json TEXT NOT NULL,
    risk TEXT NOT NULL,
    status TEXT NOT NULL,
    reason TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    approved_at TEXT
);

CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    event_type TEXT NOT NULL,
    request_id TEXT,
    action TEXT,
    target TEXT,
    outcome TEXT NOT NULL,
    details_json TEXT NOT NULL,
    prev_hash TEXT NOT NULL DEFAULT '',
    entry_hash TEXT NOT NULL
);
`

// Store wraps the SQLite database. All operations are atomic; the audit
// append additionally serializes through auditMu so the (read last hash,
// insert) pair cannot interleave between writers on the same process.
type Store struct {
	db      *sqlx.DB
	logger  *zap.Logger
	auditMu sync.Mutex
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("Database ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetSetting returns the value for key, or ("", false) when absent. Reading
// a setting never fails with a user-visible error.
func (s *Store) GetSetting(key string) (string, bool) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Error("Setting read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return value, true
}

// SetSetting upserts a key/value pair.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
        INSERT INTO settings (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// CreateRequest persists a new pending approval request.
func (s *Store) CreateRequest(id, action, target string, metadata map[string]interface{}, risk, reason, policyID, expiresAt string) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := canonical.String(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.Exec(`
        INSERT INTO approval_requests
            (id, action, target, metadata_json, risk, status, reason, policy_id, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)`,
		id, action, target, metadataJSON, risk, reason, policyID, NowISO(), expiresAt)
	if err != nil {
		return fmt.Errorf("create request %s: %w", id, err)
	}
	return nil
}

// GetRequest loads a request by id; returns (nil, nil) when absent.
func (s *Store) GetRequest(id string) (*ApprovalRequest, error) {
	var req ApprovalRequest
	err := s.db.Get(&req, `SELECT * FROM approval_requests WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	req.decodeMetadata()
	return &req, nil
}

// IncrementAttempts bumps the attempt counter and returns the post-increment
// value. The update and read run in one transaction so concurrent attempts
// each observe a distinct value.
func (s *Store) IncrementAttempts(id string) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE approval_requests SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("increment attempts %s: %w", id, err)
	}
	var attempts int
	if err := tx.Get(&attempts, `SELECT attempts FROM approval_requests WHERE id = ?`, id); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("read attempts %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return attempts, nil
}

// SetRequestStatus updates a request's status. approved_at is set iff the new
// status is approved, and cleared otherwise.
func (s *Store) SetRequestStatus(id, status string) error {
	var approvedAt *string
	if status == StatusApproved {
		now := NowISO()
		approvedAt = &now
	}
	_, err := s.db.Exec(`UPDATE approval_requests SET status = ?, approved_at = ? WHERE id = ?`,
		status, approvedAt, id)
	if err != nil {
		return fmt.Errorf("set status %s=%s: %w", id, status, err)
	}
	return nil
}

// ListPendingRequests returns the 100 most recent pending requests.
func (s *Store) ListPendingRequests() ([]ApprovalRequest, error) {
	var rows []ApprovalRequest
	err := s.db.Select(&rows, `
        SELECT * FROM approval_requests
        WHERE status = 'pending'
        ORDER BY created_at DESC
        LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	for i := range rows {
		rows[i].decodeMetadata()
	}
	return rows, nil
}

// AppendAudit appends one entry to the hash chain. The previous entry's hash
// is read and the new row inserted inside a single transaction held under
// auditMu, so the chain cannot fork under concurrent writers in this process.
func (s *Store) AppendAudit(eventType, outcome string, details map[string]interface{}, requestID, action, target string) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := canonical.String(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer tx.Rollback()

	var prevHash string
	err = tx.Get(&prevHash, `SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1`)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read last audit hash: %w", err)
	}

	ts := NowISO()
	entryHash := AuditEntryHash(prevHash, ts, eventType, requestID, action, target, outcome, detailsJSON)

	_, err = tx.Exec(`
        INSERT INTO audit_log
            (ts, event_type, request_id, action, target, outcome, details_json, prev_hash, entry_hash)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, eventType, nullable(requestID), nullable(action), nullable(target),
		outcome, detailsJSON, prevHash, entryHash)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit append: %w", err)
	}
	return nil
}

// RecentAudit returns up to limit entries, newest first. Limit is clamped to
// [1, 500].
func (s *Store) RecentAudit(limit int) ([]AuditEntry, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	var rows []AuditEntry
	err := s.db.Select(&rows, `SELECT * FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	for i := range rows {
		rows[i].decodeDetails()
	}
	return rows, nil
}

// VerifyAuditChain recomputes every entry hash and link. It returns the
// 1-based sequence position of the first broken entry, or 0 when the chain is
// intact.
func (s *Store) VerifyAuditChain() (int64, error) {
	var rows []AuditEntry
	if err := s.db.Select(&rows, `SELECT * FROM audit_log ORDER BY id ASC`); err != nil {
		return 0, fmt.Errorf("load audit chain: %w", err)
	}
	prevHash := ""
	for i := range rows {
		e := &rows[i]
		if e.PrevHash != prevHash {
			return int64(i + 1), nil
		}
		recomputed := AuditEntryHash(e.PrevHash, e.TS, e.EventType,
			deref(e.RequestID), deref(e.Action), deref(e.Target), e.Outcome, e.DetailsJSON)
		if recomputed != e.EntryHash {
			return int64(i + 1), nil
		}
		prevHash = e.EntryHash
	}
	return 0, nil
}

// AuditEntryHash computes the chained hash over an entry's fields. detailsJSON
// must already be in canonical form.
func AuditEntryHash(prevHash, ts, eventType, requestID, action, target, outcome, detailsJSON string) string {
	source := strings.Join([]string{prevHash, ts, eventType, requestID, action, target, outcome, detailsJSON}, "|")
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
