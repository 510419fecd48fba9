package store

import (
	"encoding/json"
	"time"
)

// Request statuses. A request is created pending and transitions exactly once
// to a terminal status.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExpired  = "expired"
)

// TimeLayout is the wire format for persisted timestamps: UTC, microsecond
// precision, RFC 3339.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// NowISO formats the current UTC time for persistence.
func NowISO() string {
	return time.Now().UTC().Format(TimeLayout)
}

// ParseTime parses a persisted timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// ApprovalRequest is a persisted pending (or settled) high-risk action.
type ApprovalRequest struct {
	ID           string  `db:"id" json:"id"`
	Action       string  `db:"action" json:"action"`
	Target       string  `db:"target" json:"target"`
	MetadataJSON string  `db:"metadata_json" json:"-"`
	Risk         string  `db:"risk" json:"risk"`
	Status       string  `db:"status" json:"status"`
	Reason       string  `db:"reason" json:"reason"`
	PolicyID     string  `db:"policy_id" json:"policy_id"`
	Attempts     int     `db:"attempts" json:"attempts"`
	CreatedAt    string  `db:"created_at" json:"created_at"`
	ExpiresAt    string  `db:"expires_at" json:"expires_at"`
	ApprovedAt   *string `db:"approved_at" json:"approved_at"`

	Metadata map[string]interface{} `db:"-" json:"metadata"`
}

// Expired reports whether the request's expiry has passed at the given time.
func (r *ApprovalRequest) Expired(now time.Time) bool {
	exp, err := ParseTime(r.ExpiresAt)
	if err != nil {
		return false
	}
	return !now.Before(exp)
}

func (r *ApprovalRequest) decodeMetadata() {
	r.Metadata = map[string]interface{}{}
	if r.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(r.MetadataJSON), &r.Metadata)
	}
}

// AuditEntry is one link of the tamper-evident audit chain.
type AuditEntry struct {
	Seq         int64   `db:"id" json:"seq"`
	TS          string  `db:"ts" json:"ts"`
	EventType   string  `db:"event_type" json:"event_type"`
	RequestID   *string `db:"request_id" json:"request_id"`
	Action      *string `db:"action" json:"action"`
	Target      *string `db:"target" json:"target"`
	Outcome     string  `db:"outcome" json:"outcome"`
	DetailsJSON string  `db:"details_json" json:"-"`
	PrevHash    string  `db:"prev_hash" json:"prev_hash"`
	EntryHash   string  `db:"entry_hash" json:"entry_hash"`

	Details map[string]interface{} `db:"-" json:"details"`
}

func (e *AuditEntry) decodeDetails() {
	e.Details = map[string]interface{}{}
	if e.DetailsJSON != "" {
		_ = json.Unmarshal([]byte(e.DetailsJSON), &e.Details)
	}
}
