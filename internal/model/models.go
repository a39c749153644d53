package model

import "time"

// SessionRecord describes the lifetime of one attacker connection.
// EndTime is nil while the session is still open.
type SessionRecord struct {
	ID         string // UUID
	RemoteAddr string
	StartTime  time.Time
	EndTime    *time.Time
}

// CommandEvent is one observed attacker command. Immutable once created;
// ordering is monotonic per session.
type CommandEvent struct {
	ID          int64  // assigned by the store
	SessionID   string
	Timestamp   time.Time
	Verb        string // FTP verb, e.g. "LIST", "STOR"
	Argument    string
	ResultCode  string // "ok", "not_found", "permission_denied", "generic"
	ContentHash string // SHA-256 hex for STOR, empty otherwise
}

// CredentialAttempt is one USER/PASS exchange. Recorded regardless of
// whether the policy accepted it.
type CredentialAttempt struct {
	ID        int64 // assigned by the store
	SessionID string
	Timestamp time.Time
	Username  string
	Password  string
	Accepted  bool
}

// Artifact is a deduplicated uploaded payload, keyed by content hash.
// Hash and Size are immutable after first insert; re-uploads bump
// OccurrenceCount and LastSeen.
type Artifact struct {
	Hash            string // SHA-256 hex, primary key
	Size            int64
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int64
	// ScanResult holds the hash-lookup outcome from an external scanner,
	// empty until the artifact has been enriched.
	ScanResult string `json:",omitempty"`
}
