package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"decoyftp/internal/database/migrations"
	"decoyftp/internal/enrich"
	"decoyftp/internal/model"
	"decoyftp/internal/recorder"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

//go:embed migrations/files/000001_init.up.sql
var schemaInit string

//go:embed migrations/files/000002_artifact_scan.up.sql
var schemaArtifactScan string

// Schema is the full telemetry schema, exported for tests that want an
// in-memory database without running migrations.
var Schema = schemaInit + "\n" + schemaArtifactScan

// SQLiteStore implements the recorder.Store interface plus the read queries
// the report and export commands need.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens a SQLite telemetry store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the recorder needs. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The single recorder consumer writes while report/export commands may
	// read; WAL plus a busy timeout keeps both sides off each other's toes.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Recorder store operations

func (s *SQLiteStore) InsertSession(rec model.SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, remote_addr, start_time) VALUES (?, ?, ?)`,
		rec.ID, rec.RemoteAddr, rec.StartTime,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CloseSession(sessionID string, end time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET end_time = ? WHERE id = ? AND end_time IS NULL`,
		end, sessionID,
	)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertCommandEvents(events []model.CommandEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO command_events (session_id, ts, verb, argument, result_code, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		hash := sql.NullString{String: ev.ContentHash, Valid: ev.ContentHash != ""}
		if _, err := stmt.Exec(ev.SessionID, ev.Timestamp, ev.Verb, ev.Argument, ev.ResultCode, hash); err != nil {
			return fmt.Errorf("inserting command event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertCredentialAttempts(attempts []model.CredentialAttempt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO credential_attempts (session_id, ts, username, password, accepted)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, att := range attempts {
		if _, err := stmt.Exec(att.SessionID, att.Timestamp, att.Username, att.Password, att.Accepted); err != nil {
			return fmt.Errorf("inserting credential attempt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UpsertArtifact inserts a new artifact or, on hash conflict, bumps the
// occurrence count and last-seen while leaving hash and size untouched.
func (s *SQLiteStore) UpsertArtifact(art model.Artifact) error {
	_, err := s.db.Exec(
		`INSERT INTO artifacts (hash, size, first_seen, last_seen, occurrence_count)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(hash) DO UPDATE SET
		   occurrence_count = occurrence_count + 1,
		   last_seen = excluded.last_seen`,
		art.Hash, art.Size, art.FirstSeen, art.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("upserting artifact: %w", err)
	}
	return nil
}

// Read queries

// FindArtifactByHash returns an artifact or nil if not found.
func (s *SQLiteStore) FindArtifactByHash(hash string) (*model.Artifact, error) {
	row := s.db.QueryRow(
		`SELECT hash, size, first_seen, last_seen, occurrence_count, scan_result
		 FROM artifacts WHERE hash = ?`,
		hash,
	)
	var art model.Artifact
	var scan sql.NullString
	err := row.Scan(&art.Hash, &art.Size, &art.FirstSeen, &art.LastSeen, &art.OccurrenceCount, &scan)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding artifact by hash: %w", err)
	}
	art.ScanResult = scan.String
	return &art, nil
}

// ArtifactsWithoutScanResult returns artifacts not yet enriched, oldest
// first, up to limit.
func (s *SQLiteStore) ArtifactsWithoutScanResult(limit int) ([]model.Artifact, error) {
	rows, err := s.db.Query(
		`SELECT hash, size, first_seen, last_seen, occurrence_count
		 FROM artifacts WHERE scan_result IS NULL ORDER BY first_seen LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unscanned artifacts: %w", err)
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var art model.Artifact
		if err := rows.Scan(&art.Hash, &art.Size, &art.FirstSeen, &art.LastSeen, &art.OccurrenceCount); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out = append(out, art)
	}
	return out, rows.Err()
}

// SetArtifactScanResult records the hash-lookup outcome for an artifact.
func (s *SQLiteStore) SetArtifactScanResult(hash, result string) error {
	_, err := s.db.Exec(`UPDATE artifacts SET scan_result = ? WHERE hash = ?`, result, hash)
	if err != nil {
		return fmt.Errorf("setting artifact scan result: %w", err)
	}
	return nil
}

// FindSessionByID returns a session record or nil if not found.
func (s *SQLiteStore) FindSessionByID(id string) (*model.SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, remote_addr, start_time, end_time FROM sessions WHERE id = ?`, id,
	)
	var rec model.SessionRecord
	var end sql.NullTime
	err := row.Scan(&rec.ID, &rec.RemoteAddr, &rec.StartTime, &end)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding session by id: %w", err)
	}
	if end.Valid {
		rec.EndTime = &end.Time
	}
	return &rec, nil
}

// FindCommandEventsBySession returns a session's events in recorded order.
func (s *SQLiteStore) FindCommandEventsBySession(sessionID string) ([]model.CommandEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, ts, verb, argument, result_code, content_hash
		 FROM command_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding command events: %w", err)
	}
	defer rows.Close()

	var events []model.CommandEvent
	for rows.Next() {
		var ev model.CommandEvent
		var hash sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp, &ev.Verb, &ev.Argument, &ev.ResultCode, &hash); err != nil {
			return nil, fmt.Errorf("scanning command event: %w", err)
		}
		ev.ContentHash = hash.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FindCredentialAttemptsBySession returns a session's credential attempts in
// recorded order.
func (s *SQLiteStore) FindCredentialAttemptsBySession(sessionID string) ([]model.CredentialAttempt, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, ts, username, password, accepted
		 FROM credential_attempts WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding credential attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.CredentialAttempt
	for rows.Next() {
		var att model.CredentialAttempt
		if err := rows.Scan(&att.ID, &att.SessionID, &att.Timestamp, &att.Username, &att.Password, &att.Accepted); err != nil {
			return nil, fmt.Errorf("scanning credential attempt: %w", err)
		}
		attempts = append(attempts, att)
	}
	return attempts, rows.Err()
}

// CredentialCount aggregates how often a username/password pair was tried.
type CredentialCount struct {
	Username string
	Password string
	Attempts int64
	Accepted int64
}

// TopCredentials returns the most-tried credential pairs.
func (s *SQLiteStore) TopCredentials(limit int) ([]CredentialCount, error) {
	rows, err := s.db.Query(
		`SELECT username, password, COUNT(*) AS n, SUM(accepted) AS acc
		 FROM credential_attempts GROUP BY username, password
		 ORDER BY n DESC, username LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top credentials: %w", err)
	}
	defer rows.Close()

	var out []CredentialCount
	for rows.Next() {
		var c CredentialCount
		if err := rows.Scan(&c.Username, &c.Password, &c.Attempts, &c.Accepted); err != nil {
			return nil, fmt.Errorf("scanning credential count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentSessions returns the most recently started sessions.
func (s *SQLiteStore) RecentSessions(limit int) ([]model.SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, remote_addr, start_time, end_time
		 FROM sessions ORDER BY start_time DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent sessions: %w", err)
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		var end sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.RemoteAddr, &rec.StartTime, &end); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if end.Valid {
			rec.EndTime = &end.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionsSince returns all sessions started at or after since, oldest
// first.
func (s *SQLiteStore) SessionsSince(since time.Time) ([]model.SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, remote_addr, start_time, end_time
		 FROM sessions WHERE start_time >= ? ORDER BY start_time`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		var end sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.RemoteAddr, &rec.StartTime, &end); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if end.Valid {
			rec.EndTime = &end.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ArtifactsSince returns all artifacts last seen at or after since.
func (s *SQLiteStore) ArtifactsSince(since time.Time) ([]model.Artifact, error) {
	rows, err := s.db.Query(
		`SELECT hash, size, first_seen, last_seen, occurrence_count, scan_result
		 FROM artifacts WHERE last_seen >= ? ORDER BY first_seen`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// TopArtifacts returns the most re-uploaded artifacts.
func (s *SQLiteStore) TopArtifacts(limit int) ([]model.Artifact, error) {
	rows, err := s.db.Query(
		`SELECT hash, size, first_seen, last_seen, occurrence_count, scan_result
		 FROM artifacts ORDER BY occurrence_count DESC, last_seen DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top artifacts: %w", err)
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func scanArtifacts(rows *sql.Rows) ([]model.Artifact, error) {
	var out []model.Artifact
	for rows.Next() {
		var art model.Artifact
		var scan sql.NullString
		if err := rows.Scan(&art.Hash, &art.Size, &art.FirstSeen, &art.LastSeen, &art.OccurrenceCount, &scan); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		art.ScanResult = scan.String
		out = append(out, art)
	}
	return out, rows.Err()
}

// CommandEventsSince returns all events at or after since, oldest first.
// The export command uses this to build telemetry bundles.
func (s *SQLiteStore) CommandEventsSince(since time.Time) ([]model.CommandEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, ts, verb, argument, result_code, content_hash
		 FROM command_events WHERE ts >= ? ORDER BY id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command events: %w", err)
	}
	defer rows.Close()

	var events []model.CommandEvent
	for rows.Next() {
		var ev model.CommandEvent
		var hash sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp, &ev.Verb, &ev.Argument, &ev.ResultCode, &hash); err != nil {
			return nil, fmt.Errorf("scanning command event: %w", err)
		}
		ev.ContentHash = hash.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CredentialAttemptsSince returns all attempts at or after since, oldest
// first.
func (s *SQLiteStore) CredentialAttemptsSince(since time.Time) ([]model.CredentialAttempt, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, ts, username, password, accepted
		 FROM credential_attempts WHERE ts >= ? ORDER BY id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying credential attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.CredentialAttempt
	for rows.Next() {
		var att model.CredentialAttempt
		if err := rows.Scan(&att.ID, &att.SessionID, &att.Timestamp, &att.Username, &att.Password, &att.Accepted); err != nil {
			return nil, fmt.Errorf("scanning credential attempt: %w", err)
		}
		attempts = append(attempts, att)
	}
	return attempts, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

// CheckMigrations verifies the schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements the recorder.Store interface
var _ recorder.Store = (*SQLiteStore)(nil)
var _ enrich.Store = (*SQLiteStore)(nil)
