package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Schema for the sessions database.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    number INTEGER,
    summary TEXT,
    source TEXT NOT NULL,
    model TEXT NOT NULL,
    mode TEXT,
    status TEXT DEFAULT 'active',
    user_turns INTEGER DEFAULT 0,
    tool_calls INTEGER DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
    phase TEXT,
    tool TEXT,
    content TEXT NOT NULL,
    payload TEXT,
    directive BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL,
    UNIQUE (session_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_number ON sessions(number);
CREATE INDEX IF NOT EXISTS idx_entries_session_id ON entries(session_id, sequence);

-- Full-text search on entry content
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    content,
    content='entries',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
`

// NewSQLiteStore creates a new SQLite-based session store.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		var err error
		dbPath, err = GetDBPath()
		if err != nil {
			return nil, fmt.Errorf("get db path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	store := &SQLiteStore{db: db, cfg: cfg}
	if err := store.cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session cleanup failed: %v\n", err)
	}
	return store, nil
}

// schemaVersion is the current schema version. Fresh databases get the
// full schema and start here; older ones run migrations to reach it.
const schemaVersion = 1

// migration represents a schema migration.
type migration struct {
	version     int
	description string
	up          func(db *sql.DB) error
}

// migrations upgrade databases created before a schema change. The
// schema const always holds the full current schema.
var migrations = []migration{
	{
		version:     1,
		description: "add directive flag to entries",
		up: func(db *sql.DB) error {
			_, err := db.Exec("ALTER TABLE entries ADD COLUMN directive BOOLEAN DEFAULT FALSE")
			if err != nil && !isDuplicateColumnError(err) {
				return err
			}
			return nil
		},
	},
}

// initSchema initializes the schema and runs pending migrations. The
// common case of an up-to-date database costs a single SELECT.
func initSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion)
	if err == nil && currentVersion >= schemaVersion {
		return nil
	}
	return initSchemaFull(db, err, currentVersion)
}

func initSchemaFull(db *sql.DB, versionErr error, currentVersion int) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if versionErr != nil && (versionErr == sql.ErrNoRows || strings.Contains(versionErr.Error(), "no such table")) {
		// Databases written before the directive flag existed start at 0.
		var hasDirective int
		err = db.QueryRow(`
			SELECT COUNT(*) FROM pragma_table_info('entries')
			WHERE name='directive'
		`).Scan(&hasDirective)
		if err != nil {
			return fmt.Errorf("check entries columns: %w", err)
		}
		currentVersion = schemaVersion
		if hasDirective == 0 {
			currentVersion = 0
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentVersion); err != nil {
			return fmt.Errorf("insert initial version: %w", err)
		}
	} else if versionErr != nil {
		return fmt.Errorf("get current version: %w", versionErr)
	}

	for _, m := range migrations {
		if m.version > currentVersion {
			if err := m.up(db); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
			if _, err := db.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
				return fmt.Errorf("update version to %d: %w", m.version, err)
			}
		}
	}
	return nil
}

// isDuplicateColumnError checks if an error is due to a column already existing.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") ||
		strings.Contains(errStr, "already exists")
}

// cleanup removes old sessions based on configuration.
func (s *SQLiteStore) cleanup() error {
	ctx := context.Background()

	if s.cfg.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.MaxAgeDays)
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff); err != nil {
			return fmt.Errorf("delete old sessions: %w", err)
		}
	}

	if s.cfg.MaxCount > 0 {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM sessions WHERE id IN (
				SELECT id FROM sessions
				ORDER BY updated_at DESC
				LIMIT -1 OFFSET ?
			)`, s.cfg.MaxCount)
		if err != nil {
			return fmt.Errorf("enforce max count: %w", err)
		}
	}
	return nil
}

// Create inserts a new session and assigns its sequential number.
func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if sess.Status == "" {
		sess.Status = StatusActive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxNumber sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(number) FROM sessions").Scan(&maxNumber); err != nil {
		return fmt.Errorf("get max number: %w", err)
	}
	sess.Number = maxNumber.Int64 + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, number, summary, source, model, mode, status, user_turns, tool_calls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Number, nullString(sess.Summary), sess.Source, sess.Model, nullString(string(sess.Mode)),
		string(sess.Status), sess.UserTurns, sess.ToolCalls, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const sessionColumns = `id, number, summary, source, model, mode, status, user_turns, tool_calls, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var number sql.NullInt64
	var summary, mode, status sql.NullString
	err := row.Scan(&sess.ID, &number, &summary, &sess.Source, &sess.Model, &mode, &status,
		&sess.UserTurns, &sess.ToolCalls, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.Number = number.Int64
	sess.Summary = summary.String
	sess.Mode = SessionMode(mode.String)
	sess.Status = SessionStatus(status.String)
	return &sess, nil
}

// Get retrieves a session by ID. Returns nil, nil when it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// Resolve finds a session by sequential number (optionally prefixed
// with '#'), full ID or unique ID prefix.
func (s *SQLiteStore) Resolve(ctx context.Context, ref string) (*Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(strings.TrimPrefix(ref, "#"), 10, 64); err == nil {
		row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE number = ?", n)
		sess, err := scanSession(row)
		if err == nil {
			return sess, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("scan session: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id LIKE ? LIMIT 2", strings.ToUpper(ref)+"%")
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var found []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		found = append(found, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("ambiguous session reference: %s", ref)
}

// Delete removes a session and its entries.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	// Foreign key cascade handles entries
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// List returns sessions matching the options, most recent first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	query := `
		SELECT s.id, s.number, s.summary, s.source, s.model, s.mode, s.status,
		       (SELECT COUNT(*) FROM entries WHERE session_id = s.id) as entry_count,
		       s.user_turns, s.tool_calls, s.created_at, s.updated_at
		FROM sessions s
		WHERE 1=1`
	args := []any{}

	if opts.Mode != "" {
		query += " AND s.mode = ?"
		args = append(args, string(opts.Mode))
	}
	if opts.Status != "" {
		query += " AND s.status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY s.updated_at DESC, s.number DESC"

	limit := opts.Limit
	if limit == 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var number sql.NullInt64
		var summary, mode, status sql.NullString
		err := rows.Scan(&sum.ID, &number, &summary, &sum.Source, &sum.Model, &mode, &status,
			&sum.EntryCount, &sum.UserTurns, &sum.ToolCalls, &sum.CreatedAt, &sum.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.Number = number.Int64
		sum.Summary = summary.String
		sum.Mode = SessionMode(mode.String)
		sum.Status = SessionStatus(status.String)
		results = append(results, sum)
	}
	return results, rows.Err()
}

// Search finds entries containing the query text using FTS5.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit == 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.session_id, s.number, e.id, s.summary, snippet(entries_fts, 0, '**', '**', '...', 32),
		       s.model, e.created_at
		FROM entries_fts f
		JOIN entries e ON e.id = f.rowid
		JOIN sessions s ON s.id = e.session_id
		WHERE entries_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var number sql.NullInt64
		var summary sql.NullString
		err := rows.Scan(&r.SessionID, &number, &r.EntryID, &summary, &r.Snippet, &r.Model, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.SessionNumber = number.Int64
		r.Summary = summary.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// AddEntry appends an entry to a session. The sequence number is
// allocated inside the transaction. The first user entry becomes the
// session summary.
func (s *SQLiteStore) AddEntry(ctx context.Context, sessionID string, e *Entry) error {
	e.SessionID = sessionID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	err = tx.QueryRowContext(ctx, "SELECT MAX(sequence) FROM entries WHERE session_id = ?", sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("get max sequence: %w", err)
	}
	e.Sequence = 0
	if maxSeq.Valid {
		e.Sequence = int(maxSeq.Int64) + 1
	}

	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO entries (session_id, role, phase, tool, content, payload, directive, created_at, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, e.Role, nullString(e.Phase), nullString(e.Tool), e.Content, payload, e.Directive, e.CreatedAt, e.Sequence)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	e.ID, _ = result.LastInsertId()

	if e.Role == "user" && !e.Directive {
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET summary = COALESCE(summary, ?), updated_at = ? WHERE id = ?`,
			TruncateSummary(e.Content), time.Now(), sessionID)
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), sessionID)
	}
	if err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetEntries retrieves entries for a session in append order.
func (s *SQLiteStore) GetEntries(ctx context.Context, sessionID string, limit, offset int) ([]Entry, error) {
	query := `
		SELECT id, session_id, role, phase, tool, content, payload, directive, created_at, sequence
		FROM entries
		WHERE session_id = ?
		ORDER BY sequence ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var phase, tool, payload sql.NullString
		err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &phase, &tool, &e.Content, &payload,
			&e.Directive, &e.CreatedAt, &e.Sequence)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Phase = phase.String
		e.Tool = tool.String
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateStatus updates just the session status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status SessionStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ?
		WHERE id = ?`,
		string(status), time.Now(), id)
	return err
}

// IncrementUserTurns increments the user turn count.
func (s *SQLiteStore) IncrementUserTurns(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET user_turns = user_turns + 1, updated_at = ?
		WHERE id = ?`,
		time.Now(), id)
	return err
}

// IncrementToolCalls increments the dispatched tool call count.
func (s *SQLiteStore) IncrementToolCalls(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET tool_calls = tool_calls + 1, updated_at = ?
		WHERE id = ?`,
		time.Now(), id)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
