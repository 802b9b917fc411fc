package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS unsynced_sessions (
	session_id   TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT '',
	queued_at    INTEGER NOT NULL,
	next_attempt INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS unsynced_sessions_queued ON unsynced_sessions (queued_at);
CREATE TABLE IF NOT EXISTS session_drafts (
	owner_id TEXT PRIMARY KEY,
	payload  TEXT NOT NULL,
	carry_ns INTEGER NOT NULL DEFAULT 0,
	saved_at INTEGER NOT NULL
);
`

// SQLite is a Store backed by a local SQLite file.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) the outbox database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("outbox path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create outbox schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(&entry); err != nil {
		return err
	}
	payload, err := json.Marshal(entry.Session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	var next int64
	if !entry.NextAttempt.IsZero() {
		next = entry.NextAttempt.UTC().UnixMilli()
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO unsynced_sessions (session_id, payload, attempts, last_error, queued_at, next_attempt)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	payload = excluded.payload,
	attempts = excluded.attempts,
	last_error = excluded.last_error,
	next_attempt = excluded.next_attempt
`,
		entry.Session.ID,
		string(payload),
		entry.Attempts,
		entry.LastError,
		entry.QueuedAt.UTC().UnixMilli(),
		next,
	)
	if err != nil {
		return fmt.Errorf("put unsynced session: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT payload, attempts, last_error, queued_at, next_attempt
FROM unsynced_sessions
ORDER BY queued_at ASC, session_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list unsynced sessions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e              Entry
			payload        string
			queuedAt, next int64
		)
		if err := rows.Scan(&payload, &e.Attempts, &e.LastError, &queuedAt, &next); err != nil {
			return nil, fmt.Errorf("scan unsynced session: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Session); err != nil {
			return nil, fmt.Errorf("decode unsynced session: %w", err)
		}
		e.QueuedAt = time.UnixMilli(queuedAt).UTC()
		if next > 0 {
			e.NextAttempt = time.UnixMilli(next).UTC()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsynced sessions: %w", err)
	}
	return entries, nil
}

func (s *SQLite) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM unsynced_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete unsynced session: %w", err)
	}
	return nil
}

func (s *SQLite) SaveDraft(ctx context.Context, draft Draft) error {
	if err := validateDraft(&draft); err != nil {
		return err
	}
	payload, err := json.Marshal(draft.Session)
	if err != nil {
		return fmt.Errorf("encode session draft: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO session_drafts (owner_id, payload, carry_ns, saved_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(owner_id) DO UPDATE SET
	payload = excluded.payload,
	carry_ns = excluded.carry_ns,
	saved_at = excluded.saved_at
`,
		draft.Session.OwnerID,
		string(payload),
		int64(draft.Carry),
		draft.SavedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session draft: %w", err)
	}
	return nil
}

func (s *SQLite) LoadDraft(ctx context.Context, ownerID string) (*Draft, error) {
	var (
		d       Draft
		payload string
		carry   int64
		savedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT payload, carry_ns, saved_at FROM session_drafts WHERE owner_id = ?
`, ownerID).Scan(&payload, &carry, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session draft: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &d.Session); err != nil {
		return nil, fmt.Errorf("decode session draft: %w", err)
	}
	d.Carry = time.Duration(carry)
	d.SavedAt = time.UnixMilli(savedAt).UTC()
	return &d, nil
}

func (s *SQLite) ClearDraft(ctx context.Context, ownerID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_drafts WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear session draft: %w", err)
	}
	return nil
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)
