package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/pkg/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	scenario TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	phase TEXT NOT NULL,
	tool_calls TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_permissions (
	tool_name TEXT PRIMARY KEY,
	permission TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);
`

// SQLiteStore is the durable Store implementation, following the
// teacher's CockroachStore shape (a single *sql.DB held on the struct,
// context.Context threaded through every call; no prepared statements
// are kept — each call passes its SQL text to the *sql.DB) but
// targeting a single-process embedded SQLite file via modernc.org/sqlite
// rather than a clustered Postgres-compatible backend.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (or attaches to) a SQLite database at path, applies the
// schema, and enables foreign-key cascades so DeleteSession cascades to
// its messages (invariant I1).
func Open(path string, maxOpenConns int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "open sqlite database")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindStorage, err, "enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindStorage, err, "apply schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateSession(ctx context.Context, scenario, title string) (*models.Session, error) {
	now := models.Now()
	sess := &models.Session{
		ID:        uuid.NewString(),
		Title:     title,
		Scenario:  scenario,
		Status:    models.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, scenario, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Scenario, sess.Status, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "insert session")
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, scenario, status, created_at, updated_at FROM sessions WHERE id = ?`, id)
	sess := &models.Session{}
	err := row.Scan(&sess.ID, &sess.Title, &sess.Scenario, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.KindNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "query session")
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `SELECT id, title, scenario, status, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id DESC`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "query sessions")
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Scenario, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.KindStorage, err, "scan session")
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "iterate sessions")
	}
	return out, nil
}

func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, models.Now(), id)
	if err != nil {
		return errs.Wrap(errs.KindStorage, err, "update session title")
	}
	return mustAffectRow(res, "session", id)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.KindStorage, err, "delete session")
	}
	return mustAffectRow(res, "session", id)
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, sessionID string, role models.Role, content string, phase models.Phase, toolCallsJSON string) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "begin transaction")
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Newf(errs.KindNotFound, "session %s not found", sessionID)
		}
		return nil, errs.Wrap(errs.KindStorage, err, "check session exists")
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Phase:     phase,
		ToolCalls: toolCallsJSON,
		CreatedAt: models.Now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, phase, tool_calls, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Phase, msg.ToolCalls, msg.CreatedAt); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "insert message")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, msg.CreatedAt, sessionID); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "touch session")
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "commit message insert")
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, phase, tool_calls, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "query messages")
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Phase, &msg.ToolCalls, &msg.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.KindStorage, err, "scan message")
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "iterate messages")
	}
	return out, nil
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.Newf(errs.KindNotFound, "setting %s not found", key)
	}
	if err != nil {
		return "", errs.Wrap(errs.KindStorage, err, "query setting")
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return errs.Wrap(errs.KindStorage, err, "upsert setting")
	}
	return nil
}

func (s *SQLiteStore) GetToolPermission(ctx context.Context, toolName string) (models.Permission, error) {
	var permission string
	err := s.db.QueryRowContext(ctx, `SELECT permission FROM tool_permissions WHERE tool_name = ?`, toolName).Scan(&permission)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultPermission(toolName), nil
	}
	if err != nil {
		return "", errs.Wrap(errs.KindStorage, err, "query tool permission")
	}
	return models.Permission(permission), nil
}

func (s *SQLiteStore) SetToolPermission(ctx context.Context, toolName string, permission models.Permission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_permissions (tool_name, permission) VALUES (?, ?) ON CONFLICT(tool_name) DO UPDATE SET permission = excluded.permission`,
		toolName, string(permission))
	if err != nil {
		return errs.Wrap(errs.KindStorage, err, "upsert tool permission")
	}
	return nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, level, message, sessionID string) (*models.LogEntry, error) {
	now := models.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (level, message, session_id, created_at) VALUES (?, ?, ?, ?)`,
		level, message, sessionID, now)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "insert log")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "read log id")
	}
	return &models.LogEntry{ID: id, Level: level, Message: message, SessionID: sessionID, CreatedAt: now}, nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	query := `SELECT id, level, message, session_id, created_at FROM logs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "query logs")
	}
	defer rows.Close()

	out := []*models.LogEntry{}
	for rows.Next() {
		entry := &models.LogEntry{}
		if err := rows.Scan(&entry.ID, &entry.Level, &entry.Message, &entry.SessionID, &entry.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.KindStorage, err, "scan log")
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "iterate logs")
	}
	return out, nil
}

func mustAffectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.KindStorage, err, "read rows affected")
	}
	if n == 0 {
		return errs.Newf(errs.KindNotFound, "%s %s not found", kind, id)
	}
	return nil
}
