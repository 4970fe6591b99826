// Package sqlite implements the document-store substrate behind the RPC
// handlers: todos, their change-log versions, comments, users, sessions, and
// doctype metadata.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/workz/internal/app"
	"github.com/hylla/workz/internal/auth"
	"github.com/hylla/workz/internal/domain"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Repository is the sqlite-backed store for every persisted record type.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, creating parent directories and the
// schema as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens an in-memory database, used by tests.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			allocated_to TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL,
			reference_type TEXT NOT NULL DEFAULT '',
			reference_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			modified_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS versions (
			id TEXT PRIMARY KEY,
			ref_doctype TEXT NOT NULL,
			ref_name TEXT NOT NULL,
			owner TEXT NOT NULL,
			data_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			ref_doctype TEXT NOT NULL,
			ref_name TEXT NOT NULL,
			content TEXT NOT NULL,
			owner TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			roles_json TEXT NOT NULL DEFAULT '[]',
			password_hash TEXT NOT NULL DEFAULT '',
			password_salt TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			sid TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			csrf_token TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS doctypes (
			name TEXT PRIMARY KEY,
			title_field TEXT NOT NULL DEFAULT '',
			read_roles_json TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			doctype TEXT NOT NULL,
			name TEXT NOT NULL,
			fields_json TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY(doctype, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_versions_ref ON versions(ref_doctype, ref_name);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_ref ON comments(ref_doctype, ref_name);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_owner ON todos(owner);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_allocated ON todos(allocated_to);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// TodoByID fetches one todo record.
func (r *Repository) TodoByID(ctx context.Context, id string) (domain.Todo, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, description, status, priority, allocated_to, owner, reference_type, reference_name, created_at, modified_at
		FROM todos
		WHERE id = ?
	`, id)
	return scanTodo(row)
}

// CreateTodo inserts the todo and its creation version in one transaction.
func (r *Repository) CreateTodo(ctx context.Context, todo domain.Todo, version domain.Version) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create todo: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO todos(id, description, status, priority, allocated_to, owner, reference_type, reference_name, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		todo.ID,
		todo.Description,
		string(todo.Status),
		string(todo.Priority),
		todo.AllocatedTo,
		todo.Owner,
		todo.ReferenceType,
		todo.ReferenceName,
		ts(todo.CreatedAt),
		ts(todo.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	if err := insertVersion(ctx, tx, version); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateTodo stores the todo and, when given, its change-log version in one
// transaction.
func (r *Repository) UpdateTodo(ctx context.Context, todo domain.Todo, version *domain.Version) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update todo: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE todos
		SET description = ?, status = ?, priority = ?, allocated_to = ?, reference_type = ?, reference_name = ?, modified_at = ?
		WHERE id = ?
	`,
		todo.Description,
		string(todo.Status),
		string(todo.Priority),
		todo.AllocatedTo,
		todo.ReferenceType,
		todo.ReferenceName,
		ts(todo.ModifiedAt),
		todo.ID,
	)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update todo rows: %w", err)
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	if version != nil {
		if err := insertVersion(ctx, tx, *version); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListTodosOwnedBy lists todos owned by a user, newest-modified first.
func (r *Repository) ListTodosOwnedBy(ctx context.Context, user string, limit int) ([]domain.Todo, error) {
	return r.listTodos(ctx, `
		SELECT id, description, status, priority, allocated_to, owner, reference_type, reference_name, created_at, modified_at
		FROM todos
		WHERE owner = ? AND reference_type != ?
		ORDER BY modified_at DESC, id DESC
		LIMIT ?
	`, user, domain.DoctypeToDo, clampLimit(limit))
}

// ListTodosAssignedTo lists todos assigned to a user, newest-modified first.
func (r *Repository) ListTodosAssignedTo(ctx context.Context, user string, limit int) ([]domain.Todo, error) {
	return r.listTodos(ctx, `
		SELECT id, description, status, priority, allocated_to, owner, reference_type, reference_name, created_at, modified_at
		FROM todos
		WHERE allocated_to = ? AND reference_type != ?
		ORDER BY modified_at DESC, id DESC
		LIMIT ?
	`, user, domain.DoctypeToDo, clampLimit(limit))
}

// listTodosForUserFallback is the raw statement used when the query builder
// cannot produce the combined owner-or-assignee listing.
const listTodosForUserFallback = `
	SELECT id, description, status, priority, allocated_to, owner, reference_type, reference_name, created_at, modified_at
	FROM todos
	WHERE (owner = ? OR allocated_to = ?) AND reference_type != ?
	ORDER BY modified_at DESC, id DESC
	LIMIT ?
`

// ListTodosForUser lists todos owned by or assigned to a user through the
// query-builder path, dropping to the raw statement when the builder fails.
func (r *Repository) ListTodosForUser(ctx context.Context, user string, limit int) ([]domain.Todo, error) {
	limit = clampLimit(limit)
	query, args, err := newSelectBuilder("todos").
		Columns("id", "description", "status", "priority", "allocated_to", "owner", "reference_type", "reference_name", "created_at", "modified_at").
		Where("(owner = ? OR allocated_to = ?)", user, user).
		Where("reference_type != ?", domain.DoctypeToDo).
		OrderBy("modified_at DESC, id DESC").
		Limit(limit).
		Build()
	if err != nil {
		return r.listTodos(ctx, listTodosForUserFallback, user, user, domain.DoctypeToDo, limit)
	}
	todos, err := r.listTodos(ctx, query, args...)
	if err != nil {
		return r.listTodos(ctx, listTodosForUserFallback, user, user, domain.DoctypeToDo, limit)
	}
	return todos, nil
}

// listTodos runs one todo query and scans the rows.
func (r *Repository) listTodos(ctx context.Context, query string, args ...any) ([]domain.Todo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Todo, 0)
	for rows.Next() {
		todo, scanErr := scanTodo(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, todo)
	}
	return out, rows.Err()
}

// ListVersions lists change-log records for a referenced document, newest
// first with id as the tiebreaker.
func (r *Repository) ListVersions(ctx context.Context, refDoctype, refName string) ([]domain.Version, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ref_doctype, ref_name, owner, data_json, created_at
		FROM versions
		WHERE ref_doctype = ? AND ref_name = ?
		ORDER BY created_at DESC, id DESC
	`, refDoctype, refName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Version, 0)
	for rows.Next() {
		var (
			version    domain.Version
			dataRaw    string
			createdRaw string
		)
		if err := rows.Scan(&version.ID, &version.RefDoctype, &version.RefName, &version.Owner, &dataRaw, &createdRaw); err != nil {
			return nil, err
		}
		version.Data = json.RawMessage(dataRaw)
		version.CreatedAt = parseTS(createdRaw)
		out = append(out, version)
	}
	return out, rows.Err()
}

// ListComments lists comments for a referenced document, newest first.
func (r *Repository) ListComments(ctx context.Context, refDoctype, refName string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ref_doctype, ref_name, content, owner, created_at
		FROM comments
		WHERE ref_doctype = ? AND ref_name = ?
		ORDER BY created_at DESC, id DESC
	`, refDoctype, refName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		comment, scanErr := scanComment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

// CreateComment inserts one comment record.
func (r *Repository) CreateComment(ctx context.Context, comment domain.Comment) error {
	if strings.TrimSpace(comment.ID) == "" {
		return domain.ErrInvalidID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments(id, ref_doctype, ref_name, content, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		comment.ID,
		comment.RefDoctype,
		comment.RefName,
		comment.Content,
		comment.Owner,
		ts(comment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// DoctypeTitleField returns the configured title field for a doctype. An
// empty string means the doctype has no title field; unknown doctypes are
// reported as not found.
func (r *Repository) DoctypeTitleField(ctx context.Context, doctype string) (string, error) {
	var titleField string
	err := r.db.QueryRowContext(ctx, `SELECT title_field FROM doctypes WHERE name = ?`, doctype).Scan(&titleField)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("doctype %q: %w", doctype, app.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(titleField), nil
}

// DoctypeReadRoles returns the roles allowed to read a doctype. An empty
// slice means the doctype is readable by any authenticated user.
func (r *Repository) DoctypeReadRoles(ctx context.Context, doctype string) ([]string, error) {
	var rolesRaw string
	err := r.db.QueryRowContext(ctx, `SELECT read_roles_json FROM doctypes WHERE name = ?`, doctype).Scan(&rolesRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeStringList(rolesRaw, "doctypes.read_roles_json")
}

// PutDoctype upserts doctype metadata.
func (r *Repository) PutDoctype(ctx context.Context, name, titleField string, readRoles []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrInvalidDoctype
	}
	rolesJSON, err := json.Marshal(normalizeList(readRoles))
	if err != nil {
		return fmt.Errorf("encode read roles: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO doctypes(name, title_field, read_roles_json)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET title_field = excluded.title_field, read_roles_json = excluded.read_roles_json
	`, name, strings.TrimSpace(titleField), string(rolesJSON))
	if err != nil {
		return fmt.Errorf("upsert doctype: %w", err)
	}
	return nil
}

// PutDocument upserts one generic document's field values.
func (r *Repository) PutDocument(ctx context.Context, doctype, name string, fields map[string]string) error {
	doctype = strings.TrimSpace(doctype)
	name = strings.TrimSpace(name)
	if doctype == "" {
		return domain.ErrInvalidDoctype
	}
	if name == "" {
		return domain.ErrInvalidID
	}
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents(doctype, name, fields_json)
		VALUES (?, ?, ?)
		ON CONFLICT(doctype, name) DO UPDATE SET fields_json = excluded.fields_json
	`, doctype, name, string(fieldsJSON))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// DocTitles batch-fetches the title-field value for the named documents.
// Names without a stored document are absent from the result.
func (r *Repository) DocTitles(ctx context.Context, doctype, titleField string, names []string) (map[string]string, error) {
	out := map[string]string{}
	if len(names) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?, ", len(names))
	placeholders = strings.TrimSuffix(placeholders, ", ")
	args := make([]any, 0, len(names)+1)
	args = append(args, doctype)
	for _, name := range names {
		args = append(args, name)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, fields_json
		FROM documents
		WHERE doctype = ? AND name IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, fieldsRaw string
		if err := rows.Scan(&name, &fieldsRaw); err != nil {
			return nil, err
		}
		fields := map[string]any{}
		if strings.TrimSpace(fieldsRaw) == "" {
			fieldsRaw = "{}"
		}
		if err := json.Unmarshal([]byte(fieldsRaw), &fields); err != nil {
			return nil, fmt.Errorf("decode documents.fields_json: %w", err)
		}
		if value, ok := fields[titleField]; ok && value != nil {
			out[name] = fmt.Sprint(value)
		} else {
			out[name] = ""
		}
	}
	return out, rows.Err()
}

// UserByID fetches one user record.
func (r *Repository) UserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, roles_json, password_hash, password_salt, created_at
		FROM users
		WHERE id = ?
	`, id)

	var (
		user       domain.User
		rolesRaw   string
		createdRaw string
	)
	err := row.Scan(&user.ID, &user.FullName, &rolesRaw, &user.PasswordHash, &user.PasswordSalt, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %q: %w", id, app.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	user.Roles, err = decodeStringList(rolesRaw, "users.roles_json")
	if err != nil {
		return domain.User{}, err
	}
	user.CreatedAt = parseTS(createdRaw)
	return user, nil
}

// CreateUser inserts one user record.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return domain.ErrInvalidID
	}
	rolesJSON, err := json.Marshal(normalizeList(user.Roles))
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users(id, full_name, roles_json, password_hash, password_salt, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		user.FullName,
		string(rolesJSON),
		user.PasswordHash,
		user.PasswordSalt,
		ts(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateSession inserts one session record.
func (r *Repository) CreateSession(ctx context.Context, session auth.Session) error {
	if strings.TrimSpace(session.SID) == "" {
		return domain.ErrInvalidID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions(sid, user_id, csrf_token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.SID,
		session.UserID,
		session.CSRFToken,
		ts(session.CreatedAt),
		ts(session.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionBySID fetches one session record.
func (r *Repository) SessionBySID(ctx context.Context, sid string) (auth.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT sid, user_id, csrf_token, created_at, expires_at
		FROM sessions
		WHERE sid = ?
	`, sid)

	var (
		session    auth.Session
		createdRaw string
		expiresRaw string
	)
	err := row.Scan(&session.SID, &session.UserID, &session.CSRFToken, &createdRaw, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	if err != nil {
		return auth.Session{}, err
	}
	session.CreatedAt = parseTS(createdRaw)
	session.ExpiresAt = parseTS(expiresRaw)
	return session, nil
}

// SetSessionCSRFToken stores a freshly minted CSRF token on the session.
func (r *Repository) SetSessionCSRFToken(ctx context.Context, sid, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET csrf_token = ? WHERE sid = ?`, token, sid)
	if err != nil {
		return fmt.Errorf("update session csrf: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session csrf rows: %w", err)
	}
	if affected == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes one session record.
func (r *Repository) DeleteSession(ctx context.Context, sid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE sid = ?`, sid)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows: %w", err)
	}
	if affected == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// execerContext abstracts *sql.DB and *sql.Tx for shared inserts.
type execerContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertVersion inserts one change-log record.
func insertVersion(ctx context.Context, execer execerContext, version domain.Version) error {
	data := string(version.Data)
	if strings.TrimSpace(data) == "" {
		data = "{}"
	}
	_, err := execer.ExecContext(ctx, `
		INSERT INTO versions(id, ref_doctype, ref_name, owner, data_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		version.ID,
		version.RefDoctype,
		version.RefName,
		version.Owner,
		data,
		ts(version.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(s scanner) (domain.Todo, error) {
	var (
		todo        domain.Todo
		statusRaw   string
		priorityRaw string
		createdRaw  string
		modifiedRaw string
	)
	if err := s.Scan(
		&todo.ID,
		&todo.Description,
		&statusRaw,
		&priorityRaw,
		&todo.AllocatedTo,
		&todo.Owner,
		&todo.ReferenceType,
		&todo.ReferenceName,
		&createdRaw,
		&modifiedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Todo{}, app.ErrNotFound
		}
		return domain.Todo{}, err
	}
	todo.Status = domain.Status(statusRaw)
	todo.Priority = domain.Priority(priorityRaw)
	todo.CreatedAt = parseTS(createdRaw)
	todo.ModifiedAt = parseTS(modifiedRaw)
	return todo, nil
}

func scanComment(s scanner) (domain.Comment, error) {
	var (
		comment    domain.Comment
		createdRaw string
	)
	if err := s.Scan(
		&comment.ID,
		&comment.RefDoctype,
		&comment.RefName,
		&comment.Content,
		&comment.Owner,
		&createdRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Comment{}, app.ErrNotFound
		}
		return domain.Comment{}, err
	}
	comment.CreatedAt = parseTS(createdRaw)
	return comment, nil
}

// decodeStringList decodes one stored JSON string array column.
func decodeStringList(raw, column string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", column, err)
	}
	return out, nil
}

// normalizeList trims entries and drops blanks.
func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}

// clampLimit applies the default fetch limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a stored timestamp, tolerating legacy second precision.
func parseTS(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
