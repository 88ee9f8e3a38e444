package worktree

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the persistence interface for provisioned worktree records.
type Store interface {
	Create(ctx context.Context, wt *Worktree) error
	GetBySessionID(ctx context.Context, sessionID string) (*Worktree, error)
	GetByID(ctx context.Context, id string) (*Worktree, error)
	Update(ctx context.Context, wt *Worktree) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*Worktree, error)
}

// SQLiteStore implements Store on top of the engine's shared SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore wraps db and ensures the session_worktrees table exists.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("worktree schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS session_worktrees (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		repo_path TEXT NOT NULL,
		path TEXT NOT NULL,
		branch TEXT NOT NULL,
		base_branch TEXT NOT NULL,
		head TEXT NOT NULL DEFAULT '',
		bare INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		removed_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_session_worktrees_status ON session_worktrees(status);
	CREATE INDEX IF NOT EXISTS idx_session_worktrees_repo_path ON session_worktrees(repo_path);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, wt *Worktree) error {
	if wt.ID == "" {
		wt.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if wt.CreatedAt.IsZero() {
		wt.CreatedAt = now
	}
	wt.UpdatedAt = now
	if wt.Status == "" {
		wt.Status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO session_worktrees (
			id, session_id, repo_path, path, branch, base_branch, head, bare,
			status, created_at, updated_at, removed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			repo_path = excluded.repo_path,
			path = excluded.path,
			branch = excluded.branch,
			base_branch = excluded.base_branch,
			head = excluded.head,
			bare = excluded.bare,
			status = excluded.status,
			updated_at = excluded.updated_at,
			removed_at = excluded.removed_at
	`), wt.ID, wt.SessionID, wt.RepoPath, wt.Path, wt.Branch, wt.BaseBranch, wt.Head, wt.Bare,
		wt.Status, wt.CreatedAt, wt.UpdatedAt, wt.RemovedAt)
	return err
}

func scanWorktree(scan func(dest ...any) error) (*Worktree, error) {
	wt := &Worktree{}
	var bare int
	var removedAt sql.NullTime
	err := scan(&wt.ID, &wt.SessionID, &wt.RepoPath, &wt.Path, &wt.Branch, &wt.BaseBranch,
		&wt.Head, &bare, &wt.Status, &wt.CreatedAt, &wt.UpdatedAt, &removedAt)
	if err != nil {
		return nil, err
	}
	wt.Bare = bare != 0
	if removedAt.Valid {
		wt.RemovedAt = &removedAt.Time
	}
	return wt, nil
}

const selectColumns = `id, session_id, repo_path, path, branch, base_branch, head, bare, status, created_at, updated_at, removed_at`

func (s *SQLiteStore) GetBySessionID(ctx context.Context, sessionID string) (*Worktree, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+selectColumns+` FROM session_worktrees WHERE session_id = ?`), sessionID)
	wt, err := scanWorktree(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return wt, err
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Worktree, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+selectColumns+` FROM session_worktrees WHERE id = ?`), id)
	wt, err := scanWorktree(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return wt, err
}

func (s *SQLiteStore) Update(ctx context.Context, wt *Worktree) error {
	wt.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE session_worktrees SET
			repo_path = ?, path = ?, branch = ?, base_branch = ?, head = ?, bare = ?,
			status = ?, updated_at = ?, removed_at = ?
		WHERE id = ?
	`), wt.RepoPath, wt.Path, wt.Branch, wt.BaseBranch, wt.Head, wt.Bare,
		wt.Status, wt.UpdatedAt, wt.RemovedAt, wt.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrWorktreeNotFound, wt.ID)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM session_worktrees WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*Worktree, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+selectColumns+` FROM session_worktrees WHERE status = ?`), StatusActive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Worktree
	for rows.Next() {
		wt, err := scanWorktree(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, wt)
	}
	return result, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
