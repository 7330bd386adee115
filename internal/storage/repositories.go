package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// WorkspaceRepository handles workspace operations.
type WorkspaceRepository struct {
	db DB
}

// NewWorkspaceRepository creates a new workspace repository.
func NewWorkspaceRepository(db DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// Create creates a new workspace. Returns ErrConflict when the name is taken.
func (r *WorkspaceRepository) Create(ctx context.Context, ws *Workspace) error {
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	ws.CreatedAt = time.Now()

	query := `
		INSERT INTO workspaces (id, name, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.ExecContext(ctx, query, ws.ID, ws.Name, ws.CreatedAt)
	return translateError(err)
}

// GetByName retrieves a workspace by its unique name.
func (r *WorkspaceRepository) GetByName(ctx context.Context, name string) (*Workspace, error) {
	query := `SELECT id, name, created_at FROM workspaces WHERE name = $1`
	ws := &Workspace{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ws, err
}

// GetOrCreate returns the workspace with the given name, creating it on demand.
func (r *WorkspaceRepository) GetOrCreate(ctx context.Context, name string) (*Workspace, error) {
	query := `
		INSERT INTO workspaces (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at
	`
	ws := &Workspace{}
	err := r.db.QueryRowContext(ctx, query, uuid.New(), name, time.Now()).
		Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	return ws, err
}

// ProjectRepository handles project operations.
type ProjectRepository struct {
	db DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create creates a new project.
func (r *ProjectRepository) Create(ctx context.Context, p *Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO projects (id, workspace_id, project_key, display_name, repo_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.WorkspaceID, p.ProjectKey, p.DisplayName, p.RepoURL, p.Status,
		p.CreatedAt, p.UpdatedAt,
	)
	return translateError(err)
}

// GetByID retrieves a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `
		SELECT id, workspace_id, project_key, display_name, repo_url, status, created_at, updated_at
		FROM projects WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByKey retrieves a project by workspace and project key.
func (r *ProjectRepository) GetByKey(ctx context.Context, workspaceID uuid.UUID, projectKey string) (*Project, error) {
	query := `
		SELECT id, workspace_id, project_key, display_name, repo_url, status, created_at, updated_at
		FROM projects WHERE workspace_id = $1 AND project_key = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, workspaceID, projectKey))
}

// ListByWorkspace lists projects for a workspace.
func (r *ProjectRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*Project, error) {
	query := `
		SELECT id, workspace_id, project_key, display_name, repo_url, status, created_at, updated_at
		FROM projects WHERE workspace_id = $1 ORDER BY project_key
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(
			&p.ID, &p.WorkspaceID, &p.ProjectKey, &p.DisplayName, &p.RepoURL,
			&p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) scanOne(row *sql.Row) (*Project, error) {
	p := &Project{}
	err := row.Scan(
		&p.ID, &p.WorkspaceID, &p.ProjectKey, &p.DisplayName, &p.RepoURL,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// CommitRepository handles commit rows.
type CommitRepository struct {
	db DB
}

// NewCommitRepository creates a new commit repository.
func NewCommitRepository(db DB) *CommitRepository {
	return &CommitRepository{db: db}
}

// Insert inserts a commit row. Returns ErrConflict when the
// (project_id, idempotency_key) pair already exists.
func (r *CommitRepository) Insert(ctx context.Context, c *Commit) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()

	query := `
		INSERT INTO commits (id, project_id, session_id, idempotency_key, author, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.ProjectID, c.SessionID, c.IdempotencyKey, c.Author, c.Summary, c.CreatedAt,
	)
	return translateError(err)
}

// GetByKey retrieves a commit by project and idempotency key.
func (r *CommitRepository) GetByKey(ctx context.Context, projectID uuid.UUID, idempotencyKey string) (*Commit, error) {
	query := `
		SELECT id, project_id, session_id, idempotency_key, author, summary, created_at
		FROM commits WHERE project_id = $1 AND idempotency_key = $2
	`
	c := &Commit{}
	err := r.db.QueryRowContext(ctx, query, projectID, idempotencyKey).Scan(
		&c.ID, &c.ProjectID, &c.SessionID, &c.IdempotencyKey, &c.Author, &c.Summary, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// Repositories bundles all repositories over one connection or transaction.
type Repositories struct {
	Workspaces *WorkspaceRepository
	Projects   *ProjectRepository
	Commits    *CommitRepository
	Items      *ItemRepository
	Versions   *VersionRepository
	Chunks     *ChunkRepository
	Embeddings *EmbeddingRepository
	Profiles   *ProfileRepository
	Links      *LinkRepository
}

// NewRepositories creates the full repository bundle.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Workspaces: NewWorkspaceRepository(db),
		Projects:   NewProjectRepository(db),
		Commits:    NewCommitRepository(db),
		Items:      NewItemRepository(db),
		Versions:   NewVersionRepository(db),
		Chunks:     NewChunkRepository(db),
		Embeddings: NewEmbeddingRepository(db),
		Profiles:   NewProfileRepository(db),
		Links:      NewLinkRepository(db),
	}
}
