package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const itemColumns = `id, project_id, scope, kind, canonical_key, doc_class, title,
	pinned, status, tags, metadata, created_at, updated_at`

// ItemRepository handles memory item operations. Every query is
// project-scoped.
type ItemRepository struct {
	db DB
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Insert inserts a new item.
func (r *ItemRepository) Insert(ctx context.Context, item *MemoryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Scope == "" {
		item.Scope = ScopeProject
	}
	if item.Status == "" {
		item.Status = ItemStatusActive
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if len(item.Metadata) == 0 {
		item.Metadata = []byte(`{}`)
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt

	query := `
		INSERT INTO memory_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.ProjectID, item.Scope, item.Kind, item.CanonicalKey,
		item.DocClass, item.Title, item.Pinned, item.Status, item.Tags,
		item.Metadata, item.CreatedAt, item.UpdatedAt,
	)
	return translateError(err)
}

// UpsertByCanonicalKey inserts an item keyed by (project_id, canonical_key).
// On conflict, non-null incoming fields replace existing values and null
// fields preserve them. Returns the stored row.
func (r *ItemRepository) UpsertByCanonicalKey(ctx context.Context, item *MemoryItem) (*MemoryItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Scope == "" {
		item.Scope = ScopeProject
	}
	if item.Status == "" {
		item.Status = ItemStatusActive
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if len(item.Metadata) == 0 {
		item.Metadata = []byte(`{}`)
	}
	now := time.Now()

	query := `
		INSERT INTO memory_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (project_id, canonical_key) WHERE canonical_key IS NOT NULL
		DO UPDATE SET
			kind = COALESCE(NULLIF(EXCLUDED.kind, ''), memory_items.kind),
			doc_class = COALESCE(EXCLUDED.doc_class, memory_items.doc_class),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), memory_items.title),
			pinned = memory_items.pinned OR EXCLUDED.pinned,
			status = 'active',
			tags = CASE WHEN cardinality(EXCLUDED.tags) > 0 THEN EXCLUDED.tags ELSE memory_items.tags END,
			metadata = memory_items.metadata || EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + itemColumns + `
	`
	row := r.db.QueryRowContext(ctx, query,
		item.ID, item.ProjectID, item.Scope, item.Kind, item.CanonicalKey,
		item.DocClass, item.Title, item.Pinned, item.Status, item.Tags,
		item.Metadata, now, now,
	)
	return scanItem(row)
}

// GetByID retrieves an item by ID with project scoping.
func (r *ItemRepository) GetByID(ctx context.Context, projectID, itemID uuid.UUID) (*MemoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM memory_items WHERE id = $1 AND project_id = $2`
	return scanItem(r.db.QueryRowContext(ctx, query, itemID, projectID))
}

// GetByCanonicalKey retrieves an item by its canonical key.
func (r *ItemRepository) GetByCanonicalKey(ctx context.Context, projectID uuid.UUID, canonicalKey string) (*MemoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM memory_items WHERE project_id = $1 AND canonical_key = $2`
	return scanItem(r.db.QueryRowContext(ctx, query, projectID, canonicalKey))
}

// SetPinned updates the pinned flag.
func (r *ItemRepository) SetPinned(ctx context.Context, projectID, itemID uuid.UUID, pinned bool) error {
	query := `UPDATE memory_items SET pinned = $3, updated_at = now() WHERE id = $1 AND project_id = $2`
	res, err := r.db.ExecContext(ctx, query, itemID, projectID, pinned)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetStatus updates the lifecycle status. Items are never physically deleted.
func (r *ItemRepository) SetStatus(ctx context.Context, projectID, itemID uuid.UUID, status ItemStatus) error {
	query := `UPDATE memory_items SET status = $3, updated_at = now() WHERE id = $1 AND project_id = $2`
	res, err := r.db.ExecContext(ctx, query, itemID, projectID, status)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListRecent lists the most recently updated active items.
func (r *ItemRepository) ListRecent(ctx context.Context, projectID uuid.UUID, limit int) ([]*MemoryItem, error) {
	query := `
		SELECT ` + itemColumns + ` FROM memory_items
		WHERE project_id = $1 AND status = 'active'
		ORDER BY updated_at DESC LIMIT $2
	`
	return r.list(ctx, query, projectID, limit)
}

// ListPinned lists pinned active items.
func (r *ItemRepository) ListPinned(ctx context.Context, projectID uuid.UUID) ([]*MemoryItem, error) {
	query := `
		SELECT ` + itemColumns + ` FROM memory_items
		WHERE project_id = $1 AND pinned AND status = 'active'
		ORDER BY updated_at DESC
	`
	return r.list(ctx, query, projectID)
}

// ListCanonical lists canonical active items, optionally filtered by doc_class.
func (r *ItemRepository) ListCanonical(ctx context.Context, projectID uuid.UUID, docClass string) ([]*MemoryItem, error) {
	query := `
		SELECT ` + itemColumns + ` FROM memory_items
		WHERE project_id = $1 AND canonical_key IS NOT NULL AND status = 'active'
			AND ($2 = '' OR doc_class = $2)
		ORDER BY canonical_key
	`
	return r.list(ctx, query, projectID, docClass)
}

func (r *ItemRepository) list(ctx context.Context, query string, args ...interface{}) ([]*MemoryItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MemoryItem
	for rows.Next() {
		item := &MemoryItem{}
		if err := rows.Scan(
			&item.ID, &item.ProjectID, &item.Scope, &item.Kind, &item.CanonicalKey,
			&item.DocClass, &item.Title, &item.Pinned, &item.Status, &item.Tags,
			&item.Metadata, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row *sql.Row) (*MemoryItem, error) {
	item := &MemoryItem{}
	err := row.Scan(
		&item.ID, &item.ProjectID, &item.Scope, &item.Kind, &item.CanonicalKey,
		&item.DocClass, &item.Title, &item.Pinned, &item.Status, &item.Tags,
		&item.Metadata, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const versionColumns = `id, project_id, item_id, commit_id, version_num,
	content_format, content_text, content_json, checksum, created_at`

// VersionRepository handles immutable memory versions.
type VersionRepository struct {
	db DB
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Insert inserts a new version row.
func (r *VersionRepository) Insert(ctx context.Context, v *MemoryVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.ContentFormat == "" {
		v.ContentFormat = FormatMarkdown
	}
	v.CreatedAt = time.Now()

	query := `
		INSERT INTO memory_versions (` + versionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.ProjectID, v.ItemID, v.CommitID, v.VersionNum,
		v.ContentFormat, v.ContentText, nullableJSON(v.ContentJSON), v.Checksum, v.CreatedAt,
	)
	return translateError(err)
}

// NextVersionNum computes max(version_num)+1 for the item under a row-level
// lock on the item, so concurrent commits serialize.
func (r *VersionRepository) NextVersionNum(ctx context.Context, projectID, itemID uuid.UUID) (int, error) {
	lock := `SELECT id FROM memory_items WHERE id = $1 AND project_id = $2 FOR UPDATE`
	var id uuid.UUID
	if err := r.db.QueryRowContext(ctx, lock, itemID, projectID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	query := `SELECT COALESCE(MAX(version_num), 0) + 1 FROM memory_versions WHERE item_id = $1`
	var next int
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(&next)
	return next, err
}

// GetByID retrieves a version by ID with project scoping.
func (r *VersionRepository) GetByID(ctx context.Context, projectID, versionID uuid.UUID) (*MemoryVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM memory_versions WHERE id = $1 AND project_id = $2`
	return scanVersion(r.db.QueryRowContext(ctx, query, versionID, projectID))
}

// GetLatestByItem retrieves the newest version of an item.
func (r *VersionRepository) GetLatestByItem(ctx context.Context, projectID, itemID uuid.UUID) (*MemoryVersion, error) {
	query := `
		SELECT ` + versionColumns + ` FROM memory_versions
		WHERE item_id = $1 AND project_id = $2
		ORDER BY version_num DESC LIMIT 1
	`
	return scanVersion(r.db.QueryRowContext(ctx, query, itemID, projectID))
}

// GetByItemAndNum retrieves a specific version number of an item.
func (r *VersionRepository) GetByItemAndNum(ctx context.Context, projectID, itemID uuid.UUID, versionNum int) (*MemoryVersion, error) {
	query := `
		SELECT ` + versionColumns + ` FROM memory_versions
		WHERE item_id = $1 AND project_id = $2 AND version_num = $3
	`
	return scanVersion(r.db.QueryRowContext(ctx, query, itemID, projectID, versionNum))
}

// ListByItem lists versions of an item, newest first.
func (r *VersionRepository) ListByItem(ctx context.Context, projectID, itemID uuid.UUID, limit int) ([]*MemoryVersion, error) {
	query := `
		SELECT ` + versionColumns + ` FROM memory_versions
		WHERE item_id = $1 AND project_id = $2
		ORDER BY version_num DESC LIMIT $3
	`
	return r.list(ctx, query, itemID, projectID, limit)
}

// ListByCommit lists the versions of a commit in insert order.
func (r *VersionRepository) ListByCommit(ctx context.Context, projectID, commitID uuid.UUID) ([]*MemoryVersion, error) {
	query := `
		SELECT ` + versionColumns + ` FROM memory_versions
		WHERE commit_id = $1 AND project_id = $2
		ORDER BY created_at, id
	`
	return r.list(ctx, query, commitID, projectID)
}

// ListLatestByProject lists the latest version of every active item of the
// project. Used by admin reingest.
func (r *VersionRepository) ListLatestByProject(ctx context.Context, projectID uuid.UUID) ([]*MemoryVersion, error) {
	query := `
		SELECT DISTINCT ON (v.item_id) ` + prefixColumns("v", versionColumns) + `
		FROM memory_versions v
		JOIN memory_items i ON i.id = v.item_id
		WHERE v.project_id = $1 AND i.status = 'active'
		ORDER BY v.item_id, v.version_num DESC
	`
	return r.list(ctx, query, projectID)
}

func (r *VersionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*MemoryVersion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*MemoryVersion
	for rows.Next() {
		v := &MemoryVersion{}
		if err := rows.Scan(
			&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum,
			&v.ContentFormat, &v.ContentText, (*[]byte)(&v.ContentJSON), &v.Checksum, &v.CreatedAt,
		); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanVersion(row *sql.Row) (*MemoryVersion, error) {
	v := &MemoryVersion{}
	err := row.Scan(
		&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum,
		&v.ContentFormat, &v.ContentText, (*[]byte)(&v.ContentJSON), &v.Checksum, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// LinkRepository handles typed edges between items.
type LinkRepository struct {
	db DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Insert inserts a link after verifying both endpoints share the project.
func (r *LinkRepository) Insert(ctx context.Context, link *MemoryLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.Weight == 0 {
		link.Weight = 1.0
	}
	if len(link.Metadata) == 0 {
		link.Metadata = []byte(`{}`)
	}
	link.CreatedAt = time.Now()

	check := `
		SELECT count(*) FROM memory_items
		WHERE project_id = $1 AND id IN ($2, $3)
	`
	var n int
	if err := r.db.QueryRowContext(ctx, check, link.ProjectID, link.FromItemID, link.ToItemID).Scan(&n); err != nil {
		return err
	}
	want := 2
	if link.FromItemID == link.ToItemID {
		want = 1
	}
	if n < want {
		return ErrNotFound
	}

	query := `
		INSERT INTO memory_links (id, project_id, from_item_id, to_item_id, relation, weight, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.ProjectID, link.FromItemID, link.ToItemID,
		link.Relation, link.Weight, link.Metadata, link.CreatedAt,
	)
	return translateError(err)
}

// ListByItem lists links where the item is either endpoint.
func (r *LinkRepository) ListByItem(ctx context.Context, projectID, itemID uuid.UUID) ([]*MemoryLink, error) {
	query := `
		SELECT id, project_id, from_item_id, to_item_id, relation, weight, metadata, created_at
		FROM memory_links
		WHERE project_id = $1 AND (from_item_id = $2 OR to_item_id = $2)
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*MemoryLink
	for rows.Next() {
		l := &MemoryLink{}
		if err := rows.Scan(
			&l.ID, &l.ProjectID, &l.FromItemID, &l.ToItemID,
			&l.Relation, &l.Weight, &l.Metadata, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
