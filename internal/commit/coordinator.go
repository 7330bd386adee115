// Package commit implements the idempotent write pipeline: item upsert,
// version numbering, link resolution, and outbox emission in one
// transaction.
package commit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/storage"
)

// Tool names that namespace idempotency keys on the write paths.
const (
	ToolMemoryCommit       = "memory_commit"
	ToolCanonicalDocUpsert = "canonical_doc_upsert"
)

// NamespaceKey prefixes a caller-supplied idempotency key with the tool name
// so the same raw key can be reused across tools without collision.
func NamespaceKey(tool, raw string) string {
	return tool + ":" + raw
}

// LinkSpec requests a link from the entry's item to another item, addressed
// by item id or canonical key.
type LinkSpec struct {
	To       string
	Relation string
	Weight   float64
}

// Entry is one item-plus-content unit of a commit.
type Entry struct {
	ItemID        *uuid.UUID
	CanonicalKey  string
	Kind          string
	Scope         storage.Scope
	DocClass      string
	Title         string
	Pinned        bool
	Tags          []string
	Metadata      json.RawMessage
	ContentFormat storage.ContentFormat
	ContentText   string
	ContentJSON   json.RawMessage
	Links         []LinkSpec
}

// Request is one idempotent commit.
type Request struct {
	ProjectID      uuid.UUID
	IdempotencyKey string
	SessionID      string
	Author         string
	Summary        string
	Entries        []Entry
}

// EntryResult identifies what one entry produced.
type EntryResult struct {
	ItemID     uuid.UUID `json:"item_id"`
	VersionID  uuid.UUID `json:"version_id"`
	VersionNum int       `json:"version_num"`
}

// Result is the outcome of a commit.
type Result struct {
	CommitID uuid.UUID     `json:"commit_id"`
	Deduped  bool          `json:"deduped"`
	Entries  []EntryResult `json:"entries"`
}

// Coordinator runs commits. It is the single writer for memory data.
type Coordinator struct {
	db  *sql.DB
	log *observability.Logger
}

// NewCoordinator creates a commit coordinator.
func NewCoordinator(db *sql.DB, log *observability.Logger) *Coordinator {
	return &Coordinator{db: db, log: log.WithOperation("commit")}
}

var errDuplicateKey = errors.New("duplicate idempotency key")

// Commit atomically writes all entries, their versions, links, and outbox
// events. A repeated idempotency key returns the original result with
// Deduped set; the entries are not compared.
func (c *Coordinator) Commit(ctx context.Context, req Request) (*Result, error) {
	if req.ProjectID == uuid.Nil {
		return nil, memerr.Validation("project_id is required")
	}
	if req.IdempotencyKey == "" {
		return nil, memerr.Validation("idempotency_key is required")
	}
	if len(req.Entries) == 0 {
		return nil, memerr.Validation("at least one entry is required")
	}

	if result, err := c.readBack(ctx, req.ProjectID, req.IdempotencyKey); err == nil {
		return result, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	result := &Result{}
	err := storage.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		repos := storage.NewRepositories(tx)

		commitRow := &storage.Commit{
			ProjectID:      req.ProjectID,
			SessionID:      nullString(req.SessionID),
			IdempotencyKey: req.IdempotencyKey,
			Author:         nullString(req.Author),
			Summary:        nullString(req.Summary),
		}
		if err := repos.Commits.Insert(ctx, commitRow); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return errDuplicateKey
			}
			return err
		}
		result.CommitID = commitRow.ID

		for _, entry := range req.Entries {
			entryResult, err := c.writeEntry(ctx, tx, repos, req.ProjectID, commitRow.ID, entry)
			if err != nil {
				return err
			}
			result.Entries = append(result.Entries, entryResult)
		}
		return nil
	})
	if errors.Is(err, errDuplicateKey) {
		// Lost the race to another writer with the same key; their result wins.
		return c.readBack(ctx, req.ProjectID, req.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("project_id", req.ProjectID.String()).
		Str("commit_id", result.CommitID.String()).
		Int("entries", len(result.Entries)).
		Msg("commit applied")
	return result, nil
}

func (c *Coordinator) writeEntry(ctx context.Context, tx *sql.Tx, repos *storage.Repositories, projectID, commitID uuid.UUID, entry Entry) (EntryResult, error) {
	item, err := c.resolveItem(ctx, repos, projectID, entry)
	if err != nil {
		return EntryResult{}, err
	}

	versionNum, err := repos.Versions.NextVersionNum(ctx, projectID, item.ID)
	if err != nil {
		return EntryResult{}, err
	}

	version := &storage.MemoryVersion{
		ProjectID:     projectID,
		ItemID:        item.ID,
		CommitID:      uuid.NullUUID{UUID: commitID, Valid: true},
		VersionNum:    versionNum,
		ContentFormat: entry.ContentFormat,
		ContentText:   entry.ContentText,
		ContentJSON:   entry.ContentJSON,
		Checksum:      Checksum(entry.ContentText),
	}
	if err := repos.Versions.Insert(ctx, version); err != nil {
		return EntryResult{}, err
	}

	if err := outbox.Enqueue(ctx, tx, projectID, storage.EventIngestVersion,
		storage.IngestVersionPayload{VersionID: version.ID}); err != nil {
		return EntryResult{}, err
	}
	if err := outbox.Enqueue(ctx, tx, projectID, storage.EventEmbedVersion,
		storage.EmbedVersionPayload{VersionID: version.ID}); err != nil {
		return EntryResult{}, err
	}

	for _, spec := range entry.Links {
		toID, err := c.resolveLinkTarget(ctx, repos, projectID, spec.To)
		if err != nil {
			return EntryResult{}, err
		}
		link := &storage.MemoryLink{
			ProjectID:  projectID,
			FromItemID: item.ID,
			ToItemID:   toID,
			Relation:   spec.Relation,
			Weight:     spec.Weight,
		}
		if err := repos.Links.Insert(ctx, link); err != nil {
			return EntryResult{}, err
		}
	}

	return EntryResult{ItemID: item.ID, VersionID: version.ID, VersionNum: versionNum}, nil
}

// resolveItem finds or creates the entry's item: explicit id first, then
// canonical key upsert, then plain insert.
func (c *Coordinator) resolveItem(ctx context.Context, repos *storage.Repositories, projectID uuid.UUID, entry Entry) (*storage.MemoryItem, error) {
	if entry.ItemID != nil {
		item, err := repos.Items.GetByID(ctx, projectID, *entry.ItemID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, memerr.Newf(memerr.KindNotFound, "item %s not found", entry.ItemID)
		}
		return item, err
	}

	if err := validateNewItem(entry); err != nil {
		return nil, err
	}

	item := &storage.MemoryItem{
		ProjectID:    projectID,
		Scope:        entry.Scope,
		Kind:         entry.Kind,
		CanonicalKey: nullString(entry.CanonicalKey),
		DocClass:     nullString(entry.DocClass),
		Title:        entry.Title,
		Pinned:       entry.Pinned,
		Tags:         entry.Tags,
		Metadata:     entry.Metadata,
	}

	if entry.CanonicalKey != "" {
		return repos.Items.UpsertByCanonicalKey(ctx, item)
	}

	if err := repos.Items.Insert(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Coordinator) resolveLinkTarget(ctx context.Context, repos *storage.Repositories, projectID uuid.UUID, to string) (uuid.UUID, error) {
	if id, err := uuid.Parse(to); err == nil {
		item, err := repos.Items.GetByID(ctx, projectID, id)
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, memerr.Newf(memerr.KindNotFound, "link target %s not found", to)
		}
		if err != nil {
			return uuid.Nil, err
		}
		return item.ID, nil
	}

	item, err := repos.Items.GetByCanonicalKey(ctx, projectID, to)
	if errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, memerr.Newf(memerr.KindNotFound, "link target %q not found", to)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return item.ID, nil
}

// readBack reconstructs the original result of a commit from its versions,
// in insert order.
func (c *Coordinator) readBack(ctx context.Context, projectID uuid.UUID, idempotencyKey string) (*Result, error) {
	repos := storage.NewRepositories(c.db)

	commitRow, err := repos.Commits.GetByKey(ctx, projectID, idempotencyKey)
	if err != nil {
		return nil, err
	}

	versions, err := repos.Versions.ListByCommit(ctx, projectID, commitRow.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{CommitID: commitRow.ID, Deduped: true}
	for _, v := range versions {
		result.Entries = append(result.Entries, EntryResult{
			ItemID:     v.ItemID,
			VersionID:  v.ID,
			VersionNum: v.VersionNum,
		})
	}
	return result, nil
}

// Checksum returns the SHA-256 hex digest of the content text.
func Checksum(contentText string) string {
	sum := sha256.Sum256([]byte(contentText))
	return hex.EncodeToString(sum[:])
}

func validateNewItem(entry Entry) error {
	if entry.Kind == "" {
		return memerr.Validation("kind is required")
	}
	if entry.Title == "" {
		return memerr.Validation("title is required")
	}
	switch entry.Scope {
	case storage.ScopeProject, storage.ScopeWorkspaceShared, storage.ScopeGlobal, "":
	default:
		return memerr.Newf(memerr.KindValidation, "invalid scope %q", entry.Scope)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
