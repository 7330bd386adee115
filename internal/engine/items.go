package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/memuri"
	"github.com/memento-ai/memento/internal/storage"
)

// ItemView is an item joined with one of its versions.
type ItemView struct {
	ID            uuid.UUID `json:"id"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	CanonicalKey  string    `json:"canonical_key,omitempty"`
	DocClass      string    `json:"doc_class,omitempty"`
	Pinned        bool      `json:"pinned"`
	Status        string    `json:"status"`
	Tags          []string  `json:"tags,omitempty"`
	VersionNum    int       `json:"version_num"`
	ContentFormat string    `json:"content_format"`
	Content       string    `json:"content"`
	Checksum      string    `json:"checksum"`
	URI           string    `json:"uri"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetItem returns an item with its latest version, or the version numbered
// versionNum when > 0.
func (e *Engine) GetItem(ctx context.Context, projectID, itemID uuid.UUID, versionNum int) (*ItemView, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := e.repos.Items.GetByID(ctx, projectID, itemID)
	if err != nil {
		return nil, translate(err, "item not found")
	}
	return e.viewWithVersion(ctx, projectID, item, versionNum)
}

// GetByCanonicalKey returns a canonical document by key with its latest
// version.
func (e *Engine) GetByCanonicalKey(ctx context.Context, projectID uuid.UUID, canonicalKey string) (*ItemView, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if canonicalKey == "" {
		return nil, memerr.Validation("canonical_key is required")
	}
	item, err := e.repos.Items.GetByCanonicalKey(ctx, projectID, canonicalKey)
	if err != nil {
		return nil, translate(err, "canonical document not found")
	}
	return e.viewWithVersion(ctx, projectID, item, 0)
}

func (e *Engine) viewWithVersion(ctx context.Context, projectID uuid.UUID, item *storage.MemoryItem, versionNum int) (*ItemView, error) {
	var version *storage.MemoryVersion
	var err error
	if versionNum > 0 {
		version, err = e.repos.Versions.GetByItemAndNum(ctx, projectID, item.ID, versionNum)
	} else {
		version, err = e.repos.Versions.GetLatestByItem(ctx, projectID, item.ID)
	}
	if err != nil {
		return nil, translate(err, fmt.Sprintf("version not found for item %s", item.ID))
	}

	uri := memuri.Item(projectID, item.ID)
	if versionNum > 0 {
		uri = memuri.Version(projectID, item.ID, versionNum)
	}
	return &ItemView{
		ID:            item.ID,
		Kind:          item.Kind,
		Title:         item.Title,
		CanonicalKey:  item.CanonicalKey.String,
		DocClass:      item.DocClass.String,
		Pinned:        item.Pinned,
		Status:        string(item.Status),
		Tags:          item.Tags,
		VersionNum:    version.VersionNum,
		ContentFormat: string(version.ContentFormat),
		Content:       version.ContentText,
		Checksum:      version.Checksum,
		URI:           uri,
		UpdatedAt:     item.UpdatedAt,
	}, nil
}

// VersionSummary is one history entry.
type VersionSummary struct {
	VersionNum int       `json:"version_num"`
	CommitID   uuid.UUID `json:"commit_id,omitempty"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
	URI        string    `json:"uri"`
}

// History lists an item's versions, newest first.
func (e *Engine) History(ctx context.Context, projectID, itemID uuid.UUID, limit int) ([]*VersionSummary, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if limit <= 0 {
		limit = 50
	}
	versions, err := e.repos.Versions.ListByItem(ctx, projectID, itemID, limit)
	if err != nil {
		return nil, translate(err, "list versions")
	}
	out := make([]*VersionSummary, len(versions))
	for i, v := range versions {
		out[i] = &VersionSummary{
			VersionNum: v.VersionNum,
			CommitID:   v.CommitID.UUID,
			Checksum:   v.Checksum,
			CreatedAt:  v.CreatedAt,
			URI:        memuri.Version(projectID, itemID, v.VersionNum),
		}
	}
	return out, nil
}

// Diff returns a unified diff between two versions of an item.
func (e *Engine) Diff(ctx context.Context, projectID, itemID uuid.UUID, fromNum, toNum int) (string, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if fromNum <= 0 || toNum <= 0 {
		return "", memerr.Validation("from and to version numbers are required")
	}
	from, err := e.repos.Versions.GetByItemAndNum(ctx, projectID, itemID, fromNum)
	if err != nil {
		return "", translate(err, fmt.Sprintf("version %d not found", fromNum))
	}
	to, err := e.repos.Versions.GetByItemAndNum(ctx, projectID, itemID, toNum)
	if err != nil {
		return "", translate(err, fmt.Sprintf("version %d not found", toNum))
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from.ContentText),
		B:        difflib.SplitLines(to.ContentText),
		FromFile: fmt.Sprintf("v%d", fromNum),
		ToFile:   fmt.Sprintf("v%d", toNum),
		Context:  3,
	})
	if err != nil {
		return "", memerr.Internal("compute diff", err)
	}
	return diff, nil
}

// Pin sets or clears an item's pinned flag.
func (e *Engine) Pin(ctx context.Context, projectID, itemID uuid.UUID, pinned bool) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := e.repos.Items.SetPinned(ctx, projectID, itemID, pinned); err != nil {
		return translate(err, "item not found")
	}
	e.results.InvalidateProject(ctx, projectID)
	return nil
}

// Archive marks an item archived, removing it from search.
func (e *Engine) Archive(ctx context.Context, projectID, itemID uuid.UUID) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := e.repos.Items.SetStatus(ctx, projectID, itemID, storage.ItemStatusArchived); err != nil {
		return translate(err, "item not found")
	}
	e.results.InvalidateProject(ctx, projectID)
	return nil
}

// LinkParams describes a typed edge between two items. To addresses the
// target by item id or canonical key.
type LinkParams struct {
	FromItemID uuid.UUID `json:"from_item_id"`
	To         string    `json:"to"`
	Relation   string    `json:"relation"`
	Weight     float64   `json:"weight,omitempty"`
}

// Link creates a link between two items of the project.
func (e *Engine) Link(ctx context.Context, projectID uuid.UUID, params LinkParams) (*storage.MemoryLink, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if params.Relation == "" {
		return nil, memerr.Validation("relation is required")
	}
	toID, err := e.resolveItemRef(ctx, projectID, params.To)
	if err != nil {
		return nil, err
	}

	weight := params.Weight
	if weight == 0 {
		weight = 1.0
	}
	link := &storage.MemoryLink{
		ID:         uuid.New(),
		ProjectID:  projectID,
		FromItemID: params.FromItemID,
		ToItemID:   toID,
		Relation:   params.Relation,
		Weight:     weight,
	}
	if err := e.repos.Links.Insert(ctx, link); err != nil {
		return nil, translate(err, "create link")
	}
	return link, nil
}

// resolveItemRef resolves an item reference given as a uuid or a canonical
// key.
func (e *Engine) resolveItemRef(ctx context.Context, projectID uuid.UUID, ref string) (uuid.UUID, error) {
	if ref == "" {
		return uuid.Nil, memerr.Validation("item reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		if _, err := e.repos.Items.GetByID(ctx, projectID, id); err != nil {
			return uuid.Nil, translate(err, fmt.Sprintf("item %s not found", ref))
		}
		return id, nil
	}
	item, err := e.repos.Items.GetByCanonicalKey(ctx, projectID, ref)
	if err != nil {
		return uuid.Nil, translate(err, fmt.Sprintf("canonical document %q not found", ref))
	}
	return item.ID, nil
}
