package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/commit"
	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/memuri"
	"github.com/memento-ai/memento/internal/storage"
)

// CanonicalUpsert writes a canonical document through the commit pipeline.
// Its idempotency keys live in their own namespace, separate from plain
// commits.
func (e *Engine) CanonicalUpsert(ctx context.Context, params commit.CanonicalUpsertParams) (*commit.Result, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if params.IdempotencyKey != "" {
		params.IdempotencyKey = commit.NamespaceKey(commit.ToolCanonicalDocUpsert, params.IdempotencyKey)
	}
	result, err := e.coordinator.CanonicalUpsert(ctx, params)
	if err != nil {
		return nil, translate(err, "canonical upsert")
	}
	e.results.InvalidateProject(ctx, params.ProjectID)
	return result, nil
}

// CanonicalUpsertFromFile reads a document from disk and upserts it. The
// path must resolve under one of the configured allowed roots and respect
// the size cap.
func (e *Engine) CanonicalUpsertFromFile(ctx context.Context, params commit.CanonicalUpsertParams, path string) (*commit.Result, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, memerr.Validation("invalid file path")
	}
	if !e.pathAllowed(abs) {
		return nil, memerr.New(memerr.KindForbidden, "path outside allowed roots").WithDetail("path", abs)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, memerr.NotFound(fmt.Sprintf("file %s not found", abs))
	}
	if max := e.cfg.Engine.MaxFileBytes; max > 0 && info.Size() > max {
		return nil, memerr.Newf(memerr.KindValidation, "file exceeds %d bytes", max)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, memerr.Internal("read file", err)
	}

	params.ContentText = string(data)
	if params.ContentFormat == "" {
		params.ContentFormat = formatForPath(abs)
	}
	if params.Title == "" {
		params.Title = filepath.Base(abs)
	}
	return e.CanonicalUpsert(ctx, params)
}

func (e *Engine) pathAllowed(abs string) bool {
	for _, root := range e.cfg.Engine.AllowedRoots {
		cleanRoot := filepath.Clean(root)
		if abs == cleanRoot || strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func formatForPath(path string) storage.ContentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return storage.FormatMarkdown
	case ".json":
		return storage.FormatJSON
	default:
		return storage.FormatPlain
	}
}

// OutlineEntry is one section of a document outline.
type OutlineEntry struct {
	Anchor      string   `json:"anchor"`
	HeadingPath []string `json:"heading_path"`
	URI         string   `json:"uri"`
}

// Outline lists the distinct section anchors of an item's latest version in
// document order.
func (e *Engine) Outline(ctx context.Context, projectID, itemID uuid.UUID) ([]*OutlineEntry, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	version, err := e.repos.Versions.GetLatestByItem(ctx, projectID, itemID)
	if err != nil {
		return nil, translate(err, "item has no versions")
	}
	chunks, err := e.repos.Chunks.ListByVersion(ctx, projectID, version.ID)
	if err != nil {
		return nil, translate(err, "list chunks")
	}

	seen := make(map[string]bool)
	var outline []*OutlineEntry
	for _, c := range chunks {
		anchor := c.SectionAnchor.String
		if anchor == "" || seen[anchor] {
			continue
		}
		seen[anchor] = true
		outline = append(outline, &OutlineEntry{
			Anchor:      anchor,
			HeadingPath: c.HeadingPath,
			URI:         memuri.Section(projectID, itemID, anchor),
		})
	}
	return outline, nil
}

// Section is the text of one document section.
type Section struct {
	Anchor      string   `json:"anchor"`
	HeadingPath []string `json:"heading_path"`
	Text        string   `json:"text"`
	URI         string   `json:"uri"`
}

// GetSection returns the text of the section with the given anchor in the
// item's latest version. Sections spanning multiple chunks are concatenated
// in order.
func (e *Engine) GetSection(ctx context.Context, projectID, itemID uuid.UUID, anchor string) (*Section, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if anchor == "" {
		return nil, memerr.Validation("anchor is required")
	}
	version, err := e.repos.Versions.GetLatestByItem(ctx, projectID, itemID)
	if err != nil {
		return nil, translate(err, "item has no versions")
	}
	chunks, err := e.repos.Chunks.ListByVersion(ctx, projectID, version.ID)
	if err != nil {
		return nil, translate(err, "list chunks")
	}

	var texts []string
	var headingPath []string
	for _, c := range chunks {
		if c.SectionAnchor.String != anchor {
			continue
		}
		texts = append(texts, c.ChunkText)
		if headingPath == nil {
			headingPath = c.HeadingPath
		}
	}
	if len(texts) == 0 {
		return nil, memerr.NotFound(fmt.Sprintf("section %s not found", anchor))
	}
	return &Section{
		Anchor:      anchor,
		HeadingPath: headingPath,
		Text:        strings.Join(texts, "\n"),
		URI:         memuri.Section(projectID, itemID, anchor),
	}, nil
}

// ContextPackOptions bounds a context pack.
type ContextPackOptions struct {
	MaxItems        int `json:"max_items,omitempty"`
	MaxCharsPerItem int `json:"max_chars_per_item,omitempty"`
}

// ContextPackEntry is one document in a context pack.
type ContextPackEntry struct {
	ItemID       uuid.UUID `json:"item_id"`
	Title        string    `json:"title"`
	Kind         string    `json:"kind"`
	CanonicalKey string    `json:"canonical_key,omitempty"`
	Pinned       bool      `json:"pinned"`
	Content      string    `json:"content"`
	Truncated    bool      `json:"truncated,omitempty"`
	URI          string    `json:"uri"`
}

// ContextPack assembles a bounded bundle of the project's pinned items,
// canonical documents, and recent items for session bootstrap.
func (e *Engine) ContextPack(ctx context.Context, projectID uuid.UUID, opts ContextPackOptions) ([]*ContextPackEntry, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if opts.MaxItems <= 0 {
		opts.MaxItems = 20
	}
	if opts.MaxCharsPerItem <= 0 {
		opts.MaxCharsPerItem = 4000
	}

	pinned, err := e.repos.Items.ListPinned(ctx, projectID)
	if err != nil {
		return nil, translate(err, "list pinned items")
	}
	canonical, err := e.repos.Items.ListCanonical(ctx, projectID, "")
	if err != nil {
		return nil, translate(err, "list canonical items")
	}
	recent, err := e.repos.Items.ListRecent(ctx, projectID, opts.MaxItems)
	if err != nil {
		return nil, translate(err, "list recent items")
	}

	seen := make(map[uuid.UUID]bool)
	var pack []*ContextPackEntry
	for _, group := range [][]*storage.MemoryItem{pinned, canonical, recent} {
		for _, item := range group {
			if len(pack) >= opts.MaxItems {
				return pack, nil
			}
			if seen[item.ID] || item.Status != storage.ItemStatusActive {
				continue
			}
			seen[item.ID] = true

			entry, err := e.packEntry(ctx, projectID, item, opts.MaxCharsPerItem)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				pack = append(pack, entry)
			}
		}
	}
	return pack, nil
}

func (e *Engine) packEntry(ctx context.Context, projectID uuid.UUID, item *storage.MemoryItem, maxChars int) (*ContextPackEntry, error) {
	version, err := e.repos.Versions.GetLatestByItem(ctx, projectID, item.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Items with no content yet are skipped, not fatal.
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "load latest version")
	}

	content := version.ContentText
	truncated := false
	if len(content) > maxChars {
		content = content[:maxChars]
		truncated = true
	}
	return &ContextPackEntry{
		ItemID:       item.ID,
		Title:        item.Title,
		Kind:         item.Kind,
		CanonicalKey: item.CanonicalKey.String,
		Pinned:       item.Pinned,
		Content:      content,
		Truncated:    truncated,
		URI:          memuri.Item(projectID, item.ID),
	}, nil
}
