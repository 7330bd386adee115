package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/commit"
	"github.com/memento-ai/memento/internal/engine"
	"github.com/memento-ai/memento/internal/storage"
)

// CommitEntryDTO is one entry of a commit request.
type CommitEntryDTO struct {
	ItemID        string          `json:"item_id,omitempty"`
	CanonicalKey  string          `json:"canonical_key,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Scope         string          `json:"scope,omitempty"`
	DocClass      string          `json:"doc_class,omitempty"`
	Title         string          `json:"title,omitempty"`
	Pinned        bool            `json:"pinned,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	ContentFormat string          `json:"content_format,omitempty"`
	ContentText   string          `json:"content_text,omitempty"`
	ContentJSON   json.RawMessage `json:"content_json,omitempty"`
	Links         []LinkDTO       `json:"links,omitempty"`
}

// LinkDTO requests a link to another item.
type LinkDTO struct {
	To       string  `json:"to"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight,omitempty"`
}

// CommitRequestDTO is the commit API request.
type CommitRequestDTO struct {
	IdempotencyKey string           `json:"idempotency_key"`
	SessionID      string           `json:"session_id,omitempty"`
	Author         string           `json:"author,omitempty"`
	Summary        string           `json:"summary,omitempty"`
	Entries        []CommitEntryDTO `json:"entries"`
}

// Commit handles POST /v1/projects/{projectID}/commit.
func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var dto CommitRequestDTO
	if err := decodeJSON(r, &dto); err != nil {
		h.writeError(w, err)
		return
	}

	req := commit.Request{
		ProjectID:      projectID,
		IdempotencyKey: dto.IdempotencyKey,
		SessionID:      dto.SessionID,
		Author:         dto.Author,
		Summary:        dto.Summary,
	}
	for _, e := range dto.Entries {
		entry := commit.Entry{
			CanonicalKey:  e.CanonicalKey,
			Kind:          e.Kind,
			Scope:         storage.Scope(e.Scope),
			DocClass:      e.DocClass,
			Title:         e.Title,
			Pinned:        e.Pinned,
			Tags:          e.Tags,
			Metadata:      e.Metadata,
			ContentFormat: storage.ContentFormat(e.ContentFormat),
			ContentText:   e.ContentText,
			ContentJSON:   e.ContentJSON,
		}
		if e.ItemID != "" {
			id, err := uuid.Parse(e.ItemID)
			if err == nil {
				entry.ItemID = &id
			}
		}
		for _, l := range e.Links {
			entry.Links = append(entry.Links, commit.LinkSpec{
				To:       l.To,
				Relation: l.Relation,
				Weight:   l.Weight,
			})
		}
		req.Entries = append(req.Entries, entry)
	}

	result, err := h.engine.Commit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CanonicalUpsertDTO is the canonical upsert API request.
type CanonicalUpsertDTO struct {
	CanonicalKey   string          `json:"canonical_key"`
	DocClass       string          `json:"doc_class"`
	Title          string          `json:"title,omitempty"`
	ContentFormat  string          `json:"content_format,omitempty"`
	ContentText    string          `json:"content_text,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	SessionID      string          `json:"session_id,omitempty"`
	Author         string          `json:"author,omitempty"`
}

// CanonicalUpsert handles POST /v1/projects/{projectID}/canonical. Content
// comes inline or from an allow-listed file path.
func (h *Handlers) CanonicalUpsert(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var dto CanonicalUpsertDTO
	if err := decodeJSON(r, &dto); err != nil {
		h.writeError(w, err)
		return
	}

	params := commit.CanonicalUpsertParams{
		ProjectID:      projectID,
		CanonicalKey:   dto.CanonicalKey,
		DocClass:       dto.DocClass,
		Title:          dto.Title,
		ContentFormat:  storage.ContentFormat(dto.ContentFormat),
		ContentText:    dto.ContentText,
		Tags:           dto.Tags,
		Metadata:       dto.Metadata,
		IdempotencyKey: dto.IdempotencyKey,
		SessionID:      dto.SessionID,
		Author:         dto.Author,
	}

	var result *commit.Result
	if dto.FilePath != "" {
		result, err = h.engine.CanonicalUpsertFromFile(r.Context(), params, dto.FilePath)
	} else {
		result, err = h.engine.CanonicalUpsert(r.Context(), params)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResolveProject handles POST /v1/projects/resolve.
func (h *Handlers) ResolveProject(w http.ResponseWriter, r *http.Request) {
	var params engine.ResolveProjectParams
	if err := decodeJSON(r, &params); err != nil {
		h.writeError(w, err)
		return
	}
	project, err := h.engine.ResolveProject(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project_id":   project.ID,
		"workspace_id": project.WorkspaceID,
		"project_key":  project.ProjectKey,
		"display_name": project.DisplayName,
	})
}
