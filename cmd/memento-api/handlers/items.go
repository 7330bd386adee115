package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/memento-ai/memento/internal/engine"
	"github.com/memento-ai/memento/internal/memerr"
)

// GetItem handles GET /v1/projects/{projectID}/items/{itemID}?version=N.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	versionNum, _ := strconv.Atoi(r.URL.Query().Get("version"))

	view, err := h.engine.GetItem(r.Context(), projectID, itemID, versionNum)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetCanonical handles GET /v1/projects/{projectID}/canonical?key=spec/app.
func (h *Handlers) GetCanonical(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.engine.GetByCanonicalKey(r.Context(), projectID, r.URL.Query().Get("key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// History handles GET /v1/projects/{projectID}/items/{itemID}/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	versions, err := h.engine.History(r.Context(), projectID, itemID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

// Diff handles GET /v1/projects/{projectID}/items/{itemID}/diff?from=1&to=2.
func (h *Handlers) Diff(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	to, _ := strconv.Atoi(r.URL.Query().Get("to"))

	diff, err := h.engine.Diff(r.Context(), projectID, itemID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}

// Pin handles POST /v1/projects/{projectID}/items/{itemID}/pin.
func (h *Handlers) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

// Unpin handles POST /v1/projects/{projectID}/items/{itemID}/unpin.
func (h *Handlers) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *Handlers) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.Pin(r.Context(), projectID, itemID, pinned); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": pinned})
}

// Archive handles POST /v1/projects/{projectID}/items/{itemID}/archive.
func (h *Handlers) Archive(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.Archive(r.Context(), projectID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// Link handles POST /v1/projects/{projectID}/items/{itemID}/links.
func (h *Handlers) Link(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var params engine.LinkParams
	if err := decodeJSON(r, &params); err != nil {
		h.writeError(w, err)
		return
	}
	params.FromItemID = itemID

	link, err := h.engine.Link(r.Context(), projectID, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"link_id":  link.ID,
		"relation": link.Relation,
	})
}

// Outline handles GET /v1/projects/{projectID}/items/{itemID}/outline.
func (h *Handlers) Outline(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	outline, err := h.engine.Outline(r.Context(), projectID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sections": outline})
}

// GetSection handles GET /v1/projects/{projectID}/items/{itemID}/sections/{anchor}.
func (h *Handlers) GetSection(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := pathUUID(r, "itemID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	anchor := chi.URLParam(r, "anchor")
	if anchor == "" {
		h.writeError(w, memerr.Validation("anchor is required"))
		return
	}
	section, err := h.engine.GetSection(r.Context(), projectID, itemID, anchor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

// ContextPack handles GET /v1/projects/{projectID}/context-pack.
func (h *Handlers) ContextPack(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var opts engine.ContextPackOptions
	opts.MaxItems, _ = strconv.Atoi(r.URL.Query().Get("max_items"))
	opts.MaxCharsPerItem, _ = strconv.Atoi(r.URL.Query().Get("max_chars"))

	pack, err := h.engine.ContextPack(r.Context(), projectID, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": pack})
}
