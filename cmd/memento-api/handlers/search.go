package handlers

import (
	"net/http"

	"github.com/memento-ai/memento/internal/engine"
)

// Search handles POST /v1/projects/{projectID}/search.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req engine.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.engine.Search(r.Context(), projectID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
