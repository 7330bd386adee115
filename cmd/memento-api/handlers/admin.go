package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/memerr"
)

// AdminReindex handles POST /v1/projects/{projectID}/admin/reindex.
// An optional ?profile=<uuid> targets a specific profile.
func (h *Handlers) AdminReindex(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	profileID := uuid.Nil
	if raw := r.URL.Query().Get("profile"); raw != "" {
		profileID, err = uuid.Parse(raw)
		if err != nil {
			h.writeError(w, memerr.Validation("invalid profile id"))
			return
		}
	}

	profile, err := h.engine.AdminReindex(r.Context(), projectID, profileID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"profile_id": profile.ID,
		"profile":    profile.Name,
		"status":     "scheduled",
	})
}

// AdminReingest handles POST /v1/projects/{projectID}/admin/reingest.
func (h *Handlers) AdminReingest(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	scheduled, err := h.engine.AdminReingest(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"versions": scheduled,
		"status":   "scheduled",
	})
}
