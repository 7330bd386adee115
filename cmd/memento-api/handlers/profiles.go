package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/engine"
	"github.com/memento-ai/memento/internal/storage"
)

// ProfileDTO is the API shape of an embedding profile.
type ProfileDTO struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Dims     int       `json:"dims"`
	Distance string    `json:"distance"`
	IsActive bool      `json:"is_active"`
}

func profileDTO(p *storage.EmbeddingProfile) ProfileDTO {
	return ProfileDTO{
		ID:       p.ID,
		Name:     p.Name,
		Provider: p.Provider,
		Model:    p.Model,
		Dims:     p.Dims,
		Distance: string(p.Distance),
		IsActive: p.IsActive,
	}
}

// ListProfiles handles GET /v1/projects/{projectID}/profiles.
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	profiles, err := h.engine.ListProfiles(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ProfileDTO, len(profiles))
	for i, p := range profiles {
		out[i] = profileDTO(p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": out})
}

// CreateProfile handles POST /v1/projects/{projectID}/profiles.
func (h *Handlers) CreateProfile(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var params engine.ProfileParams
	if err := decodeJSON(r, &params); err != nil {
		h.writeError(w, err)
		return
	}
	profile, err := h.engine.CreateProfile(r.Context(), projectID, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profileDTO(profile))
}

// ActivateProfile handles POST /v1/projects/{projectID}/profiles/{profileID}/activate.
func (h *Handlers) ActivateProfile(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	profileID, err := pathUUID(r, "profileID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.ActivateProfile(r.Context(), projectID, profileID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// DeleteProfile handles DELETE /v1/projects/{projectID}/profiles/{profileID}.
func (h *Handlers) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	profileID, err := pathUUID(r, "profileID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.DeleteProfile(r.Context(), projectID, profileID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
