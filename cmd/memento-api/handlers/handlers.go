// Package handlers provides the HTTP handlers for the memento API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/engine"
	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/observability"
)

// Handlers bundles the API handlers over one engine.
type Handlers struct {
	logger *observability.Logger
	engine *engine.Engine
}

// New creates the handler bundle.
func New(logger *observability.Logger, eng *engine.Engine) *Handlers {
	return &Handlers{logger: logger, engine: eng}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context(), uuid.Nil)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Ready reports readiness (database reachable).
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	h.Health(w, r)
}

// ProjectHealth reports health including the project's embedder.
func (h *Handlers) ProjectHealth(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "projectID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Health(r.Context(), projectID))
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, memerr.Newf(memerr.KindValidation, "invalid %s", name)
	}
	return id, nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return memerr.Validation("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Kind    memerr.Kind       `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	kind := memerr.KindOf(err)
	resp := errorResponse{Kind: kind, Message: err.Error()}
	var kinded *memerr.Error
	if errors.As(err, &kinded) {
		resp.Message = kinded.Message
		resp.Details = kinded.Details
	}
	if kind == memerr.KindInternal {
		h.logger.Error().Err(err).Msg("Request failed")
		resp.Message = "internal error"
	}
	writeJSON(w, statusForKind(kind), resp)
}

func statusForKind(kind memerr.Kind) int {
	switch kind {
	case memerr.KindNotFound:
		return http.StatusNotFound
	case memerr.KindConflict:
		return http.StatusConflict
	case memerr.KindValidation:
		return http.StatusBadRequest
	case memerr.KindUnauthorized:
		return http.StatusUnauthorized
	case memerr.KindForbidden:
		return http.StatusForbidden
	case memerr.KindRateLimited:
		return http.StatusTooManyRequests
	case memerr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
