package target

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"contentops/backend/internal/middleware"
)

// maxBodyBytes caps request bodies. Target configs are a handful of credentials and URLs.
const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list := h.service.ListEnabled
	if r.URL.Query().Get("all") == "true" {
		list = h.service.List
	}
	targets, err := list(ctx, domainID, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list targets", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
		return
	}
	if targets == nil {
		targets = []Target{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": targets,
		"meta": map[string]int{"count": len(targets)},
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Type   Type   `json:"type"`
		Config Config `json:"config"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.service.Create(ctx, r.PathValue("domainId"), req.Type, req.Config)
	if err != nil {
		h.handleError(ctx, w, "failed to create target", err)
		return
	}
	slog.InfoContext(ctx, "target created", "target_id", t.ID(), "type", t.Type())
	h.writeJSON(ctx, w, http.StatusCreated, map[string]interface{}{"data": t})
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var partial Config
	if !h.decode(w, r, &partial) {
		return
	}

	t, err := h.service.UpdateConfig(ctx, r.PathValue("domainId"), r.PathValue("id"), partial)
	if err != nil {
		h.handleError(ctx, w, "failed to update target config", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": t})
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := h.service.Toggle(ctx, r.PathValue("domainId"), r.PathValue("id"))
	if err != nil {
		h.handleError(ctx, w, "failed to toggle target", err)
		return
	}
	slog.InfoContext(ctx, "target toggled", "target_id", t.ID(), "enabled", t.Enabled())
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": t})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, r.PathValue("domainId"), r.PathValue("id")); err != nil {
		h.handleError(ctx, w, "failed to delete target", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body of at most maxBodyBytes into v and writes the error
// response itself when it reports false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooLarge):
		h.writeError(ctx, w, "VALIDATION_ERROR", "request body too large", http.StatusRequestEntityTooLarge)
	default:
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
	}
	return false
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "target not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidTarget):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, msg, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
