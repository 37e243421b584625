package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"contentops/backend/internal/middleware"
)

// maxBodyBytes caps request bodies; a publish request is two identifiers.
const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

var statusByCode = map[ErrorCode]int{
	CodeValidation: http.StatusBadRequest,
	CodeNotFound:   http.StatusNotFound,
	CodeForbidden:  http.StatusForbidden,
	CodeConflict:   http.StatusConflict,
	CodeInternal:   http.StatusInternalServerError,
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")

	var req struct {
		ContentID string `json:"content_id"`
		TargetID  string `json:"target_id"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(ctx, w, string(CodeValidation), "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(ctx, w, string(CodeValidation), "invalid request body", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "publish requested", "content_id", req.ContentID, "target_id", req.TargetID)
	res := h.service.Publish(ctx, domainID, req.ContentID, req.TargetID)
	h.writeResult(ctx, w, res, http.StatusCreated)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.service.List(ctx, domainID, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, string(CodeInternal), msgInternal, http.StatusInternalServerError)
		return
	}

	if jobs == nil {
		jobs = []Job{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")
	id := r.PathValue("id")

	j, found, err := h.service.GetInDomain(ctx, domainID, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get job", "id", id, "error", err)
		h.writeError(ctx, w, string(CodeInternal), msgInternal, http.StatusInternalServerError)
		return
	}
	if !found {
		h.writeError(ctx, w, string(CodeNotFound), "job not found", http.StatusNotFound)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": j})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")
	id := r.PathValue("id")

	slog.InfoContext(ctx, "retrying job", "id", id)
	h.writeResult(ctx, w, h.service.RetryInDomain(ctx, domainID, id), http.StatusOK)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")
	id := r.PathValue("id")

	slog.InfoContext(ctx, "cancelling job", "id", id)
	res := h.service.CancelInDomain(ctx, domainID, id)
	if res.Success {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeResult(ctx, w, res, http.StatusOK)
}

func (h *Handler) writeResult(ctx context.Context, w http.ResponseWriter, res Result, successStatus int) {
	if !res.Success {
		status, ok := statusByCode[res.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		h.writeError(ctx, w, string(res.Code), res.Error, status)
		return
	}
	h.writeJSON(ctx, w, successStatus, map[string]interface{}{"data": res.Job})
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
