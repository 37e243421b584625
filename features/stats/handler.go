package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"contentops/backend/features/job"
	"contentops/backend/internal/database"
	"contentops/backend/internal/middleware"
)

type JobCounter interface {
	CountByStatus(ctx context.Context, q database.Querier, domainID string) (map[job.Status]int, error)
}

type TargetCounter interface {
	CountEnabled(ctx context.Context, q database.Querier, domainID string) (int, error)
}

type Handler struct {
	jobs    JobCounter
	targets TargetCounter
}

func NewHandler(j JobCounter, t TargetCounter) *Handler {
	return &Handler{jobs: j, targets: t}
}

type StatsResponse struct {
	Pending        int `json:"pending"`
	Publishing     int `json:"publishing"`
	Published      int `json:"published"`
	Failed         int `json:"failed"`
	EnabledTargets int `json:"enabled_targets"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID := r.PathValue("domainId")

	slog.InfoContext(ctx, "getting stats", "domain_id", domainID)

	counts, err := h.jobs.CountByStatus(ctx, nil, domainID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	enabled, err := h.targets.CountEnabled(ctx, nil, domainID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count targets", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count targets", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Pending:        counts[job.StatusPending],
		Publishing:     counts[job.StatusPublishing],
		Published:      counts[job.StatusPublished],
		Failed:         counts[job.StatusFailed],
		EnabledTargets: enabled,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
