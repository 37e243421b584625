package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"contentops/backend/features/job"
	"contentops/backend/internal/middleware"
)

const defaultFailureReason = "publish failed"

// ResultConsumer applies adapter delivery reports to jobs.
type ResultConsumer struct {
	jobs Lifecycle
}

func NewResultConsumer(jobs Lifecycle) *ResultConsumer {
	return &ResultConsumer{jobs: jobs}
}

func (h *ResultConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload PublishResult
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	ctx := context.Background()
	ctx = middleware.WithCorrelationID(ctx, correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	if payload.JobID == "" {
		slog.ErrorContext(ctx, "missing job id, dropping")
		return nil
	}

	var res job.Result
	switch payload.Status {
	case ResultSuccess:
		res = h.jobs.Complete(ctx, payload.JobID)
	case ResultFailed:
		reason := payload.Error
		if reason == "" {
			reason = defaultFailureReason
		}
		res = h.jobs.Fail(ctx, payload.JobID, reason)
	default:
		slog.ErrorContext(ctx, "unknown result status, dropping", "job_id", payload.JobID, "status", payload.Status)
		return nil
	}

	if res.Success {
		slog.InfoContext(ctx, "publish result applied", "job_id", payload.JobID, "status", payload.Status)
		return nil
	}
	if res.Code == job.CodeInternal {
		// Requeue: the store may be back on the next delivery.
		return fmt.Errorf("apply %s result for job %s: %s", payload.Status, payload.JobID, res.Error)
	}
	slog.WarnContext(ctx, "publish result rejected, dropping", "job_id", payload.JobID, "status", payload.Status, "code", res.Code, "error", res.Error)
	return nil
}
