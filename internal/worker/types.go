package worker

import (
	"context"
	"time"

	"contentops/backend/features/job"
	"contentops/backend/features/target"
	"contentops/backend/internal/database"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// PublishTask is the delivery request sent to the adapter for the target's type.
type PublishTask struct {
	JobID         string         `json:"job_id"`
	DomainID      string         `json:"domain_id"`
	ContentID     string         `json:"content_id"`
	TargetID      string         `json:"target_id"`
	TargetType    string         `json:"target_type"`
	Config        map[string]any `json:"config"`
	Attempt       int            `json:"attempt"`
	CorrelationID string         `json:"correlation_id"`
}

// PublishResult is what an adapter reports back on the result topic.
type PublishResult struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Lifecycle is the part of the publishing service the workers drive.
type Lifecycle interface {
	ListPending(ctx context.Context, limit int) ([]job.Job, error)
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]job.Job, error)
	Start(ctx context.Context, jobID string) job.Result
	Complete(ctx context.Context, jobID string) job.Result
	Fail(ctx context.Context, jobID, reason string) job.Result
}

type TargetFetcher interface {
	GetByID(ctx context.Context, q database.Querier, id string) (target.Target, bool, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Metrics interface {
	TaskDispatched()
	TaskDispatchFailed()
	JobsTimedOut(n int)
	CreationToDispatch(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) TaskDispatched()                  {}
func (nopMetrics) TaskDispatchFailed()              {}
func (nopMetrics) JobsTimedOut(int)                 {}
func (nopMetrics) CreationToDispatch(time.Duration) {}
