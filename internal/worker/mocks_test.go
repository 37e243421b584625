package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contentops/backend/features/job"
	"contentops/backend/features/target"
	"contentops/backend/internal/database"
)

// Mocks

type MockLifecycle struct{ mock.Mock }

func (m *MockLifecycle) ListPending(ctx context.Context, limit int) ([]job.Job, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockLifecycle) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]job.Job, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockLifecycle) Start(ctx context.Context, jobID string) job.Result {
	return m.Called(ctx, jobID).Get(0).(job.Result)
}

func (m *MockLifecycle) Complete(ctx context.Context, jobID string) job.Result {
	return m.Called(ctx, jobID).Get(0).(job.Result)
}

func (m *MockLifecycle) Fail(ctx context.Context, jobID, reason string) job.Result {
	return m.Called(ctx, jobID, reason).Get(0).(job.Result)
}

type MockTargetFetcher struct{ mock.Mock }

func (m *MockTargetFetcher) GetByID(ctx context.Context, q database.Querier, id string) (target.Target, bool, error) {
	args := m.Called(ctx, q, id)
	return args.Get(0).(target.Target), args.Bool(1), args.Error(2)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockMetrics struct{ mock.Mock }

func (m *MockMetrics) TaskDispatched()                    { m.Called() }
func (m *MockMetrics) TaskDispatchFailed()                { m.Called() }
func (m *MockMetrics) JobsTimedOut(n int)                 { m.Called(n) }
func (m *MockMetrics) CreationToDispatch(d time.Duration) { m.Called(d) }

// Fixtures

func pendingJob(t *testing.T, id, targetID string) job.Job {
	t.Helper()
	j, err := job.New(id, "dom-1", "content-"+id, targetID)
	require.NoError(t, err)
	return j
}

func startedJob(t *testing.T, id, targetID string) job.Job {
	t.Helper()
	j, err := pendingJob(t, id, targetID).Start()
	require.NoError(t, err)
	return j
}

func ok(j job.Job) job.Result {
	return job.Result{Success: true, Job: &j}
}

func failed(code job.ErrorCode, msg string) job.Result {
	return job.Result{Code: code, Error: msg}
}

func webhookTarget(t *testing.T, id string) target.Target {
	t.Helper()
	tg, err := target.New(id, "dom-1", target.TypeWebhook, target.Config{"url": "https://hooks.example.com/" + id})
	require.NoError(t, err)
	return tg
}
