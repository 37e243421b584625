package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentops/backend/internal/config"
)

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// NewProducer does not connect until the first publish
	producer, err := nsq.NewProducer("localhost:4150", nsq.NewConfig())
	require.NoError(t, err)
	t.Cleanup(producer.Stop)

	cfg := &config.Config{
		EnableAPI:         true,
		ServerPort:        8081,
		DispatchInterval:  time.Second,
		DispatchBatchSize: 10,
		PublishStaleAfter: time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(cfg, db, producer, logger)
	require.NoError(t, err)
	return a, mock
}

func TestNew(t *testing.T) {
	a, _ := newTestApp(t)

	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.JobService)
	assert.NotNil(t, a.TargetService)
	assert.NotNil(t, a.Dispatcher)
	assert.NotNil(t, a.ResultConsumer)
	assert.NotNil(t, a.Registry)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNew_NilDatabase(t *testing.T) {
	_, err := New(&config.Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestMetricsRoute(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "publishing_tasks_dispatched_total")
	assert.Contains(t, w.Body.String(), "publishing_creation_to_dispatch_seconds")
}

func TestStatsRoute_UsesDomainFromPath(t *testing.T) {
	a, mock := newTestApp(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM publishing_jobs WHERE domain_id = \$1 GROUP BY status`).
		WithArgs("dom-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 2).
			AddRow("failed", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM publish_targets WHERE domain_id = \$1 AND enabled = TRUE`).
		WithArgs("dom-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	req := httptest.NewRequest("GET", "/domains/dom-1/stats", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "corr-1", w.Header().Get("X-Correlation-ID"))

	var body struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data["pending"])
	assert.Equal(t, 0, body.Data["publishing"])
	assert.Equal(t, 1, body.Data["failed"])
	assert.Equal(t, 3, body.Data["enabled_targets"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRoute_NotFound(t *testing.T) {
	a, mock := newTestApp(t)

	mock.ExpectQuery(`FROM publishing_jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest("GET", "/domains/dom-1/jobs/missing", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRoutes_ScopedToDomain(t *testing.T) {
	jobColumns := []string{"id", "domain_id", "content_id", "target_id", "status", "error_message", "started_at", "completed_at", "attempt_count", "created_at"}

	for _, tc := range []struct {
		method, path string
	}{
		{"GET", "/domains/dom-2/jobs/job-1"},
		{"POST", "/domains/dom-2/jobs/job-1/retry"},
		{"DELETE", "/domains/dom-2/jobs/job-1"},
	} {
		t.Run(tc.method, func(t *testing.T) {
			a, mock := newTestApp(t)
			mock.ExpectQuery(`FROM publishing_jobs WHERE id = \$1`).
				WithArgs("job-1").
				WillReturnRows(sqlmock.NewRows(jobColumns).
					AddRow("job-1", "dom-1", "content-1", "target-1", "failed", "boom", nil, nil, 1, time.Now()))

			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			a.Handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Contains(t, w.Body.String(), `"job not found"`)
			assert.NotContains(t, w.Body.String(), "content-1")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJobRoutes_UnscopedPathsRemoved(t *testing.T) {
	a, mock := newTestApp(t)

	req := httptest.NewRequest("GET", "/jobs/job-1", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRoute_RejectsBadBodyBeforeTouchingStore(t *testing.T) {
	a, mock := newTestApp(t)

	req := httptest.NewRequest("POST", "/domains/dom-1/jobs", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
