package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"contentops/backend/features/target"
	"contentops/backend/internal/database"
)

// MaxIdentifierLength bounds every identifier accepted by the service.
const MaxIdentifierLength = 255

type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeForbidden  ErrorCode = "FORBIDDEN"
	CodeConflict   ErrorCode = "CONFLICT"
	CodeInternal   ErrorCode = "INTERNAL_ERROR"
)

const msgInternal = "internal error"

// Result is the outcome of a lifecycle operation. Failures carry a human readable
// message and a code; they are never reported through a panic or a Go error.
type Result struct {
	Success bool      `json:"success"`
	Job     *Job      `json:"job,omitempty"`
	Error   string    `json:"error,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
}

func ok(j *Job) Result {
	return Result{Success: true, Job: j}
}

func failure(code ErrorCode, format string, args ...any) Result {
	return Result{Code: code, Error: fmt.Sprintf(format, args...)}
}

// TargetRepository is the part of the target store the service reads.
type TargetRepository interface {
	GetByID(ctx context.Context, q database.Querier, id string) (target.Target, bool, error)
}

// IDGenerator produces ids for new jobs.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// Recorder receives operation outcomes and status transitions.
type Recorder interface {
	Outcome(op, code string)
	Transition(from, to string)
}

type nopRecorder struct{}

func (nopRecorder) Outcome(string, string)    {}
func (nopRecorder) Transition(string, string) {}

type Option func(*Service)

func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.rec = r }
}

// Service is the only component that changes job state.
type Service struct {
	pool    database.Source
	jobs    Repository
	targets TargetRepository
	ids     IDGenerator
	rec     Recorder
	logger  *slog.Logger
}

func NewService(pool database.Source, jobs Repository, targets TargetRepository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		pool:    pool,
		jobs:    jobs,
		targets: targets,
		ids:     uuidGenerator{},
		rec:     nopRecorder{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish creates a pending job for content on a target owned by domainID. The ownership
// check and the insert run in one transaction on one connection.
func (s *Service) Publish(ctx context.Context, domainID, contentID, targetID string) (res Result) {
	defer s.finish(ctx, "publish", &res)

	for _, f := range []struct{ name, value string }{
		{"domainId", domainID},
		{"contentId", contentID},
		{"targetId", targetID},
	} {
		if r, bad := checkIdentifier(f.name, f.value); bad {
			return r
		}
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return s.internal(ctx, "publish", "acquire connection", err)
	}
	defer func() {
		if err := conn.Release(); err != nil {
			s.logger.WarnContext(ctx, "failed to release connection", "error", err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return s.internal(ctx, "publish", "begin transaction", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "failed to roll back publish", "error", err)
		}
	}()

	t, found, err := s.targets.GetByID(ctx, tx, targetID)
	var corrupt *target.CorruptError
	if errors.As(err, &corrupt) {
		// Ownership first: another domain learns nothing about the stored config.
		if corrupt.DomainID != domainID {
			s.logger.WarnContext(ctx, "cross-domain publish rejected", "target_id", targetID, "domain_id", domainID)
			return failure(CodeForbidden, "target does not belong to domain")
		}
		s.logger.WarnContext(ctx, "stored target failed validation", "target_id", targetID, "error", err)
		return failure(CodeValidation, "target configuration is invalid")
	}
	if err != nil {
		return s.internal(ctx, "publish", "load target", err)
	}
	if !found {
		return failure(CodeNotFound, "target not found")
	}
	if !t.BelongsTo(domainID) {
		s.logger.WarnContext(ctx, "cross-domain publish rejected", "target_id", targetID, "domain_id", domainID)
		return failure(CodeForbidden, "target does not belong to domain")
	}
	if !t.Enabled() {
		return failure(CodeConflict, "target is disabled")
	}

	j, err := New(s.ids.NewID(), domainID, contentID, targetID)
	if err != nil {
		return s.internal(ctx, "publish", "build job", err)
	}
	if err := s.jobs.Create(ctx, tx, j); err != nil {
		return s.internal(ctx, "publish", "create job", err)
	}
	if err := tx.Commit(); err != nil {
		return s.internal(ctx, "publish", "commit", err)
	}
	committed = true

	s.logger.InfoContext(ctx, "publishing job created", "job_id", j.ID(), "target_id", targetID, "target_type", t.Type())
	return ok(&j)
}

// Retry moves a failed job back to pending.
func (s *Service) Retry(ctx context.Context, jobID string) (res Result) {
	defer s.finish(ctx, "retry", &res)
	return s.retry(ctx, "", jobID)
}

// RetryInDomain is Retry for a caller scoped to domainID. Jobs of other domains
// are reported as not found.
func (s *Service) RetryInDomain(ctx context.Context, domainID, jobID string) (res Result) {
	defer s.finish(ctx, "retry", &res)
	if r, bad := checkIdentifier("domainId", domainID); bad {
		return r
	}
	return s.retry(ctx, domainID, jobID)
}

func (s *Service) retry(ctx context.Context, domainID, jobID string) Result {
	return s.transition(ctx, "retry", domainID, jobID, func(j Job) (Job, *Result) {
		if !j.CanRetry() {
			r := failure(CodeConflict, "job cannot be retried (status: %s)", j.Status())
			return Job{}, &r
		}
		next, err := j.Retry()
		return next, transitionFailure(err)
	}, "job cannot be retried: status changed concurrently")
}

// Cancel deletes a job that has not started yet.
func (s *Service) Cancel(ctx context.Context, jobID string) (res Result) {
	defer s.finish(ctx, "cancel", &res)
	return s.cancel(ctx, "", jobID)
}

// CancelInDomain is Cancel for a caller scoped to domainID.
func (s *Service) CancelInDomain(ctx context.Context, domainID, jobID string) (res Result) {
	defer s.finish(ctx, "cancel", &res)
	if r, bad := checkIdentifier("domainId", domainID); bad {
		return r
	}
	return s.cancel(ctx, domainID, jobID)
}

func (s *Service) cancel(ctx context.Context, domainID, jobID string) Result {
	if r, bad := checkIdentifier("jobId", jobID); bad {
		return r
	}
	j, found, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return s.internal(ctx, "cancel", "load job", err)
	}
	if !found || !visible(j, domainID) {
		return failure(CodeNotFound, "job not found")
	}
	if j.Status() != StatusPending {
		return failure(CodeConflict, "Cannot cancel a job in state %s", j.Status())
	}
	err = s.jobs.DeleteIfStatus(ctx, nil, jobID, StatusPending)
	if errors.Is(err, ErrStaleState) {
		return failure(CodeConflict, "Cannot cancel a job whose state changed concurrently")
	}
	if err != nil {
		return s.internal(ctx, "cancel", "delete job", err)
	}
	s.logger.InfoContext(ctx, "publishing job cancelled", "job_id", jobID)
	return Result{Success: true}
}

// Start claims a pending job for delivery.
func (s *Service) Start(ctx context.Context, jobID string) (res Result) {
	defer s.finish(ctx, "start", &res)
	return s.transition(ctx, "start", "", jobID, func(j Job) (Job, *Result) {
		next, err := j.Start()
		return next, transitionFailure(err)
	}, "job was claimed concurrently")
}

// Complete marks a publishing job as published.
func (s *Service) Complete(ctx context.Context, jobID string) (res Result) {
	defer s.finish(ctx, "complete", &res)
	return s.transition(ctx, "complete", "", jobID, func(j Job) (Job, *Result) {
		next, err := j.Succeed()
		return next, transitionFailure(err)
	}, "job state changed concurrently")
}

// Fail marks a publishing job as failed with reason.
func (s *Service) Fail(ctx context.Context, jobID, reason string) (res Result) {
	defer s.finish(ctx, "fail", &res)
	return s.transition(ctx, "fail", "", jobID, func(j Job) (Job, *Result) {
		next, err := j.Fail(reason)
		return next, transitionFailure(err)
	}, "job state changed concurrently")
}

// GetInDomain loads a job only if it belongs to domainID.
func (s *Service) GetInDomain(ctx context.Context, domainID, jobID string) (Job, bool, error) {
	j, found, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil || !found || !visible(j, domainID) {
		return Job{}, false, err
	}
	return j, true, nil
}

func (s *Service) List(ctx context.Context, domainID string, limit int) ([]Job, error) {
	return s.jobs.ListByDomain(ctx, nil, domainID, limit)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]Job, error) {
	return s.jobs.ListPending(ctx, nil, limit)
}

// ListStale returns publishing jobs started more than olderThan ago.
func (s *Service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Job, error) {
	return s.jobs.ListStale(ctx, nil, time.Now().UTC().Add(-olderThan), limit)
}

func (s *Service) Stats(ctx context.Context, domainID string) (map[Status]int, error) {
	return s.jobs.CountByStatus(ctx, nil, domainID)
}

// transition loads a job, applies step and writes the result only if the stored status
// still equals the status the step was computed from. A non-empty domainID hides jobs
// of other domains.
func (s *Service) transition(ctx context.Context, op, domainID, jobID string, step func(Job) (Job, *Result), staleMsg string) Result {
	if r, bad := checkIdentifier("jobId", jobID); bad {
		return r
	}
	j, found, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return s.internal(ctx, op, "load job", err)
	}
	if !found || !visible(j, domainID) {
		return failure(CodeNotFound, "job not found")
	}
	next, fail := step(j)
	if fail != nil {
		return *fail
	}
	err = s.jobs.UpdateIfStatus(ctx, nil, next, j.Status())
	if errors.Is(err, ErrStaleState) {
		return failure(CodeConflict, "%s", staleMsg)
	}
	if err != nil {
		return s.internal(ctx, op, "update job", err)
	}
	s.rec.Transition(string(j.Status()), string(next.Status()))
	s.logger.InfoContext(ctx, "publishing job transitioned", "op", op, "job_id", jobID, "from", j.Status(), "to", next.Status())
	return ok(&next)
}

func visible(j Job, domainID string) bool {
	return domainID == "" || j.DomainID() == domainID
}

func transitionFailure(err error) *Result {
	if err == nil {
		return nil
	}
	r := failure(CodeConflict, "%s", err.Error())
	return &r
}

func (s *Service) internal(ctx context.Context, op, step string, err error) Result {
	s.logger.ErrorContext(ctx, "publishing operation failed", "op", op, "step", step, "error", err)
	return failure(CodeInternal, msgInternal)
}

// finish turns a panic into an internal failure and records the outcome. It must be the
// first deferred call so connection cleanup has already run when it recovers.
func (s *Service) finish(ctx context.Context, op string, res *Result) {
	if p := recover(); p != nil {
		s.logger.ErrorContext(ctx, "publishing operation panicked", "op", op, "panic", p)
		*res = failure(CodeInternal, msgInternal)
	}
	code := "OK"
	if !res.Success {
		code = string(res.Code)
	}
	s.rec.Outcome(op, code)
}

func checkIdentifier(field, value string) (Result, bool) {
	if value == "" {
		return failure(CodeValidation, "%s is required", field), true
	}
	if len(value) > MaxIdentifierLength {
		return failure(CodeValidation, "%s must be at most %d characters", field, MaxIdentifierLength), true
	}
	return Result{}, false
}
