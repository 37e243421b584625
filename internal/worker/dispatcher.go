package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"contentops/backend/features/job"
	"contentops/backend/internal/config"
	"contentops/backend/internal/middleware"
)

const reasonTimedOut = "publish timed out"

type DispatcherConfig struct {
	Interval   time.Duration
	BatchSize  int
	StaleAfter time.Duration
}

// Dispatcher moves pending jobs onto the broker and expires deliveries that never reported back.
type Dispatcher struct {
	jobs    Lifecycle
	targets TargetFetcher
	pub     TaskPublisher
	metrics Metrics
	cfg     DispatcherConfig
	logger  *slog.Logger
}

func NewDispatcher(jobs Lifecycle, targets TargetFetcher, pub TaskPublisher, m Metrics, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if m == nil {
		m = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{jobs: jobs, targets: targets, pub: pub, metrics: m, cfg: cfg, logger: logger}
}

// Run ticks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "dispatcher started", "interval", d.cfg.Interval, "batch_size", d.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one expiry pass and one dispatch pass. It returns the number of tasks handed to the broker.
func (d *Dispatcher) Tick(ctx context.Context) int {
	ctx = middleware.WithCorrelationID(ctx, uuid.New().String())
	d.expireStale(ctx)
	return d.dispatchPending(ctx)
}

func (d *Dispatcher) expireStale(ctx context.Context) {
	stale, err := d.jobs.ListStale(ctx, d.cfg.StaleAfter, d.cfg.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to list stale jobs", "error", err)
		return
	}

	expired := 0
	for _, j := range stale {
		res := d.jobs.Fail(middleware.WithDomainID(ctx, j.DomainID()), j.ID(), reasonTimedOut)
		if !res.Success {
			// A result may have landed between the listing and the write.
			d.logger.WarnContext(ctx, "could not expire job", "job_id", j.ID(), "code", res.Code, "error", res.Error)
			continue
		}
		expired++
	}
	if expired > 0 {
		d.logger.WarnContext(ctx, "expired stale publishing jobs", "count", expired)
		d.metrics.JobsTimedOut(expired)
	}
}

func (d *Dispatcher) dispatchPending(ctx context.Context) int {
	pending, err := d.jobs.ListPending(ctx, d.cfg.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to list pending jobs", "error", err)
		return 0
	}

	sent := 0
	for _, j := range pending {
		if d.dispatch(middleware.WithDomainID(ctx, j.DomainID()), j) {
			sent++
		}
	}
	return sent
}

func (d *Dispatcher) dispatch(ctx context.Context, pending job.Job) bool {
	res := d.jobs.Start(ctx, pending.ID())
	if !res.Success {
		if res.Code == job.CodeConflict || res.Code == job.CodeNotFound {
			d.logger.DebugContext(ctx, "job no longer pending, skipping", "job_id", pending.ID(), "error", res.Error)
		} else {
			d.logger.ErrorContext(ctx, "failed to claim job", "job_id", pending.ID(), "code", res.Code, "error", res.Error)
		}
		return false
	}
	claimed := *res.Job

	t, found, err := d.targets.GetByID(ctx, nil, claimed.TargetID())
	switch {
	case err != nil:
		return d.abort(ctx, claimed, fmt.Sprintf("target lookup failed: %v", err))
	case !found:
		return d.abort(ctx, claimed, "target no longer exists")
	case !t.Enabled():
		return d.abort(ctx, claimed, "target is disabled")
	}

	task := PublishTask{
		JobID:         claimed.ID(),
		DomainID:      claimed.DomainID(),
		ContentID:     claimed.ContentID(),
		TargetID:      t.ID(),
		TargetType:    string(t.Type()),
		Config:        t.Config(),
		Attempt:       claimed.AttemptCount(),
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(task)
	if err != nil {
		return d.abort(ctx, claimed, fmt.Sprintf("encode task: %v", err))
	}

	topic := config.PublishTopic(task.TargetType)
	if err := d.pub.Publish(topic, body); err != nil {
		return d.abort(ctx, claimed, fmt.Sprintf("dispatch failed: %v", err))
	}

	d.metrics.TaskDispatched()
	d.metrics.CreationToDispatch(time.Since(claimed.CreatedAt()))
	d.logger.InfoContext(ctx, "publish task dispatched", "job_id", claimed.ID(), "topic", topic, "attempt", claimed.AttemptCount())
	return true
}

func (d *Dispatcher) abort(ctx context.Context, claimed job.Job, reason string) bool {
	d.metrics.TaskDispatchFailed()
	d.logger.WarnContext(ctx, "dispatch aborted", "job_id", claimed.ID(), "reason", reason)
	if res := d.jobs.Fail(ctx, claimed.ID(), reason); !res.Success {
		d.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", claimed.ID(), "code", res.Code, "error", res.Error)
	}
	return false
}
