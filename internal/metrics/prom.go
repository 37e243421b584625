package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics records publishing activity. It satisfies job.Recorder and the
// dispatcher's metrics port.
type PromMetrics struct {
	outcomes        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	dispatched      prometheus.Counter
	dispatchFailed  prometheus.Counter
	timedOut        prometheus.Counter
	creationToDispatch prometheus.Histogram
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publishing_operations_total",
			Help: "Publishing service operations by outcome code",
		}, []string{"op", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publishing_job_transitions_total",
			Help: "Applied job status transitions",
		}, []string{"from", "to"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publishing_tasks_dispatched_total",
			Help: "Number of delivery tasks handed to the broker",
		}),
		dispatchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publishing_tasks_dispatch_failed_total",
			Help: "Number of claimed jobs that could not be handed to the broker",
		}),
		timedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publishing_jobs_timed_out_total",
			Help: "Number of publishing jobs failed for exceeding the stale window",
		}),
		creationToDispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "publishing_creation_to_dispatch_seconds",
			Help:    "Time from job creation to task dispatch, including time spent failed before a retry",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.outcomes, m.transitions, m.dispatched, m.dispatchFailed, m.timedOut, m.creationToDispatch)
	return m
}

func (m *PromMetrics) Outcome(op, code string) {
	m.outcomes.WithLabelValues(op, code).Inc()
}

func (m *PromMetrics) Transition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *PromMetrics) TaskDispatched() {
	m.dispatched.Inc()
}

func (m *PromMetrics) TaskDispatchFailed() {
	m.dispatchFailed.Inc()
}

func (m *PromMetrics) JobsTimedOut(n int) {
	m.timedOut.Add(float64(n))
}

func (m *PromMetrics) CreationToDispatch(d time.Duration) {
	m.creationToDispatch.Observe(d.Seconds())
}
