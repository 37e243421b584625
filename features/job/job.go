package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinIDLength is the shortest job id accepted by New and Reconstitute.
const MinIDLength = 3

type Status string

const (
	StatusPending    Status = "pending"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusPublishing, StatusPublished, StatusFailed}

var transitions = map[Status][]Status{
	StatusPending:    {StatusPublishing},
	StatusPublishing: {StatusPublished, StatusFailed},
	StatusFailed:     {StatusPending},
	StatusPublished:  nil,
}

var (
	ErrInvalidJob        = errors.New("invalid job")
	ErrInvalidTransition = errors.New("invalid transition")
)

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Next returns the statuses reachable from s in one transition.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports a transition the state machine does not allow.
type TransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		names := make([]string, len(e.Allowed))
		for i, s := range e.Allowed {
			names[i] = string(s)
		}
		allowed = strings.Join(names, ", ")
	}
	return fmt.Sprintf("invalid transition from %s to %s (allowed: %s)", e.From, e.To, allowed)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// Job is one attempt to deliver one piece of content to one publish target.
// It is a value: transitions return a new Job and leave the receiver untouched.
type Job struct {
	id           string
	domainID     string
	contentID    string
	targetID     string
	status       Status
	errorMessage string
	startedAt    *time.Time
	completedAt  *time.Time
	attemptCount int
	createdAt    time.Time
}

// Snapshot is the exported, storage and wire friendly form of a Job.
type Snapshot struct {
	ID           string     `json:"id"`
	DomainID     string     `json:"domain_id"`
	ContentID    string     `json:"content_id"`
	TargetID     string     `json:"target_id"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

// New creates a pending job.
func New(id, domainID, contentID, targetID string) (Job, error) {
	j := Job{
		id:        id,
		domainID:  domainID,
		contentID: contentID,
		targetID:  targetID,
		status:    StatusPending,
		createdAt: now(),
	}
	if err := j.validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// Reconstitute rebuilds a job loaded from storage.
func Reconstitute(s Snapshot) (Job, error) {
	j := Job{
		id:           s.ID,
		domainID:     s.DomainID,
		contentID:    s.ContentID,
		targetID:     s.TargetID,
		status:       s.Status,
		errorMessage: s.ErrorMessage,
		startedAt:    copyTime(s.StartedAt),
		completedAt:  copyTime(s.CompletedAt),
		attemptCount: s.AttemptCount,
		createdAt:    s.CreatedAt,
	}
	if err := j.validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

func (j Job) validate() error {
	switch {
	case strings.TrimSpace(j.id) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidJob)
	case len(j.id) < MinIDLength:
		return fmt.Errorf("%w: id must be at least %d characters", ErrInvalidJob, MinIDLength)
	case j.domainID == "":
		return fmt.Errorf("%w: domain id is required", ErrInvalidJob)
	case j.contentID == "":
		return fmt.Errorf("%w: content id is required", ErrInvalidJob)
	case j.targetID == "":
		return fmt.Errorf("%w: target id is required", ErrInvalidJob)
	case !j.status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, j.status)
	case j.attemptCount < 0:
		return fmt.Errorf("%w: attempt count must not be negative", ErrInvalidJob)
	}
	return nil
}

func (j Job) ID() string           { return j.id }
func (j Job) DomainID() string     { return j.domainID }
func (j Job) ContentID() string    { return j.contentID }
func (j Job) TargetID() string     { return j.targetID }
func (j Job) Status() Status       { return j.status }
func (j Job) ErrorMessage() string { return j.errorMessage }
func (j Job) AttemptCount() int    { return j.attemptCount }
func (j Job) CreatedAt() time.Time { return j.createdAt }

func (j Job) StartedAt() *time.Time   { return copyTime(j.startedAt) }
func (j Job) CompletedAt() *time.Time { return copyTime(j.completedAt) }

func (j Job) CanRetry() bool {
	return j.status == StatusFailed
}

func (j Job) IsTerminal() bool {
	return j.status == StatusPublished || j.status == StatusFailed
}

// Start moves a pending job to publishing and counts the attempt.
func (j Job) Start() (Job, error) {
	if err := j.guard(StatusPublishing); err != nil {
		return Job{}, err
	}
	t := now()
	next := j
	next.status = StatusPublishing
	next.startedAt = &t
	next.attemptCount = j.attemptCount + 1
	return next, nil
}

func (j Job) Succeed() (Job, error) {
	if err := j.guard(StatusPublished); err != nil {
		return Job{}, err
	}
	t := now()
	next := j
	next.status = StatusPublished
	next.completedAt = &t
	return next, nil
}

// Fail records the failure reason on the returned job.
func (j Job) Fail(reason string) (Job, error) {
	if err := j.guard(StatusFailed); err != nil {
		return Job{}, err
	}
	t := now()
	next := j
	next.status = StatusFailed
	next.errorMessage = reason
	next.completedAt = &t
	return next, nil
}

// Retry puts a failed job back in the queue with a fresh attempt history.
func (j Job) Retry() (Job, error) {
	if err := j.guard(StatusPending); err != nil {
		return Job{}, err
	}
	next := j
	next.status = StatusPending
	next.errorMessage = ""
	next.startedAt = nil
	next.completedAt = nil
	next.attemptCount = 0
	return next, nil
}

func (j Job) guard(to Status) error {
	if j.status.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{From: j.status, To: to, Allowed: j.status.Next()}
}

func (j Job) Snapshot() Snapshot {
	return Snapshot{
		ID:           j.id,
		DomainID:     j.domainID,
		ContentID:    j.contentID,
		TargetID:     j.targetID,
		Status:       j.status,
		ErrorMessage: j.errorMessage,
		StartedAt:    copyTime(j.startedAt),
		CompletedAt:  copyTime(j.completedAt),
		AttemptCount: j.attemptCount,
		CreatedAt:    j.createdAt,
	}
}

func (j Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Snapshot())
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
