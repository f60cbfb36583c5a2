// Package run models the ledger of report runs.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the run has finished.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Run is one execution of the report service for one query.
type Run struct {
	ID         uuid.UUID    `json:"id"`
	Query      family.Query `json:"query"`
	Status     Status       `json:"status"`
	Charts     []string     `json:"charts"`
	Skipped    []string     `json:"skipped,omitempty"`
	Families   int          `json:"families"`
	OutputDir  string       `json:"output_dir,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// New starts a running run for q.
func New(q family.Query, now time.Time) *Run {
	return &Run{ID: uuid.New(), Query: q, Status: StatusRunning, StartedAt: now.UTC()}
}

// Succeed marks the run finished without error.
func (r *Run) Succeed(charts, skipped []string, families int, now time.Time) {
	t := now.UTC()
	r.Status = StatusSucceeded
	r.Charts = charts
	r.Skipped = skipped
	r.Families = families
	r.FinishedAt = &t
}

// Fail marks the run finished with err.
func (r *Run) Fail(err error, now time.Time) {
	t := now.UTC()
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = &t
}

// Duration is the wall time of a finished run, 0 while running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
