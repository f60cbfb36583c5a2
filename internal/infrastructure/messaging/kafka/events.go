package kafka

import (
	"context"

	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// RunEvents publishes report lifecycle events.
type RunEvents struct {
	publisher Publisher
	cfg       config.KafkaConfig
	source    string
}

func NewRunEvents(p Publisher, cfg config.KafkaConfig, source string) *RunEvents {
	return &RunEvents{publisher: p, cfg: cfg, source: source}
}

// Request enqueues a report for a worker.
func (e *RunEvents) Request(ctx context.Context, req ReportRequestedPayload) error {
	q := req.Query.Normalized()
	req.Query = q
	return e.publish(ctx, e.cfg.RequestTopic, EventReportRequested, q.Key(), req)
}

func (e *RunEvents) Completed(ctx context.Context, r *run.Run) error {
	p := ReportCompletedPayload{
		RunID:      r.ID.String(),
		Query:      r.Query,
		Charts:     r.Charts,
		Skipped:    r.Skipped,
		Families:   r.Families,
		OutputDir:  r.OutputDir,
		DurationMs: r.Duration().Milliseconds(),
	}
	if r.FinishedAt != nil {
		p.FinishedAt = *r.FinishedAt
	}
	return e.publish(ctx, e.cfg.CompletedTopic, EventReportCompleted, r.Query.Key(), p)
}

// Failed publishes the failure with the error's code.
func (e *RunEvents) Failed(ctx context.Context, r *run.Run, cause error) error {
	p := ReportFailedPayload{
		RunID:     r.ID.String(),
		Query:     r.Query,
		ErrorCode: string(errors.GetCode(cause)),
		Error:     r.Error,
	}
	if r.FinishedAt != nil {
		p.FailedAt = *r.FinishedAt
	}
	return e.publish(ctx, e.cfg.FailedTopic, EventReportFailed, r.Query.Key(), p)
}

func (e *RunEvents) publish(ctx context.Context, topic, eventType, key string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, e.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	return e.publisher.Publish(ctx, msg)
}
