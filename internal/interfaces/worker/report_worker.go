// Package worker runs report requests consumed from Kafka.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Runner executes one report run.
type Runner interface {
	Run(ctx context.Context, q family.Query, opts ...reporting.RunOption) (*reporting.Report, error)
}

// ReportWorker handles report.requested events.
type ReportWorker struct {
	runner  Runner
	logger  logging.Logger
	timeout time.Duration

	completed atomic.Int64
	dropped   atomic.Int64
}

// NewReportWorker creates a ReportWorker. timeout bounds a single run; zero
// leaves the consumer's context alone.
func NewReportWorker(runner Runner, logger logging.Logger, timeout time.Duration) *ReportWorker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ReportWorker{runner: runner, logger: logger.Named("worker.report"), timeout: timeout}
}

// Register subscribes the worker to topic.
func (w *ReportWorker) Register(c *kafka.Consumer, topic string) {
	c.Subscribe(topic, w.Handle)
}

// Handle is a kafka.MessageHandler. A request that can never succeed
// (undecodable, invalid query, unknown chart, a run already in flight) is
// logged and acknowledged. Any other failure is returned so the consumer
// retries and eventually dead-letters it.
func (w *ReportWorker) Handle(ctx context.Context, msg *kafka.Message) error {
	log := w.logger.With(logging.String("topic", msg.Topic), logging.Int64("offset", msg.Offset))

	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return w.drop(log, err)
	}
	if env.EventType != kafka.EventReportRequested {
		log.Debug("Ignoring event", logging.String("event_type", env.EventType))
		return nil
	}
	log = log.With(logging.String("event_id", env.EventID))

	var req kafka.ReportRequestedPayload
	if err := env.DecodePayload(&req); err != nil {
		return w.drop(log, err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	opts := []reporting.RunOption{reporting.WithCharts(req.Charts...), reporting.WithTopK(req.TopK)}
	if req.Summarize != nil {
		opts = append(opts, reporting.WithSummary(*req.Summarize))
	}
	report, err := w.runner.Run(ctx, req.Query, opts...)
	if err != nil {
		if permanent(err) {
			return w.drop(log.With(logging.String("query", req.Query.Key())), err)
		}
		log.Warn("Report run failed, will retry", logging.String("query", req.Query.Key()), logging.Err(err))
		return err
	}

	w.completed.Add(1)
	log.Info("Report request completed",
		logging.String(logging.FieldRunID, report.RunID.String()),
		logging.Strings("charts", report.ChartNames()),
		logging.Int("families", report.Stats.Families))
	return nil
}

// Completed and Dropped count handled requests.
func (w *ReportWorker) Completed() int64 { return w.completed.Load() }

func (w *ReportWorker) Dropped() int64 { return w.dropped.Load() }

func (w *ReportWorker) drop(log logging.Logger, err error) error {
	w.dropped.Add(1)
	log.Warn("Dropping report request",
		logging.String(logging.FieldErrorCode, string(pkgerrors.GetCode(err))),
		logging.Err(err))
	return nil
}

// permanent reports whether retrying err is pointless: every client-side
// code (bad query, empty result, unknown chart, run in progress) qualifies.
func permanent(err error) bool {
	code := pkgerrors.GetCode(err)
	return code != pkgerrors.CodeUnknown && pkgerrors.IsClientError(code)
}
