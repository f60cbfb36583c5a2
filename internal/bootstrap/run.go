package bootstrap

import (
	"context"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/KeyIP-Attribution/internal/interfaces/http"
	"github.com/turtacn/KeyIP-Attribution/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Attribution/internal/interfaces/worker"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Serve runs the HTTP API until ctx is cancelled, then drains it.
func (a *App) Serve(ctx context.Context, version string) error {
	return serveUntilDone(ctx, httpapi.NewServer(a.Config.Server, a.Router(version), a.Logger))
}

// Work consumes report requests until ctx is cancelled. Probes and, when
// enabled, the scrape endpoint are served on the server address meanwhile.
func (a *App) Work(ctx context.Context, version string) error {
	cfg := a.Config
	if !cfg.Kafka.Enabled {
		return pkgerrors.New(pkgerrors.ErrCodeFeatureDisabled, "kafka is disabled")
	}

	a.ensureTopics(ctx)

	var deadLetter kafka.Publisher
	if a.Producer != nil {
		deadLetter = a.Producer
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), deadLetter, a.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			a.Logger.Warn("Consumer close failed", logging.Err(err))
		}
	}()

	// a run must finish before its lock can expire under it
	w := worker.NewReportWorker(a.Service, a.Logger, cfg.Redis.RunLockTTL)
	w.Register(consumer, cfg.Kafka.RequestTopic)
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	rc := httpapi.RouterConfig{HealthHandler: handlers.NewHealthHandler(version, a.Checkers...)}
	if cfg.Metrics.Enabled {
		rc.MetricsHandler = a.Collector.Handler()
		rc.MetricsPath = cfg.Metrics.Path
	}
	err = serveUntilDone(ctx, httpapi.NewServer(cfg.Server, httpapi.NewRouter(rc), a.Logger))

	a.Logger.Info("Worker stopped",
		logging.Int64("completed", w.Completed()),
		logging.Int64("dropped", w.Dropped()),
		logging.Int64("failed", consumer.Failed()),
		logging.Int64("dead_lettered", consumer.DeadLettered()))
	return err
}

// ensureTopics creates the event topics. Brokers that refuse are left to
// their own auto-creation.
func (a *App) ensureTopics(ctx context.Context) {
	tm, err := kafka.NewTopicManager(a.Config.Kafka.Brokers, a.Logger)
	if err != nil {
		a.Logger.Warn("Topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(a.Config.Kafka)); err != nil {
		a.Logger.Warn("Failed to ensure topics", logging.Err(err))
	}
}

type server interface {
	Start() error
	Stop(ctx context.Context) error
}

func serveUntilDone(ctx context.Context, srv server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	// the parent context is already done
	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	return <-errc
}
