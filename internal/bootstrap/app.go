// Package bootstrap assembles the configured infrastructure into the
// reporting service shared by the CLI, the API server and the worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage/local"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-Attribution/internal/intelligence/summarizer"
	httpapi "github.com/turtacn/KeyIP-Attribution/internal/interfaces/http"
	"github.com/turtacn/KeyIP-Attribution/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Attribution/internal/interfaces/http/middleware"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// EventSource is the source field of every published envelope.
const EventSource = "keyip-attribution"

// App holds the wired service and everything that must be closed with it.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
	Service   reporting.Service
	Checkers  []handlers.HealthChecker

	// Producer and Events are nil unless Kafka is enabled.
	Producer *kafka.Producer
	Events   *kafka.RunEvents

	closers []func() error
}

// New connects every enabled backend and builds the reporting service.
// Anything opened before a failure is closed again.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	if err := a.initMetrics(); err != nil {
		return err
	}

	conn, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, conn.Close)
	a.Checkers = append(a.Checkers, handlers.CheckFunc("postgres", conn.HealthCheck))

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(cfg.Database); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrCodeDatabaseError, "ledger migration failed")
		}
		log.Info("Ledger migrations applied")
	}

	deps := reporting.Dependencies{
		Source:  repositories.NewPersonRepository(conn, log),
		Metrics: a.Metrics,
		Logger:  log,
	}
	if cfg.Database.LedgerEnabled {
		deps.Ledger = repositories.NewRunRepository(conn, log)
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.Checkers = append(a.Checkers, handlers.CheckFunc("redis", client.Ping))
		deps.Cache = redis.NewRedisCache(client, log,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
		deps.Guard = redis.NewRunGuard(client, cfg.Redis.RunLockTTL, log)
	}

	if cfg.Kafka.Enabled {
		if err := a.initEvents(); err != nil {
			return err
		}
		deps.Events = meteredEvents{events: a.Events, metrics: a.Metrics}
	}

	store, err := a.initStore(ctx)
	if err != nil {
		return err
	}
	deps.Store = store

	analyzer, err := a.initAnalyzer(ctx)
	if err != nil {
		return err
	}
	if analyzer != nil {
		deps.Analyzer = analyzer
	}

	svc, err := reporting.NewService(reporting.OptionsFrom(cfg.Analysis, cfg.Redis.DefaultTTL), deps)
	if err != nil {
		return err
	}
	a.Service = svc
	log.Info("Reporting service ready",
		logging.Bool("ledger", deps.Ledger != nil),
		logging.Bool("cache", deps.Cache != nil),
		logging.Bool("events", deps.Events != nil),
		logging.Bool("analyzer", deps.Analyzer != nil),
		logging.String("store", store.Name()))
	return nil
}

func (a *App) initMetrics() error {
	cc := prometheus.CollectorConfigFrom(a.Config.Metrics)
	if cc.Namespace == "" {
		cc.Namespace = config.DefaultMetricsNamespace
	}
	collector, err := prometheus.NewMetricsCollector(cc, a.Logger)
	if err != nil {
		return err
	}
	a.Collector = collector
	a.Metrics = prometheus.NewAppMetrics(collector)
	return nil
}

func (a *App) initEvents() error {
	producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(a.Config.Kafka), a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, producer.Close)
	a.Producer = producer
	a.Events = kafka.NewRunEvents(producer, a.Config.Kafka, EventSource)
	return nil
}

// initStore returns the local artifact store, mirrored to MinIO when uploads
// are on.
func (a *App) initStore(ctx context.Context) (storage.Store, error) {
	primary := local.New(a.Config.Output.Dir, a.Logger)
	if !a.Config.Output.Upload {
		return primary, nil
	}
	remote, err := minio.NewStore(ctx, a.Config.MinIO, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Checkers = append(a.Checkers, handlers.CheckFunc("minio", remote.HealthCheck))
	return storage.NewMirrored(primary, a.Logger, remote), nil
}

// initAnalyzer builds the per-query summarizer factory. A backend that cannot
// be constructed is fatal only when summaries are on by default.
func (a *App) initAnalyzer(ctx context.Context) (reporting.AnalyzerFactory, error) {
	client, err := summarizer.NewClient(ctx, a.Config.LLM, a.Logger)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.ErrCodeFeatureDisabled) {
			return nil, nil
		}
		if a.Config.Analysis.Summarize {
			return nil, err
		}
		a.Logger.Warn("Summarizer unavailable, analyses disabled",
			logging.String("backend", a.Config.LLM.Backend), logging.Err(err))
		return nil, nil
	}
	prompts, err := summarizer.NewPrompts(0)
	if err != nil {
		return nil, err
	}
	base := summarizer.New(client, prompts, a.Logger)
	return func(q family.Query) reporting.Analyzer {
		return base.With(
			summarizer.WithCountry(q.Country),
			summarizer.WithPeriod(fmt.Sprintf("%d-%d", q.StartYear, q.EndYear)),
			summarizer.WithObserver(a.Metrics.LLMCall),
		)
	}, nil
}

// Router builds the HTTP route tree over the service. The scrape endpoint is
// mounted only when metrics are enabled.
func (a *App) Router(version string) http.Handler {
	rc := httpapi.RouterConfig{
		ReportHandler: handlers.NewReportHandler(a.Service, a.Logger, a.Config.Server.MaxBodySize),
		HealthHandler: handlers.NewHealthHandler(version, a.Checkers...),
		Logger:        a.Logger,
		Logging:       middleware.DefaultLoggingConfig(),
	}
	if a.Config.Metrics.Enabled {
		rc.MetricsHandler = a.Collector.Handler()
		rc.MetricsPath = a.Config.Metrics.Path
		rc.HTTPMetrics = a.Metrics
	}
	return httpapi.NewRouter(rc)
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewEvents opens a producer for processes that only publish requests.
func NewEvents(cfg *config.Config, logger logging.Logger) (*kafka.RunEvents, func() error, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil, pkgerrors.New(pkgerrors.ErrCodeFeatureDisabled, "kafka is disabled")
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return nil, nil, err
	}
	return kafka.NewRunEvents(producer, cfg.Kafka, EventSource), producer.Close, nil
}

// meteredEvents counts every run event it publishes.
type meteredEvents struct {
	events  *kafka.RunEvents
	metrics *prometheus.AppMetrics
}

func (m meteredEvents) Completed(ctx context.Context, r *run.Run) error {
	err := m.events.Completed(ctx, r)
	m.metrics.EventPublished(kafka.EventReportCompleted, err == nil)
	return err
}

func (m meteredEvents) Failed(ctx context.Context, r *run.Run, cause error) error {
	err := m.events.Failed(ctx, r, cause)
	m.metrics.EventPublished(kafka.EventReportFailed, err == nil)
	return err
}
