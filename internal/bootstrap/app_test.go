package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func testApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a := &App{Config: cfg, Logger: logging.NewNopLogger()}
	require.NoError(t, a.initMetrics())
	return a
}

func scrape(t *testing.T, a *App) string {
	t.Helper()
	w := httptest.NewRecorder()
	a.Collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestInitAnalyzer(t *testing.T) {
	t.Run("disabled backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Backend = config.LLMBackendNone
		cfg.Analysis.Summarize = true

		f, err := testApp(t, cfg).initAnalyzer(context.Background())
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("ollama scoped per query", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Backend = config.LLMBackendOllama

		f, err := testApp(t, cfg).initAnalyzer(context.Background())
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.NotNil(t, f(family.Query{Country: "NO", StartYear: 2010, EndYear: 2020}))
	})

	t.Run("unknown backend without default summaries", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Backend = "watson"
		cfg.Analysis.Summarize = false

		f, err := testApp(t, cfg).initAnalyzer(context.Background())
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("unknown backend with default summaries", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Backend = "watson"
		cfg.Analysis.Summarize = true

		_, err := testApp(t, cfg).initAnalyzer(context.Background())
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeLLMBackendUnknown))
	})
}

func TestInitStore_LocalWithoutUpload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Dir = t.TempDir()
	a := testApp(t, cfg)

	store, err := a.initStore(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())
	assert.Empty(t, a.Checkers)
}

type stubService struct{}

func (stubService) Run(context.Context, family.Query, ...reporting.RunOption) (*reporting.Report, error) {
	return &reporting.Report{}, nil
}

func (stubService) BuildChart(context.Context, attribution.ChartSpec) (*reporting.ChartView, error) {
	return &reporting.ChartView{}, nil
}

func (stubService) ListRuns(context.Context, int, int) ([]*run.Run, error) {
	return nil, nil
}

func TestRouter_MetricsToggle(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := testConfig(t)
		cfg.Metrics.Enabled = enabled
		a := testApp(t, cfg)
		a.Service = stubService{}

		h := a.Router("test")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))

		if enabled {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusNotFound, w.Code)
		}
	}
}

func TestClose_ReverseOrderAndJoinedErrors(t *testing.T) {
	var order []string
	a := &App{closers: []func() error{
		func() error { order = append(order, "postgres"); return nil },
		func() error { order = append(order, "redis"); return assert.AnError },
		func() error { order = append(order, "kafka"); return nil },
	}}

	err := a.Close()

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"kafka", "redis", "postgres"}, order)
	assert.NoError(t, a.Close())
}

func TestNewEvents_KafkaDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kafka.Enabled = false

	_, _, err := NewEvents(cfg, logging.NewNopLogger())

	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeFeatureDisabled))
}

type fakePublisher struct {
	err  error
	sent []*kafka.ProducerMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg *kafka.ProducerMessage) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func TestMeteredEvents(t *testing.T) {
	cfg := testConfig(t)
	a := testApp(t, cfg)
	pub := &fakePublisher{}
	ev := meteredEvents{events: kafka.NewRunEvents(pub, cfg.Kafka, EventSource), metrics: a.Metrics}

	rn := run.New(family.Query{Country: "NO", StartYear: 2010, EndYear: 2020}, time.Now())
	rn.Succeed([]string{"applicants_ratio"}, nil, 3, time.Now())
	require.NoError(t, ev.Completed(context.Background(), rn))

	pub.err = assert.AnError
	assert.Error(t, ev.Failed(context.Background(), rn, pkgerrors.InvalidParam("x")))

	require.Len(t, pub.sent, 1)
	body := scrape(t, a)
	assert.Contains(t, body, `attribution_events_published_total{event_type="report.completed",status="success"} 1`)
	assert.Contains(t, body, `attribution_events_published_total{event_type="report.failed",status="failure"} 1`)
}
