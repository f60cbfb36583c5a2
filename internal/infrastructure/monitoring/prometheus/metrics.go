package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the service exports.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	RunsTotal        CounterVec
	RunDuration      HistogramVec
	RunsInFlight     GaugeVec
	ChartsTotal      CounterVec
	ChartDuration    HistogramVec
	EngineWarnings   CounterVec
	FamiliesAnalyzed HistogramVec

	SourceQueryDuration HistogramVec
	SourceErrorsTotal   CounterVec
	CacheHitsTotal      CounterVec
	CacheMissesTotal    CounterVec

	LLMRequestsTotal   CounterVec
	LLMRequestDuration HistogramVec

	EventsPublishedTotal CounterVec
	ArtifactsWritten     CounterVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultRunDurationBuckets   = []float64{.5, 1, 5, 10, 30, 60, 120, 300, 600}
	DefaultChartDurationBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5}
	DefaultLLMDurationBuckets   = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
	DefaultFamilyCountBuckets   = []float64{0, 10, 100, 1000, 10000, 100000}
)

func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path"),

		RunsTotal:        c.RegisterCounter("report_runs_total", "Report runs by final status", "status"),
		RunDuration:      c.RegisterHistogram("report_run_duration_seconds", "Report run wall time", DefaultRunDurationBuckets, "status"),
		RunsInFlight:     c.RegisterGauge("report_runs_in_flight", "Report runs currently executing"),
		ChartsTotal:      c.RegisterCounter("charts_total", "Charts built by outcome", "chart", "outcome"),
		ChartDuration:    c.RegisterHistogram("chart_build_duration_seconds", "Chart pipeline duration", DefaultChartDurationBuckets, "chart"),
		EngineWarnings:   c.RegisterCounter("engine_warnings_total", "Non-fatal engine warnings", "chart", "kind"),
		FamiliesAnalyzed: c.RegisterHistogram("families_analyzed", "Families per run", DefaultFamilyCountBuckets),

		SourceQueryDuration: c.RegisterHistogram("source_query_duration_seconds", "Person source query duration", DefaultRunDurationBuckets, "source"),
		SourceErrorsTotal:   c.RegisterCounter("source_errors_total", "Person source failures", "source"),
		CacheHitsTotal:      c.RegisterCounter("cache_hits_total", "Cache hits", "cache"),
		CacheMissesTotal:    c.RegisterCounter("cache_misses_total", "Cache misses", "cache"),

		LLMRequestsTotal:   c.RegisterCounter("llm_requests_total", "LLM requests", "backend", "operation", "status"),
		LLMRequestDuration: c.RegisterHistogram("llm_request_duration_seconds", "LLM request duration", DefaultLLMDurationBuckets, "backend", "operation"),

		EventsPublishedTotal: c.RegisterCounter("events_published_total", "Run events published", "event_type", "status"),
		ArtifactsWritten:     c.RegisterCounter("artifacts_written_total", "Run artifacts written", "kind", "store"),
	}
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *AppMetrics) RunStarted() { m.RunsInFlight.WithLabelValues().Inc() }

// RunFinished records a run's final status ("succeeded", "failed" or
// "rejected") and wall time.
func (m *AppMetrics) RunFinished(runStatus string, d time.Duration, families int) {
	m.RunsInFlight.WithLabelValues().Dec()
	m.RunsTotal.WithLabelValues(runStatus).Inc()
	m.RunDuration.WithLabelValues(runStatus).Observe(d.Seconds())
	if families >= 0 {
		m.FamiliesAnalyzed.WithLabelValues().Observe(float64(families))
	}
}

// ChartBuilt records one chart outcome: "built", "skipped" or "failed".
func (m *AppMetrics) ChartBuilt(chart, outcome string, d time.Duration) {
	m.ChartsTotal.WithLabelValues(chart, outcome).Inc()
	m.ChartDuration.WithLabelValues(chart).Observe(d.Seconds())
}

func (m *AppMetrics) EngineWarning(chart, kind string) {
	m.EngineWarnings.WithLabelValues(chart, kind).Inc()
}

func (m *AppMetrics) SourceQuery(source string, d time.Duration, err error) {
	m.SourceQueryDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.SourceErrorsTotal.WithLabelValues(source).Inc()
	}
}

func (m *AppMetrics) CacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func (m *AppMetrics) LLMCall(backend, operation string, ok bool, d time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(backend, operation, status(ok)).Inc()
	m.LLMRequestDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
}

func (m *AppMetrics) EventPublished(eventType string, ok bool) {
	m.EventsPublishedTotal.WithLabelValues(eventType, status(ok)).Inc()
}

func (m *AppMetrics) ArtifactWritten(kind, store string) {
	m.ArtifactsWritten.WithLabelValues(kind, store).Inc()
}
