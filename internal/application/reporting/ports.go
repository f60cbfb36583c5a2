package reporting

import (
	"context"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/intelligence/summarizer"
)

// RunGuard serializes runs of the same query across processes.
type RunGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RecordCache fronts the person source.
type RecordCache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
}

// RunEvents announces finished runs.
type RunEvents interface {
	Completed(ctx context.Context, r *run.Run) error
	Failed(ctx context.Context, r *run.Run, cause error) error
}

// Metrics receives run, chart, source and artifact measurements.
type Metrics interface {
	RunStarted()
	RunFinished(status string, d time.Duration, families int)
	ChartBuilt(chart, outcome string, d time.Duration)
	EngineWarning(chart, kind string)
	SourceQuery(source string, d time.Duration, err error)
	CacheAccess(cache string, hit bool)
	ArtifactWritten(kind, store string)
}

// Analyzer writes natural-language analyses of chart tables.
type Analyzer interface {
	Analyze(ctx context.Context, name string, table *attribution.Table, order ...string) (summarizer.Analysis, error)
	Summarize(ctx context.Context, analyses []summarizer.Analysis) (string, error)
}

// AnalyzerFactory scopes an Analyzer to one query.
type AnalyzerFactory func(q family.Query) Analyzer

type noopMetrics struct{}

func (noopMetrics) RunStarted() {}
func (noopMetrics) RunFinished(string, time.Duration, int) {}
func (noopMetrics) ChartBuilt(string, string, time.Duration) {}
func (noopMetrics) EngineWarning(string, string) {}
func (noopMetrics) SourceQuery(string, time.Duration, error) {}
func (noopMetrics) CacheAccess(string, bool) {}
func (noopMetrics) ArtifactWritten(string, string) {}
