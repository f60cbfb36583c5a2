package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/render"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage"
	"github.com/turtacn/KeyIP-Attribution/internal/intelligence/summarizer"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Chart outcomes reported to metrics.
const (
	outcomeBuilt   = "built"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Options tunes a Service.
type Options struct {
	TopK        int
	Charts      []string
	Concurrency int
	Summarize   bool
	CacheTTL    time.Duration
}

// OptionsFrom maps the analysis section of the configuration.
func OptionsFrom(cfg config.AnalysisConfig, cacheTTL time.Duration) Options {
	return Options{
		TopK:        cfg.TopK,
		Charts:      cfg.Charts,
		Concurrency: cfg.Concurrency,
		Summarize:   cfg.Summarize,
		CacheTTL:    cacheTTL,
	}
}

// Dependencies are the collaborators of a Service. Source and Store are
// required; the rest are optional.
type Dependencies struct {
	Source   family.Repository
	Store    storage.Store
	Ledger   run.Repository
	Cache    RecordCache
	Guard    RunGuard
	Events   RunEvents
	Metrics  Metrics
	Analyzer AnalyzerFactory
	Logger   logging.Logger
	Clock    func() time.Time
}

// ChartResult describes one built chart of a report.
type ChartResult struct {
	Name     string                `json:"name"`
	Title    string                `json:"title"`
	Kind     attribution.Kind      `json:"kind"`
	Entities int                   `json:"entities"`
	Sides    []string              `json:"sides"`
	Warnings []attribution.Warning `json:"warnings,omitempty"`

	chart *attribution.Chart
}

// Chart returns the engine result behind r.
func (r ChartResult) Chart() *attribution.Chart { return r.chart }

// Report is the outcome of one run.
type Report struct {
	RunID     uuid.UUID             `json:"run_id"`
	Query     family.Query          `json:"query"`
	Prefix    string                `json:"prefix"`
	Stats     family.Stats          `json:"stats"`
	Charts    []ChartResult         `json:"charts"`
	Skipped   []string              `json:"skipped,omitempty"`
	Artifacts []storage.Object      `json:"artifacts"`
	Analyses  []summarizer.Analysis `json:"analyses,omitempty"`
	Summary   string                `json:"summary,omitempty"`
	Duration  time.Duration         `json:"duration"`
}

// ChartNames returns the names of the built charts.
func (r *Report) ChartNames() []string {
	out := make([]string, 0, len(r.Charts))
	for _, c := range r.Charts {
		out = append(out, c.Name)
	}
	return out
}

// RunOption overrides a service option for one run.
type RunOption func(*runOptions)

type runOptions struct {
	topK      int
	charts    []string
	summarize bool
}

// WithCharts restricts the run to the named catalog charts. An empty list
// keeps the service default.
func WithCharts(names ...string) RunOption {
	return func(o *runOptions) {
		if len(names) > 0 {
			o.charts = names
		}
	}
}

// WithTopK overrides the number of categories kept per side.
func WithTopK(k int) RunOption {
	return func(o *runOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithSummary turns the language-model analyses on or off.
func WithSummary(on bool) RunOption {
	return func(o *runOptions) { o.summarize = on }
}

func (o Options) resolve(opts []RunOption) runOptions {
	ro := runOptions{topK: o.TopK, charts: o.Charts, summarize: o.Summarize}
	for _, fn := range opts {
		fn(&ro)
	}
	return ro
}

// With returns o with the per-run overrides applied.
func (o Options) With(opts ...RunOption) Options {
	ro := o.resolve(opts)
	o.TopK, o.Charts, o.Summarize = ro.topK, ro.charts, ro.summarize
	return o
}

// ChartView is an ad-hoc chart with its rendering.
type ChartView struct {
	Document ChartDocument `json:"chart"`
	SVG      []byte        `json:"-"`
}

// Service produces applicant/inventor attribution reports.
type Service interface {
	// Run builds, renders and stores every enabled catalog chart for q.
	Run(ctx context.Context, q family.Query, opts ...RunOption) (*Report, error)
	// BuildChart runs one posted chart spec through the engine.
	BuildChart(ctx context.Context, spec attribution.ChartSpec) (*ChartView, error)
	// ListRuns pages through the run ledger, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*run.Run, error)
}

type service struct {
	opts     Options
	source   family.Repository
	store    storage.Store
	ledger   run.Repository
	cache    RecordCache
	guard    RunGuard
	events   RunEvents
	metrics  Metrics
	analyzer AnalyzerFactory
	logger   logging.Logger
	now      func() time.Time
}

// NewService wires a Service.
func NewService(opts Options, deps Dependencies) (Service, error) {
	if deps.Source == nil {
		return nil, pkgerrors.InvalidParam("person source is required")
	}
	if deps.Store == nil {
		return nil, pkgerrors.InvalidParam("artifact store is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	s := &service{
		opts:     opts,
		source:   deps.Source,
		store:    deps.Store,
		ledger:   deps.Ledger,
		cache:    deps.Cache,
		guard:    deps.Guard,
		events:   deps.Events,
		metrics:  deps.Metrics,
		analyzer: deps.Analyzer,
		logger:   deps.Logger,
		now:      deps.Clock,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.Named("reporting")
	return s, nil
}

// OutputPrefix is the artifact directory of a query.
func OutputPrefix(q family.Query) string {
	return fmt.Sprintf("dataTable_%s_%d_%d/applicants_inventors", q.Country, q.StartYear, q.EndYear)
}

func (s *service) Run(ctx context.Context, q family.Query, opts ...RunOption) (*Report, error) {
	q = q.Normalized()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ro := s.opts.resolve(opts)

	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, q.Key())
		if err != nil {
			return nil, err
		}
		defer release()
	}

	rn := run.New(q, s.now())
	rn.OutputDir = OutputPrefix(q)
	log := s.logger.With(logging.String(logging.FieldRunID, rn.ID.String()), logging.String("query", q.Key()))

	if s.ledger != nil {
		if err := s.ledger.Create(ctx, rn); err != nil {
			log.Warn("Failed to record run start", logging.Err(err))
		}
	}
	s.metrics.RunStarted()
	log.Info("Run started")

	report, err := s.execute(ctx, q, ro, rn, log)
	s.finish(ctx, rn, report, err, log)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) execute(ctx context.Context, q family.Query, ro runOptions, rn *run.Run, log logging.Logger) (*Report, error) {
	records, err := s.loadRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: rn.ID, Query: q, Prefix: rn.OutputDir, Stats: family.ComputeStats(records)}
	log.Info("Person records loaded",
		logging.Int("records", len(records)),
		logging.Int("families", report.Stats.Families))

	charts, skipped, err := s.buildCharts(ctx, records, q, ro, log)
	if err != nil {
		return nil, err
	}
	report.Skipped = skipped
	for _, c := range charts {
		report.Charts = append(report.Charts, resultOf(c))
	}

	if err := s.writeArtifacts(ctx, report, charts); err != nil {
		return nil, err
	}
	if ro.summarize && s.analyzer != nil && len(charts) > 0 {
		if err := s.summarize(ctx, report, charts, log); err != nil {
			return nil, err
		}
	}
	report.Duration = s.now().Sub(rn.StartedAt)
	return report, nil
}

// finish closes the run in the ledger, metrics and events. It runs on a
// context detached from the request so a cancelled caller still leaves a
// finished ledger row.
func (s *service) finish(ctx context.Context, rn *run.Run, report *Report, runErr error, log logging.Logger) {
	ctx = context.WithoutCancel(ctx)
	if runErr != nil {
		rn.Fail(runErr, s.now())
	} else {
		rn.Succeed(report.ChartNames(), report.Skipped, report.Stats.Families, s.now())
	}
	s.metrics.RunFinished(string(rn.Status), rn.Duration(), rn.Families)

	if s.ledger != nil {
		if err := s.ledger.Finish(ctx, rn); err != nil {
			log.Warn("Failed to record run result", logging.Err(err))
		}
	}
	if s.events != nil {
		var err error
		if runErr != nil {
			err = s.events.Failed(ctx, rn, runErr)
		} else {
			err = s.events.Completed(ctx, rn)
		}
		if err != nil {
			log.Warn("Failed to publish run event", logging.Err(err))
		}
	}

	if runErr != nil {
		log.Error("Run failed", logging.Err(runErr), logging.Duration("duration", rn.Duration()))
		return
	}
	log.Info("Run finished",
		logging.Strings("charts", rn.Charts),
		logging.Strings("skipped", rn.Skipped),
		logging.Duration("duration", rn.Duration()))
}

func (s *service) loadRecords(ctx context.Context, q family.Query) ([]family.PersonRecord, error) {
	load := func(ctx context.Context) ([]family.PersonRecord, error) {
		start := time.Now()
		recs, err := s.source.FindPersons(ctx, q)
		s.metrics.SourceQuery("persons", time.Since(start), err)
		return recs, err
	}
	if s.cache == nil {
		return load(ctx)
	}

	var records []family.PersonRecord
	missed := false
	err := s.cache.GetOrSet(ctx, "persons:"+q.Key(), &records, s.opts.CacheTTL, func(ctx context.Context) (interface{}, error) {
		missed = true
		return load(ctx)
	})
	s.metrics.CacheAccess("persons", !missed)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// buildCharts runs the enabled catalog through the engine concurrently. All
// charts share one color registry, seeded with every country of the run so
// slot order does not depend on goroutine scheduling.
func (s *service) buildCharts(ctx context.Context, records []family.PersonRecord, q family.Query, ro runOptions, log logging.Logger) ([]*attribution.Chart, []string, error) {
	specs, err := Specs(records, q, ro.topK, ro.charts)
	if err != nil {
		return nil, nil, err
	}
	registry := attribution.NewColorRegistry()
	registry.AssignAll(family.Countries(records))

	built := make([]*attribution.Chart, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			chart, err := attribution.Build(spec, registry)
			d := time.Since(start)
			switch {
			case attribution.IsEmptyInput(err):
				s.metrics.ChartBuilt(spec.Name, outcomeSkipped, d)
				return nil
			case err != nil:
				s.metrics.ChartBuilt(spec.Name, outcomeFailed, d)
				return pkgerrors.Wrap(err, pkgerrors.CodeUnknown, "build chart "+spec.Name)
			}
			s.metrics.ChartBuilt(spec.Name, outcomeBuilt, d)
			for _, w := range chart.Warnings {
				s.metrics.EngineWarning(spec.Name, string(w.Kind))
				log.Warn("Chart warning", logging.String(logging.FieldChart, spec.Name), logging.String("warning", w.String()))
			}
			built[i] = chart
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var charts []*attribution.Chart
	var skipped []string
	for i, c := range built {
		if c == nil {
			skipped = append(skipped, specs[i].Name)
			continue
		}
		charts = append(charts, c)
	}
	return charts, skipped, nil
}

func resultOf(c *attribution.Chart) ChartResult {
	r := ChartResult{
		Name:     c.Spec.Name,
		Title:    c.Spec.Title,
		Kind:     kindOf(c),
		Entities: c.Order.Len(),
		Warnings: c.Warnings,
		chart:    c,
	}
	for _, side := range c.Sides {
		if !side.Empty {
			r.Sides = append(r.Sides, side.Name)
		}
	}
	return r
}

func kindOf(c *attribution.Chart) attribution.Kind {
	if c.Spec.Kind == "" {
		return attribution.KindBar
	}
	return c.Spec.Kind
}

// summarize analyzes every non-empty side table, then folds the analyses
// into one summary. Model failures are logged and leave the analysis out.
func (s *service) summarize(ctx context.Context, report *Report, charts []*attribution.Chart, log logging.Logger) error {
	an := s.analyzer(report.Query)
	for _, c := range charts {
		sides := nonEmptySides(c)
		for _, side := range sides {
			name := c.Spec.Name
			if len(sides) > 1 {
				name += "_" + side.Name
			}
			a, err := an.Analyze(ctx, name, side.Table(), c.Order.Entities...)
			if err != nil {
				log.Warn("Analysis failed", logging.String(logging.FieldChart, name), logging.Err(err))
				continue
			}
			report.Analyses = append(report.Analyses, a)
			if err := s.put(ctx, report, "analysis/"+name+"_analysis.txt", []byte(a.Text), "text/plain; charset=utf-8", "analysis"); err != nil {
				return err
			}
		}
	}
	if len(report.Analyses) == 0 {
		return nil
	}

	summary, err := an.Summarize(ctx, report.Analyses)
	if err != nil {
		log.Warn("Summary failed", logging.Err(err))
		return nil
	}
	report.Summary = summary
	return s.put(ctx, report, "analysis/summary_analysis.txt", []byte(summary), "text/plain; charset=utf-8", "analysis")
}

func nonEmptySides(c *attribution.Chart) []attribution.SideResult {
	var out []attribution.SideResult
	for _, side := range c.Sides {
		if !side.Empty {
			out = append(out, side)
		}
	}
	return out
}

func (s *service) BuildChart(ctx context.Context, spec attribution.ChartSpec) (*ChartView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chart, err := attribution.Build(spec, attribution.NewColorRegistry())
	if err != nil {
		return nil, err
	}
	svg, err := render.SVG(chart, render.Options{})
	if err != nil {
		return nil, err
	}
	return &ChartView{Document: documentOf(chart), SVG: svg}, nil
}

func (s *service) ListRuns(ctx context.Context, limit, offset int) ([]*run.Run, error) {
	if s.ledger == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeFeatureDisabled, "run ledger is disabled")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.List(ctx, limit, offset)
}
