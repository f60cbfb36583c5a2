package reporting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage/local"
	"github.com/turtacn/KeyIP-Attribution/internal/intelligence/summarizer"
	"github.com/turtacn/KeyIP-Attribution/internal/testutil"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

func sampleRecords() []family.PersonRecord {
	return []family.PersonRecord{
		{FamilyID: "F1", PersonID: "P1", Country: "NO", Applicant: true, Individual: true},
		{FamilyID: "F1", PersonID: "P2", Country: "NO", Inventor: true},
		{FamilyID: "F1", PersonID: "P3", Country: "SE", Inventor: true},
		{FamilyID: "F2", PersonID: "P4", Country: "US", Applicant: true},
		{FamilyID: "F2", PersonID: "P5", Country: "NO", Applicant: true, Individual: true},
		{FamilyID: "F2", PersonID: "P6", Country: "US", Inventor: true},
		{FamilyID: "F2", PersonID: "P7", Country: "DE", Inventor: true},
		{FamilyID: "F3", PersonID: "P8", Country: "SE", Applicant: true},
		{FamilyID: "F3", PersonID: "P9", Country: "SE", Inventor: true, Individual: true},
	}
}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type mockSource struct{ mock.Mock }

func (m *mockSource) FindPersons(ctx context.Context, q family.Query) ([]family.PersonRecord, error) {
	args := m.Called(ctx, q)
	recs, _ := args.Get(0).([]family.PersonRecord)
	return recs, args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Create(ctx context.Context, r *run.Run) error { return m.Called(ctx, r).Error(0) }
func (m *mockLedger) Finish(ctx context.Context, r *run.Run) error { return m.Called(ctx, r).Error(0) }

func (m *mockLedger) Get(ctx context.Context, id uuid.UUID) (*run.Run, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*run.Run)
	return r, args.Error(1)
}

func (m *mockLedger) List(ctx context.Context, limit, offset int) ([]*run.Run, error) {
	args := m.Called(ctx, limit, offset)
	r, _ := args.Get(0).([]*run.Run)
	return r, args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Completed(ctx context.Context, r *run.Run) error { return m.Called(ctx, r).Error(0) }
func (m *mockEvents) Failed(ctx context.Context, r *run.Run, cause error) error {
	return m.Called(ctx, r, cause).Error(0)
}

type fakeGuard struct {
	err      error
	keys     []string
	released int
}

func (g *fakeGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.keys = append(g.keys, key)
	if g.err != nil {
		return nil, g.err
	}
	return func() { g.released++ }, nil
}

type fakeCache struct {
	stored map[string][]family.PersonRecord
}

func (c *fakeCache) GetOrSet(ctx context.Context, key string, dest interface{}, _ time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	if recs, ok := c.stored[key]; ok {
		*dest.(*[]family.PersonRecord) = recs
		return nil
	}
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	recs := v.([]family.PersonRecord)
	c.stored[key] = recs
	*dest.(*[]family.PersonRecord) = recs
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	charts   map[string]string
	statuses []string
	cache    []bool
	written  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{charts: make(map[string]string)}
}

func (m *recordingMetrics) RunStarted() {}
func (m *recordingMetrics) RunFinished(status string, _ time.Duration, _ int) {
	m.statuses = append(m.statuses, status)
}
func (m *recordingMetrics) ChartBuilt(chart, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charts[chart] = outcome
}
func (m *recordingMetrics) EngineWarning(string, string)             {}
func (m *recordingMetrics) SourceQuery(string, time.Duration, error) {}
func (m *recordingMetrics) CacheAccess(_ string, hit bool)           { m.cache = append(m.cache, hit) }
func (m *recordingMetrics) ArtifactWritten(string, string)           { m.written++ }

type fakeAnalyzer struct {
	fail  string
	names []string
	seen  int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, name string, _ *attribution.Table, _ ...string) (summarizer.Analysis, error) {
	if name == a.fail {
		return summarizer.Analysis{}, pkgerrors.New(pkgerrors.ErrCodeLLMUnavailable, "down")
	}
	a.names = append(a.names, name)
	return summarizer.Analysis{Name: name, Text: "about " + name}, nil
}

func (a *fakeAnalyzer) Summarize(_ context.Context, analyses []summarizer.Analysis) (string, error) {
	a.seen = len(analyses)
	return "overall", nil
}

type fixture struct {
	source  *mockSource
	ledger  *mockLedger
	events  *mockEvents
	guard   *fakeGuard
	metrics *recordingMetrics
	store   *local.Store
	svc     Service
}

func newFixture(t *testing.T, opts Options, tweak func(*Dependencies)) *fixture {
	t.Helper()
	f := &fixture{
		source:  new(mockSource),
		ledger:  new(mockLedger),
		events:  new(mockEvents),
		guard:   &fakeGuard{},
		metrics: newRecordingMetrics(),
		store:   local.NewWithFs(afero.NewMemMapFs(), "/out", logging.NewNopLogger()),
	}
	deps := Dependencies{
		Source:  f.source,
		Store:   f.store,
		Ledger:  f.ledger,
		Guard:   f.guard,
		Events:  f.events,
		Metrics: f.metrics,
		Logger:  logging.NewNopLogger(),
	}
	if tweak != nil {
		tweak(&deps)
	}
	svc, err := NewService(opts, deps)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) exists(t *testing.T, rel string) bool {
	t.Helper()
	ok, err := f.store.Exists(context.Background(), OutputPrefix(testQuery)+"/"+rel)
	require.NoError(t, err)
	return ok
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewService_RequiresSourceAndStore(t *testing.T) {
	_, err := NewService(Options{}, Dependencies{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))

	_, err = NewService(Options{}, Dependencies{Source: new(mockSource)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
}

func TestRun_BuildsEveryChart(t *testing.T) {
	f := newFixture(t, Options{TopK: 3, Concurrency: 3}, nil)
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil).Once()
	f.ledger.On("Create", mock.Anything, mock.AnythingOfType("*run.Run")).Return(nil).Once()
	f.ledger.On("Finish", mock.Anything, mock.MatchedBy(func(r *run.Run) bool {
		return r.Status == run.StatusSucceeded && len(r.Charts) == len(ChartNames()) && r.Families == 3
	})).Return(nil).Once()
	f.events.On("Completed", mock.Anything, mock.AnythingOfType("*run.Run")).Return(nil).Once()

	report, err := f.svc.Run(context.Background(), family.Query{Country: " no ", StartYear: 2020, EndYear: 2021})
	require.NoError(t, err)

	assert.Equal(t, testQuery, report.Query)
	assert.Equal(t, "dataTable_NO_2020_2021/applicants_inventors", report.Prefix)
	assert.Equal(t, ChartNames(), report.ChartNames())
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 3, report.Stats.Families)

	for _, name := range ChartNames() {
		assert.True(t, f.exists(t, "data/"+name+".csv"), name)
		assert.True(t, f.exists(t, "data/"+name+".json"), name)
		assert.True(t, f.exists(t, "charts/"+name+".svg"), name)
		assert.Equal(t, outcomeBuilt, f.metrics.charts[name], name)
	}
	assert.True(t, f.exists(t, "charts/individual_split_layout.json"))
	assert.False(t, f.exists(t, "charts/individual_applicant_ratio_layout.json"))
	assert.True(t, f.exists(t, "data/stats.json"))
	assert.Equal(t, len(report.Artifacts), f.metrics.written)

	assert.Equal(t, []string{"NO_2020_2021"}, f.guard.keys)
	assert.Equal(t, 1, f.guard.released)
	assert.Equal(t, []string{string(run.StatusSucceeded)}, f.metrics.statuses)
	f.source.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestRun_SharedColorsAcrossCharts(t *testing.T) {
	f := newFixture(t, Options{TopK: 10}, func(d *Dependencies) { d.Ledger, d.Events = nil, nil })
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil)

	report, err := f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)

	seen := make(map[string]attribution.Slot)
	for _, c := range report.Charts {
		for cat, slot := range c.Chart().Colors {
			if prev, ok := seen[cat]; ok {
				assert.Equal(t, prev, slot, cat)
			}
			seen[cat] = slot
		}
	}
	// countries are registered in sorted order
	assert.Less(t, seen["DE"].Index, seen["NO"].Index)
	assert.Less(t, seen["NO"].Index, seen["SE"].Index)
}

func TestRun_CSVFollowsDisplayOrder(t *testing.T) {
	f := newFixture(t, Options{Charts: []string{ChartApplicantsCount}}, func(d *Dependencies) { d.Ledger, d.Events = nil, nil })
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil)

	report, err := f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, report.Charts, 1)

	data, err := f.store.Get(context.Background(), OutputPrefix(testQuery)+"/data/applicants_count.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "side,entity,category,value", lines[0])
	// F1 and F2 both have one NO applicant; F3 has none
	assert.True(t, strings.HasPrefix(lines[1], "applicants,F1,"))
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "applicants,F3,"))
}

func TestRun_EmptySourceSkipsCharts(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.source.On("FindPersons", mock.Anything, testQuery).Return([]family.PersonRecord{}, nil)
	f.ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.ledger.On("Finish", mock.Anything, mock.MatchedBy(func(r *run.Run) bool {
		return r.Status == run.StatusSucceeded && len(r.Skipped) == len(ChartNames()) && len(r.Charts) == 0
	})).Return(nil).Once()
	f.events.On("Completed", mock.Anything, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Empty(t, report.Charts)
	assert.Equal(t, ChartNames(), report.Skipped)
	assert.Equal(t, outcomeSkipped, f.metrics.charts[ChartIndividualSplit])
	assert.True(t, f.exists(t, "data/stats.csv"))
	f.ledger.AssertExpectations(t)
}

func TestRun_GuardRejects(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.guard.err = pkgerrors.New(pkgerrors.ErrCodeRunInProgress, "busy")

	_, err := f.svc.Run(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeRunInProgress))
	f.source.AssertNotCalled(t, "FindPersons", mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRun_InvalidQuery(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	_, err := f.svc.Run(context.Background(), family.Query{Country: "NOR", StartYear: 2020, EndYear: 2021})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
	assert.Empty(t, f.guard.keys)
}

func TestRun_SourceFailure(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	srcErr := pkgerrors.New(pkgerrors.ErrCodeDataSourceUnavailable, "db down")
	f.source.On("FindPersons", mock.Anything, testQuery).Return(nil, srcErr)
	f.ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.ledger.On("Finish", mock.Anything, mock.MatchedBy(func(r *run.Run) bool {
		return r.Status == run.StatusFailed && strings.Contains(r.Error, "db down")
	})).Return(nil).Once()
	f.events.On("Failed", mock.Anything, mock.Anything, srcErr).Return(nil).Once()

	_, err := f.svc.Run(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDataSourceUnavailable))
	assert.Equal(t, []string{string(run.StatusFailed)}, f.metrics.statuses)
	assert.Equal(t, 1, f.guard.released)
	f.ledger.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestRun_LedgerAndEventFailuresAreNotFatal(t *testing.T) {
	logger := testutil.NewRecordingLogger()
	f := newFixture(t, Options{Charts: []string{ChartInventorsRatio}}, func(d *Dependencies) { d.Logger = logger })
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil)
	f.ledger.On("Create", mock.Anything, mock.Anything).Return(errors.New("ledger down"))
	f.ledger.On("Finish", mock.Anything, mock.Anything).Return(errors.New("ledger down"))
	f.events.On("Completed", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	report, err := f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{ChartInventorsRatio}, report.ChartNames())

	assert.True(t, logger.Has(logging.LevelWarn, "Failed to record run start"))
	assert.True(t, logger.Has(logging.LevelWarn, "Failed to record run result"))
	assert.True(t, logger.Has(logging.LevelWarn, "Failed to publish run event"))
	for _, e := range logger.Filter(logging.LevelWarn) {
		assert.Equal(t, "reporting", e.Logger)
		_, ok := e.Field(logging.FieldRunID)
		assert.True(t, ok, e.Message)
	}
}

func TestRun_UsesCache(t *testing.T) {
	cache := &fakeCache{stored: make(map[string][]family.PersonRecord)}
	f := newFixture(t, Options{Charts: []string{ChartApplicantsRatio}}, func(d *Dependencies) {
		d.Cache = cache
		d.Ledger, d.Events = nil, nil
	})
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil).Once()

	_, err := f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	_, err = f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, f.metrics.cache)
	assert.Contains(t, cache.stored, "persons:NO_2020_2021")
	f.source.AssertNumberOfCalls(t, "FindPersons", 1)
}

func TestRun_Summaries(t *testing.T) {
	an := &fakeAnalyzer{fail: "inventors_count"}
	var scoped family.Query
	f := newFixture(t, Options{Summarize: true}, func(d *Dependencies) {
		d.Ledger, d.Events = nil, nil
		d.Analyzer = func(q family.Query) Analyzer {
			scoped = q
			return an
		}
	})
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil)

	report, err := f.svc.Run(context.Background(), testQuery)
	require.NoError(t, err)

	assert.Equal(t, testQuery, scoped)
	// thirteen non-empty sides, one of which failed
	assert.Len(t, report.Analyses, 12)
	assert.Equal(t, 12, an.seen)
	assert.Contains(t, an.names, "individual_split_inventors_individual")
	assert.Contains(t, an.names, "applicants_ratio")
	assert.NotContains(t, an.names, "inventors_count")
	assert.Equal(t, "overall", report.Summary)
	assert.True(t, f.exists(t, "analysis/summary_analysis.txt"))
	assert.True(t, f.exists(t, "analysis/applicants_ratio_analysis.txt"))
	assert.False(t, f.exists(t, "analysis/inventors_count_analysis.txt"))
}

func TestRun_OptionsOverrideDefaults(t *testing.T) {
	an := &fakeAnalyzer{}
	f := newFixture(t, Options{Summarize: true}, func(d *Dependencies) {
		d.Ledger, d.Events = nil, nil
		d.Analyzer = func(family.Query) Analyzer { return an }
	})
	f.source.On("FindPersons", mock.Anything, testQuery).Return(sampleRecords(), nil)

	report, err := f.svc.Run(context.Background(), testQuery,
		WithCharts(ChartApplicantsRatio), WithTopK(1), WithSummary(false))
	require.NoError(t, err)

	assert.Equal(t, []string{ChartApplicantsRatio}, report.ChartNames())
	assert.Empty(t, report.Analyses)
	assert.Zero(t, an.seen)
	assert.False(t, f.exists(t, "data/inventors_ratio.csv"))

	_, err = f.svc.Run(context.Background(), testQuery, WithCharts("nope"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
}

func TestBuildChart(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	view, err := f.svc.BuildChart(context.Background(), attribution.ChartSpec{
		Name:      "adhoc",
		Normalize: true,
		Reference: "NO",
		Sides: []attribution.SideInput{{Name: "s", Observations: []attribution.Observation{
			{EntityID: "F1", CategoryID: "NO", Value: 1},
			{EntityID: "F1", CategoryID: "SE", Value: 3},
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, attribution.KindBar, view.Document.Kind)
	require.Len(t, view.Document.Sides, 1)
	require.NotNil(t, view.Document.Sides[0].Table)
	assert.Equal(t, []string{"F1"}, view.Document.Sides[0].Table.Index)
	assert.Contains(t, string(view.SVG), "<svg")

	_, err = f.svc.BuildChart(context.Background(), attribution.ChartSpec{Name: "empty", Sides: []attribution.SideInput{{Name: "s"}}})
	assert.True(t, attribution.IsEmptyInput(err))
}

func TestListRuns(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	want := []*run.Run{run.New(testQuery, time.Now())}
	f.ledger.On("List", mock.Anything, 50, 0).Return(want, nil).Once()

	got, err := f.svc.ListRuns(context.Background(), 0, -3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	disabled := newFixture(t, Options{}, func(d *Dependencies) { d.Ledger = nil })
	_, err = disabled.svc.ListRuns(context.Background(), 10, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeFeatureDisabled))
}

func TestOptions_With(t *testing.T) {
	base := Options{TopK: 10, Charts: []string{ChartApplicantsRatio}, Summarize: true, Concurrency: 2}

	assert.Equal(t, base, base.With())
	assert.Equal(t, base, base.With(WithTopK(0), WithCharts()))

	got := base.With(WithTopK(3), WithCharts(ChartCombinedCount), WithSummary(false))
	assert.Equal(t, Options{TopK: 3, Charts: []string{ChartCombinedCount}, Summarize: false, Concurrency: 2}, got)
	assert.Equal(t, []string{ChartApplicantsRatio}, base.Charts)
}
