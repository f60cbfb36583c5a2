package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/attribution"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Run(ctx context.Context, q family.Query, opts ...reporting.RunOption) (*reporting.Report, error) {
	args := m.Called(ctx, q, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Report), args.Error(1)
}

func (m *mockService) BuildChart(ctx context.Context, spec attribution.ChartSpec) (*reporting.ChartView, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.ChartView), args.Error(1)
}

func (m *mockService) ListRuns(ctx context.Context, limit, offset int) ([]*run.Run, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*run.Run), args.Error(1)
}

type recordingRequester struct {
	got []kafka.ReportRequestedPayload
	err error
}

func (r *recordingRequester) Request(_ context.Context, req kafka.ReportRequestedPayload) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, req)
	return nil
}

func sampleReport(q family.Query) *reporting.Report {
	return &reporting.Report{
		RunID:  uuid.MustParse("6f1c2a4e-7d3b-4c1a-9e2f-0a1b2c3d4e5f"),
		Query:  q,
		Prefix: reporting.OutputPrefix(q),
		Stats:  family.Stats{Families: 12, Persons: 40, Countries: 5},
		Charts: []reporting.ChartResult{
			{Name: reporting.ChartApplicantsRatio, Kind: attribution.KindBar, Entities: 12, Sides: []string{"applicants"}},
		},
		Skipped:   []string{reporting.ChartInventorsRatio},
		Artifacts: []storage.Object{{Key: reporting.OutputPrefix(q) + "/applicants_ratio.svg"}},
		Duration:  1500 * time.Millisecond,
	}
}

func TestRunCmd_DefaultsFromConfig(t *testing.T) {
	svc := new(mockService)
	q := family.Query{Country: "NO", StartYear: 2020, EndYear: 2020}
	svc.On("Run", mock.Anything, q, 3).Return(sampleReport(q), nil)

	out, _, err := execute(testDeps(svc, nil), "run")

	require.NoError(t, err)
	assert.Contains(t, out, "Report NO 2020-2020")
	assert.Contains(t, out, "families:  12 (40 persons, 5 countries)")
	assert.Contains(t, out, "1 skipped (inventors_ratio)")
	assert.Contains(t, out, "applicants_ratio.svg")
	svc.AssertExpectations(t)
}

func TestRunCmd_FlagsOverrideConfig(t *testing.T) {
	svc := new(mockService)
	q := family.Query{Country: "SE", StartYear: 2010, EndYear: 2012}
	svc.On("Run", mock.Anything, q, 3).Return(sampleReport(q), nil)

	_, _, err := execute(testDeps(svc, nil), "run", "--country", "se", "--from", "2010", "--to", "2012",
		"--charts", "applicants_ratio", "--top-k", "5", "--summarize")

	require.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestRunCmd_InvalidQueryDoesNotOpenService(t *testing.T) {
	opened := false
	deps := testDeps(nil, nil)
	deps.OpenService = func(context.Context, *CLIContext) (reporting.Service, func() error, error) {
		opened = true
		return nil, nil, assert.AnError
	}

	_, _, err := execute(deps, "run", "--from", "2021", "--to", "2010")

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	assert.False(t, opened)
}

func TestRunCmd_JSONOutput(t *testing.T) {
	svc := new(mockService)
	q := family.Query{Country: "NO", StartYear: 2020, EndYear: 2020}
	svc.On("Run", mock.Anything, q, 3).Return(sampleReport(q), nil)

	out, _, err := execute(testDeps(svc, nil), "run", "-o", "json")

	require.NoError(t, err)
	var got reporting.Report
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "6f1c2a4e-7d3b-4c1a-9e2f-0a1b2c3d4e5f", got.RunID.String())
	assert.Equal(t, "dataTable_NO_2020_2020/applicants_inventors", got.Prefix)
	require.Len(t, got.Charts, 1)
}

func TestRunCmd_TableOutput(t *testing.T) {
	svc := new(mockService)
	q := family.Query{Country: "NO", StartYear: 2020, EndYear: 2020}
	svc.On("Run", mock.Anything, q, 3).Return(sampleReport(q), nil)

	out, _, err := execute(testDeps(svc, nil), "run", "-o", "table")

	require.NoError(t, err)
	assert.Contains(t, out, "applicants_ratio")
	assert.Contains(t, out, "bar")
}

func TestRunCmd_ServiceError(t *testing.T) {
	svc := new(mockService)
	svc.On("Run", mock.Anything, mock.Anything, 3).
		Return(nil, errors.New(errors.ErrCodeRunInProgress, "an identical run is already in progress"))

	_, _, err := execute(testDeps(svc, nil), "run")

	assert.True(t, errors.IsCode(err, errors.ErrCodeRunInProgress))
}

func TestRunCmd_AppliesTimeout(t *testing.T) {
	svc := new(mockService)
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})
	q := family.Query{Country: "NO", StartYear: 2020, EndYear: 2020}
	svc.On("Run", hasDeadline, q, 3).Return(sampleReport(q), nil)

	_, _, err := execute(testDeps(svc, nil), "--timeout", "1m", "run")

	require.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestEnqueueCmd(t *testing.T) {
	events := &recordingRequester{}

	out, _, err := execute(testDeps(nil, events), "enqueue", "--country", "dk", "--from", "2015", "--to", "2016",
		"--charts", "applicants_ratio,inventors_ratio", "--top-k", "7", "--summarize")

	require.NoError(t, err)
	require.Len(t, events.got, 1)
	summarize := true
	assert.Equal(t, kafka.ReportRequestedPayload{
		Query:     family.Query{Country: "DK", StartYear: 2015, EndYear: 2016},
		Charts:    []string{"applicants_ratio", "inventors_ratio"},
		TopK:      7,
		Summarize: &summarize,
	}, events.got[0])
	assert.Contains(t, out, "queued for DK_2015_2016")
}

func TestEnqueueCmd_LeavesSummaryToWorker(t *testing.T) {
	events := &recordingRequester{}

	_, _, err := execute(testDeps(nil, events), "enqueue")

	require.NoError(t, err)
	require.Len(t, events.got, 1)
	assert.Nil(t, events.got[0].Summarize)
}

func TestEnqueueCmd_Failures(t *testing.T) {
	t.Run("kafka disabled", func(t *testing.T) {
		deps := testDeps(nil, nil)
		deps.OpenEvents = func(context.Context, *CLIContext) (Requester, func() error, error) {
			return nil, nil, errors.New(errors.ErrCodeFeatureDisabled, "kafka is disabled")
		}
		_, _, err := execute(deps, "enqueue")
		assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
	})

	t.Run("publish error", func(t *testing.T) {
		events := &recordingRequester{err: errors.New(errors.ErrCodeEventPublishFailed, "broker down")}
		_, _, err := execute(testDeps(nil, events), "enqueue")
		assert.True(t, errors.IsCode(err, errors.ErrCodeEventPublishFailed))
	})

	t.Run("invalid query", func(t *testing.T) {
		events := &recordingRequester{}
		_, _, err := execute(testDeps(nil, events), "enqueue", "--country", "NOR")
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
		assert.Empty(t, events.got)
	})
}

func TestRunsCmd(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := run.New(family.Query{Country: "NO", StartYear: 2010, EndYear: 2020}, started)
	done.Succeed([]string{"applicants_ratio"}, nil, 12, started.Add(2*time.Second))
	failed := run.New(family.Query{Country: "SE", StartYear: 2011, EndYear: 2012}, started)
	failed.Status = run.StatusFailed

	svc := new(mockService)
	svc.On("ListRuns", mock.Anything, 5, 10).Return([]*run.Run{done, failed}, nil)

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(testDeps(svc, nil), "runs", "--limit", "5", "--offset", "10")
		require.NoError(t, err)
		assert.Contains(t, out, done.ID.String())
		assert.Contains(t, out, "NO_2010_2020")
		assert.Contains(t, out, "succeeded")
		assert.Contains(t, out, "failed")
	})

	t.Run("table", func(t *testing.T) {
		out, _, err := execute(testDeps(svc, nil), "-o", "table", "runs", "--limit", "5", "--offset", "10")
		require.NoError(t, err)
		assert.Contains(t, out, "2026-03-01T12:00:00Z")
		assert.Contains(t, out, "2s")
	})
}

func TestRunsCmd_Empty(t *testing.T) {
	svc := new(mockService)
	svc.On("ListRuns", mock.Anything, 20, 0).Return(nil, nil)

	out, _, err := execute(testDeps(svc, nil), "runs")

	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}
