package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// queryFlags are the query and run overrides shared by run and enqueue.
// Unset flags fall back to the analysis section of the configuration.
type queryFlags struct {
	country   string
	startYear int
	endYear   int
	charts    []string
	topK      int
	summarize bool
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.country, "country", "", "two-letter country code (default: analysis.country)")
	fs.IntVar(&f.startYear, "from", 0, "first priority year (default: analysis.start_year)")
	fs.IntVar(&f.endYear, "to", 0, "last priority year (default: analysis.end_year)")
	fs.StringSliceVar(&f.charts, "charts", nil, "comma-separated catalog charts (default: analysis.charts or all)")
	fs.IntVar(&f.topK, "top-k", 0, "categories kept per side (default: analysis.top_k)")
	fs.BoolVar(&f.summarize, "summarize", false, "write language-model analyses (default: analysis.summarize)")
}

func (f *queryFlags) query(cmd *cobra.Command, cfg config.AnalysisConfig) family.Query {
	q := family.Query{Country: cfg.Country, StartYear: cfg.StartYear, EndYear: cfg.EndYear}
	if cmd.Flags().Changed("country") {
		q.Country = f.country
	}
	if cmd.Flags().Changed("from") {
		q.StartYear = f.startYear
	}
	if cmd.Flags().Changed("to") {
		q.EndYear = f.endYear
	}
	return q.Normalized()
}

// summaryOverride is nil unless --summarize was given.
func (f *queryFlags) summaryOverride(cmd *cobra.Command) *bool {
	if !cmd.Flags().Changed("summarize") {
		return nil
	}
	on := f.summarize
	return &on
}

func (f *queryFlags) wantSummary(cmd *cobra.Command, cfg config.AnalysisConfig) bool {
	if cmd.Flags().Changed("summarize") {
		return f.summarize
	}
	return cfg.Summarize
}

// NewRunCmd creates the run command.
func NewRunCmd(deps Deps) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build, render and store the attribution report of one query",
		Example: "  attrib run --country NO --from 2010 --to 2020\n" +
			"  attrib run --charts applicants_ratio,inventors_ratio --top-k 5 -o table",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			q := flags.query(cmd, c.Config.Analysis)
			if err := q.Validate(); err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd, c)
			defer cancel()
			svc, closer, err := deps.OpenService(ctx, c)
			if err != nil {
				return err
			}
			defer closeQuietly(c, closer)

			c.Logger.Info("Starting report run", logging.String("query", q.Key()))
			report, err := svc.Run(ctx, q,
				reporting.WithCharts(flags.charts...),
				reporting.WithTopK(flags.topK),
				reporting.WithSummary(flags.wantSummary(cmd, c.Config.Analysis)),
			)
			if err != nil {
				return err
			}
			return PrintResult(cmd, reportView{report})
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd(deps Deps) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a report request for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			q := flags.query(cmd, c.Config.Analysis)
			if err := q.Validate(); err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd, c)
			defer cancel()
			events, closer, err := deps.OpenEvents(ctx, c)
			if err != nil {
				return err
			}
			defer closeQuietly(c, closer)

			err = events.Request(ctx, kafka.ReportRequestedPayload{
				Query:     q,
				Charts:    flags.charts,
				TopK:      flags.topK,
				Summarize: flags.summaryOverride(cmd),
			})
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("report request queued for %s", q.Key()))
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewChartsCmd creates the charts command, which lists the catalog.
func NewChartsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "charts",
		Short:       "List the catalog charts a run can build",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := reporting.Catalog()
			view := make(chartsView, 0, len(defs))
			for _, d := range defs {
				view = append(view, chartInfo{Name: d.Name, Title: d.Title})
			}
			return PrintResult(cmd, view)
		},
	}
}

// NewRunsCmd creates the runs command, which pages through the ledger.
func NewRunsCmd(deps Deps) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded report runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, c)
			defer cancel()
			svc, closer, err := deps.OpenService(ctx, c)
			if err != nil {
				return err
			}
			defer closeQuietly(c, closer)

			runs, err := svc.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			return PrintResult(cmd, runsView(runs))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	return cmd
}

// reportView renders a finished report.
type reportView struct {
	*reporting.Report
}

func (v reportView) String() string {
	var b strings.Builder
	q := v.Query
	fmt.Fprintf(&b, "%s %s %d-%d (run %s)\n", color.GreenString("Report"), q.Country, q.StartYear, q.EndYear, v.RunID)
	fmt.Fprintf(&b, "  families:  %d (%d persons, %d countries)\n", v.Stats.Families, v.Stats.Persons, v.Stats.Countries)
	fmt.Fprintf(&b, "  charts:    %d built", len(v.Charts))
	if len(v.Skipped) > 0 {
		b.WriteString(color.YellowString(", %d skipped (%s)", len(v.Skipped), strings.Join(v.Skipped, ", ")))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  output:    %s\n", v.Prefix)
	fmt.Fprintf(&b, "  duration:  %s\n", v.Duration.Round(time.Millisecond))
	for _, a := range v.Artifacts {
		fmt.Fprintf(&b, "    - %s\n", a.Key)
	}
	if v.Summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", v.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v reportView) TableHeaders() []string {
	return []string{"Chart", "Kind", "Entities", "Sides", "Warnings"}
}

func (v reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Charts))
	for _, c := range v.Charts {
		warnings := strconv.Itoa(len(c.Warnings))
		if len(c.Warnings) > 0 {
			warnings = color.YellowString(warnings)
		}
		rows = append(rows, []string{c.Name, string(c.Kind), strconv.Itoa(c.Entities), strings.Join(c.Sides, ", "), warnings})
	}
	return rows
}

type chartInfo struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

type chartsView []chartInfo

func (v chartsView) String() string {
	var b strings.Builder
	for _, c := range v {
		fmt.Fprintf(&b, "%-20s %s\n", c.Name, c.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v chartsView) TableHeaders() []string { return []string{"Name", "Title"} }

func (v chartsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, c := range v {
		rows = append(rows, []string{c.Name, c.Title})
	}
	return rows
}

type runsView []*run.Run

func (v runsView) String() string {
	if len(v) == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	for _, r := range v {
		fmt.Fprintf(&b, "%s  %-14s %s  %d charts  %d families\n",
			r.ID, r.Query.Key(), statusString(r.Status), len(r.Charts), r.Families)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v runsView) TableHeaders() []string {
	return []string{"ID", "Query", "Status", "Charts", "Families", "Started", "Duration"}
}

func (v runsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		rows = append(rows, []string{
			r.ID.String(),
			r.Query.Key(),
			statusString(r.Status),
			strconv.Itoa(len(r.Charts)),
			strconv.Itoa(r.Families),
			r.StartedAt.Format(time.RFC3339),
			r.Duration().Round(time.Millisecond).String(),
		})
	}
	return rows
}

func statusString(s run.Status) string {
	switch s {
	case run.StatusSucceeded:
		return color.GreenString(string(s))
	case run.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
