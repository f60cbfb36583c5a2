// Package cli implements the attrib command line: report runs, the chart
// catalog, the run ledger, request enqueueing, the API server, the worker
// and ledger migrations.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Attribution/internal/application/reporting"
	"github.com/turtacn/KeyIP-Attribution/internal/bootstrap"
	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatTable = "table"
)

// annotationNoConfig marks commands that run without loading configuration.
const annotationNoConfig = "no-config"

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
}

// CLIContext carries the loaded configuration through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
}

// Requester publishes report requests for workers.
type Requester interface {
	Request(ctx context.Context, req kafka.ReportRequestedPayload) error
}

// Deps opens the backends commands work against. Tests replace them.
type Deps struct {
	LoadConfig  func(path string) (*config.Config, error)
	OpenService func(ctx context.Context, c *CLIContext) (reporting.Service, func() error, error)
	OpenEvents  func(ctx context.Context, c *CLIContext) (Requester, func() error, error)
	OpenApp     func(ctx context.Context, c *CLIContext) (*bootstrap.App, error)
	Migrations  Migrations
}

// Migrations drives the run ledger schema.
type Migrations struct {
	Up     func(cfg config.DatabaseConfig) error
	Down   func(cfg config.DatabaseConfig, steps int) error
	Status func(cfg config.DatabaseConfig) (version uint, dirty bool, err error)
}

// DefaultDeps wires commands to the real infrastructure.
func DefaultDeps() Deps {
	return Deps{
		LoadConfig: config.LoadOrEnv,
		OpenService: func(ctx context.Context, c *CLIContext) (reporting.Service, func() error, error) {
			app, err := bootstrap.New(ctx, c.Config, c.Logger)
			if err != nil {
				return nil, nil, err
			}
			return app.Service, app.Close, nil
		},
		OpenEvents: func(_ context.Context, c *CLIContext) (Requester, func() error, error) {
			events, closer, err := bootstrap.NewEvents(c.Config, c.Logger)
			if err != nil {
				return nil, nil, err
			}
			return events, closer, nil
		},
		OpenApp: func(ctx context.Context, c *CLIContext) (*bootstrap.App, error) {
			return bootstrap.New(ctx, c.Config, c.Logger)
		},
		Migrations: Migrations{
			Up:     postgres.RunMigrations,
			Down:   postgres.RollbackMigration,
			Status: postgres.MigrationStatus,
		},
	}
}

// NewRootCommand creates the root command with its global flags and every
// subcommand.
func NewRootCommand(deps Deps) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "attrib",
		Short: "Applicant and inventor attribution reports for patent families",
		Long: "attrib aggregates the applicants and inventors of patent families by country,\n" +
			"ranks the countries and renders share and count charts with optional\n" +
			"language-model analyses.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, deps)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ATTRIB_* environment only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", FormatText, "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "timeout of one-shot commands")

	cmd.AddCommand(
		NewRunCmd(deps),
		NewChartsCmd(),
		NewRunsCmd(deps),
		NewEnqueueCmd(deps),
		NewServeCmd(deps),
		NewWorkerCmd(deps),
		NewMigrateCmd(deps),
		NewVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, deps Deps) error {
	switch opts.OutputFormat {
	case FormatText, FormatJSON, FormatTable:
	default:
		return errors.InvalidParam("unknown output format").WithDetail(opts.OutputFormat)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	cliCtx := &CLIContext{
		OutputFormat: opts.OutputFormat,
		Verbose:      opts.Verbose,
		NoColor:      opts.NoColor,
		Timeout:      opts.Timeout,
		Logger:       logging.NewNopLogger(),
	}

	if cmd.Annotations[annotationNoConfig] == "" {
		cfg, err := deps.LoadConfig(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("config initialization failed: %w", err)
		}
		logger, err := initLogger(cfg, opts)
		if err != nil {
			return fmt.Errorf("logger initialization failed: %w", err)
		}
		cliCtx.Config = cfg
		cliCtx.Logger = logger
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initLogger writes console logs to stderr so stdout stays parseable.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	lc := cfg.Log
	if opts.LogLevel != "" {
		lc.Level = strings.ToLower(opts.LogLevel)
	}
	if opts.Verbose {
		lc.Level = "debug"
	}
	lc.Format = "console"
	lc.OutputPaths = []string{"stderr"}
	lc.ErrorOutputPaths = []string{"stderr"}
	return logging.NewLogger(lc)
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Internal("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Internal("CLI context not found in command context")
	}
	return cliCtx, nil
}

// Execute runs the CLI against the real infrastructure.
func Execute() error {
	rootCmd := NewRootCommand(DefaultDeps())
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// tableProvider is implemented by results with a tabular form.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult outputs data in the format selected by --output.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}
	switch cliCtx.OutputFormat {
	case FormatJSON:
		return printJSON(cmd, data)
	case FormatTable:
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

func printTable(cmd *cobra.Command, data interface{}) error {
	tp, ok := data.(tableProvider)
	if !ok {
		return printText(cmd, data)
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(tp.TableHeaders())
	table.SetAutoWrapText(false)
	for _, row := range tp.TableRows() {
		table.Append(row)
	}
	table.Render()
	return nil
}

// PrintError writes err to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes msg to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

// withTimeout bounds a one-shot command by --timeout.
func withTimeout(cmd *cobra.Command, c *CLIContext) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), c.Timeout)
}

// closeQuietly runs closer and logs its failure.
func closeQuietly(c *CLIContext, closer func() error) {
	if closer == nil {
		return
	}
	if err := closer(); err != nil {
		c.Logger.Warn("Close failed", logging.Err(err))
	}
}
