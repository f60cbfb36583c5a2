package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Attribution/internal/bootstrap"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// NewServeCmd creates the serve command, which runs the HTTP API.
func NewServeCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the attribution HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLongLived(cmd, deps, func(ctx context.Context, app *bootstrap.App) error {
				return app.Serve(ctx, Version)
			})
		},
	}
}

// NewWorkerCmd creates the worker command, which consumes report requests.
func NewWorkerCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume report requests from Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLongLived(cmd, deps, func(ctx context.Context, app *bootstrap.App) error {
				return app.Work(ctx, Version)
			})
		},
	}
}

// runLongLived opens the application and runs fn until SIGINT or SIGTERM.
// --timeout does not apply.
func runLongLived(cmd *cobra.Command, deps Deps, fn func(ctx context.Context, app *bootstrap.App) error) error {
	c, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := deps.OpenApp(ctx, c)
	if err != nil {
		return err
	}
	defer closeQuietly(c, app.Close)

	c.Logger.Info("Starting", logging.String("command", cmd.Name()), logging.String("version", Version))
	return fn(ctx, app)
}

// NewMigrateCmd creates the migrate command group for the run ledger.
func NewMigrateCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run ledger schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := deps.Migrations.Up(c.Config.Database); err != nil {
				return err
			}
			PrintSuccess(cmd, "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := deps.Migrations.Down(c.Config.Database, steps); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := deps.Migrations.Status(c.Config.Database)
			if err != nil {
				return err
			}
			return PrintResult(cmd, migrationStatus{Version: version, Dirty: dirty})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) String() string {
	if s.Version == 0 {
		return "no migration applied"
	}
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, versionInfo{
				Version:   Version,
				Commit:    GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
			})
		},
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("attrib %s (commit: %s, built: %s, %s)", v.Version, v.Commit, v.BuildDate, v.GoVersion)
}
