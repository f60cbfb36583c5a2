//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// startPostgres launches a PostgreSQL 16 container, applies the ledger
// migrations and returns a connection.
func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "attribution_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		DBName:   "attribution_test",
		SSLMode:  "disable",
	}
	require.NoError(t, postgres.RunMigrations(cfg))

	version, dirty, err := postgres.MigrationStatus(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	conn, err := postgres.NewConnection(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRunRepository_RoundTrip(t *testing.T) {
	conn := startPostgres(t)
	repo := repositories.NewRunRepository(conn, logging.NewNopLogger())
	ctx := context.Background()

	rn := run.New(family.Query{Country: "NO", StartYear: 2020, EndYear: 2021}, time.Now())
	require.NoError(t, repo.Create(ctx, rn))

	rn.Succeed([]string{"applicants_ratio", "inventors_ratio"}, []string{"individual_split"}, 42, time.Now())
	rn.OutputDir = "output/dataTable_NO_2020_2021"
	require.NoError(t, repo.Finish(ctx, rn))

	got, err := repo.Get(ctx, rn.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusSucceeded, got.Status)
	assert.Equal(t, rn.Charts, got.Charts)
	assert.Equal(t, rn.Skipped, got.Skipped)
	assert.Equal(t, 42, got.Families)
	require.NotNil(t, got.FinishedAt)

	runs, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rn.ID, runs[0].ID)
}
