package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
	"github.com/turtacn/KeyIP-Attribution/internal/domain/run"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

const runColumns = `id, country, start_year, end_year, status, charts, skipped, families, output_dir, error, started_at, finished_at`

type postgresRunRepo struct {
	log      logging.Logger
	executor dbtx
}

// NewRunRepository stores the run ledger in attribution_runs.
func NewRunRepository(conn *postgres.Connection, log logging.Logger) run.Repository {
	return &postgresRunRepo{log: log, executor: conn.DB()}
}

func (r *postgresRunRepo) Create(ctx context.Context, rn *run.Run) error {
	charts, skipped, err := encodeLists(rn)
	if err != nil {
		return err
	}
	query := `INSERT INTO attribution_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.executor.ExecContext(ctx, query,
		rn.ID, rn.Query.Country, rn.Query.StartYear, rn.Query.EndYear, string(rn.Status),
		charts, skipped, rn.Families, rn.OutputDir, rn.Error, rn.StartedAt, nullTime(rn),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run").WithDetail(rn.ID.String())
	}
	return nil
}

func (r *postgresRunRepo) Finish(ctx context.Context, rn *run.Run) error {
	charts, skipped, err := encodeLists(rn)
	if err != nil {
		return err
	}
	query := `UPDATE attribution_runs
		SET status = $2, charts = $3, skipped = $4, families = $5, output_dir = $6, error = $7, finished_at = $8
		WHERE id = $1`
	res, err := r.executor.ExecContext(ctx, query,
		rn.ID, string(rn.Status), charts, skipped, rn.Families, rn.OutputDir, rn.Error, nullTime(rn),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update run").WithDetail(rn.ID.String())
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run not found").WithDetail(rn.ID.String())
	}
	return nil
}

func (r *postgresRunRepo) Get(ctx context.Context, id uuid.UUID) (*run.Run, error) {
	row := r.executor.QueryRowContext(ctx, `SELECT `+runColumns+` FROM attribution_runs WHERE id = $1`, id)
	rn, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run not found").WithDetail(id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get run").WithDetail(id.String())
	}
	return rn, nil
}

func (r *postgresRunRepo) List(ctx context.Context, limit, offset int) ([]*run.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.executor.QueryContext(ctx,
		`SELECT `+runColumns+` FROM attribution_runs ORDER BY started_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	out, err := scanAll(rows, scanRun)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read runs")
	}
	if out == nil {
		out = []*run.Run{}
	}
	return out, nil
}

func scanRun(s rowScanner) (*run.Run, error) {
	var (
		rn              run.Run
		q               family.Query
		status          string
		charts, skipped []byte
		finished        sql.NullTime
	)
	err := s.Scan(&rn.ID, &q.Country, &q.StartYear, &q.EndYear, &status, &charts, &skipped,
		&rn.Families, &rn.OutputDir, &rn.Error, &rn.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	rn.Query = q
	rn.Status = run.Status(status)
	if len(charts) > 0 {
		if err := json.Unmarshal(charts, &rn.Charts); err != nil {
			return nil, err
		}
	}
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &rn.Skipped); err != nil {
			return nil, err
		}
	}
	if finished.Valid {
		t := finished.Time
		rn.FinishedAt = &t
	}
	return &rn, nil
}

func encodeLists(rn *run.Run) (charts, skipped []byte, err error) {
	list := func(v []string) ([]byte, error) {
		if v == nil {
			v = []string{}
		}
		return json.Marshal(v)
	}
	if charts, err = list(rn.Charts); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode charts")
	}
	if skipped, err = list(rn.Skipped); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode skipped charts")
	}
	return charts, skipped, nil
}

func nullTime(rn *run.Run) sql.NullTime {
	if rn.FinishedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *rn.FinishedAt, Valid: true}
}
