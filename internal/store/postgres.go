package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/db"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgres connects to connString.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, 10)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS registry_orgs (
	ein         TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	care_of     TEXT NOT NULL DEFAULT '',
	street      TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT '',
	zip         TEXT NOT NULL DEFAULT '',
	subsection  TEXT NOT NULL DEFAULT '',
	ruling      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	tax_period  TEXT NOT NULL DEFAULT '',
	asset_amt   BIGINT NOT NULL DEFAULT 0,
	income_amt  BIGINT NOT NULL DEFAULT 0,
	revenue_amt BIGINT NOT NULL DEFAULT 0,
	ntee_code   TEXT NOT NULL DEFAULT '',
	sort_name   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_registry_orgs_state ON registry_orgs(state);

CREATE TABLE IF NOT EXISTS refresh_runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	row_count    BIGINT NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_refresh_runs_status_started ON refresh_runs(status, started_at DESC);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ReplaceRegistry swaps the stored snapshot for orgs in one transaction.
func (s *PostgresStore) ReplaceRegistry(ctx context.Context, orgs []model.RegistryOrg) (int64, error) {
	rows := make([][]any, len(orgs))
	for i, o := range orgs {
		rows[i] = registryRow(o)
	}
	n, err := db.ReplaceTable(ctx, s.pool, "registry_orgs", registryColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace registry")
	}
	return n, nil
}

// LoadRegistry reads the stored snapshot.
func (s *PostgresStore) LoadRegistry(ctx context.Context) ([]model.RegistryOrg, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(registryColumns, ", ")+` FROM registry_orgs ORDER BY ein`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load registry")
	}
	defer rows.Close()

	var orgs []model.RegistryOrg
	for rows.Next() {
		var o model.RegistryOrg
		if err := rows.Scan(registryDest(&o)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan registry row")
		}
		orgs = append(orgs, o)
	}
	return orgs, eris.Wrap(rows.Err(), "postgres: iterate registry")
}

// StartRefresh records a running refresh.
func (s *PostgresStore) StartRefresh(ctx context.Context, source string) (*model.RefreshRun, error) {
	run := &model.RefreshRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert refresh run")
	}
	return run, nil
}

// CompleteRefresh marks id complete with its row count.
func (s *PostgresStore) CompleteRefresh(ctx context.Context, id string, rows int64) error {
	return s.finish(ctx, id, model.RunStatusComplete, rows, "")
}

// FailRefresh marks id failed with cause.
func (s *PostgresStore) FailRefresh(ctx context.Context, id string, cause error) error {
	return s.finish(ctx, id, model.RunStatusFailed, 0, errorText(cause))
}

func (s *PostgresStore) finish(ctx context.Context, id string, status model.RunStatus, rows int64, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_runs SET status = $1, completed_at = $2, row_count = $3, error = $4 WHERE id = $5`,
		string(status), s.now().UTC(), rows, msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish refresh run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: refresh run %s", id)
	}
	return nil
}

const refreshColumns = `id, source, status, started_at, completed_at, row_count, error`

// LastRefresh returns the most recent completed refresh, or nil if none.
func (s *PostgresStore) LastRefresh(ctx context.Context) (*model.RefreshRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+refreshColumns+` FROM refresh_runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	)
	run, err := scanRefresh(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last refresh")
	}
	return run, nil
}

// ListRefreshes returns up to limit runs, newest first.
func (s *PostgresStore) ListRefreshes(ctx context.Context, limit int) ([]model.RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+refreshColumns+` FROM refresh_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list refreshes")
	}
	defer rows.Close()

	var runs []model.RefreshRun
	for rows.Next() {
		run, err := scanRefresh(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan refresh run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate refreshes")
}

func scanRefresh(row pgx.Row) (*model.RefreshRun, error) {
	var (
		run    model.RefreshRun
		status string
	)
	if err := row.Scan(&run.ID, &run.Source, &status, &run.StartedAt, &run.CompletedAt, &run.Rows, &run.Error); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	return &run, nil
}
