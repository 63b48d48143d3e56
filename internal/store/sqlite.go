package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
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
	asset_amt   INTEGER NOT NULL DEFAULT 0,
	income_amt  INTEGER NOT NULL DEFAULT 0,
	revenue_amt INTEGER NOT NULL DEFAULT 0,
	ntee_code   TEXT NOT NULL DEFAULT '',
	sort_name   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_registry_orgs_state ON registry_orgs(state);

CREATE TABLE IF NOT EXISTS refresh_runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	row_count    INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_refresh_runs_status_started ON refresh_runs(status, started_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceRegistry swaps the stored snapshot for orgs in one transaction.
func (s *SQLiteStore) ReplaceRegistry(ctx context.Context, orgs []model.RegistryOrg) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM registry_orgs`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear registry")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(registryColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO registry_orgs (`+strings.Join(registryColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare registry insert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, o := range orgs {
		if _, err := stmt.ExecContext(ctx, registryRow(o)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert registry %s", o.EIN)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit registry")
	}
	return n, nil
}

// LoadRegistry reads the stored snapshot.
func (s *SQLiteStore) LoadRegistry(ctx context.Context) ([]model.RegistryOrg, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(registryColumns, ", ")+` FROM registry_orgs ORDER BY ein`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load registry")
	}
	defer rows.Close() //nolint:errcheck

	var orgs []model.RegistryOrg
	for rows.Next() {
		var o model.RegistryOrg
		if err := rows.Scan(registryDest(&o)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan registry row")
		}
		orgs = append(orgs, o)
	}
	return orgs, eris.Wrap(rows.Err(), "sqlite: iterate registry")
}

// StartRefresh records a running refresh.
func (s *SQLiteStore) StartRefresh(ctx context.Context, source string) (*model.RefreshRun, error) {
	run := &model.RefreshRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert refresh run")
	}
	return run, nil
}

// CompleteRefresh marks id complete with its row count.
func (s *SQLiteStore) CompleteRefresh(ctx context.Context, id string, rows int64) error {
	return s.finish(ctx, id, model.RunStatusComplete, rows, "")
}

// FailRefresh marks id failed with cause.
func (s *SQLiteStore) FailRefresh(ctx context.Context, id string, cause error) error {
	return s.finish(ctx, id, model.RunStatusFailed, 0, errorText(cause))
}

func (s *SQLiteStore) finish(ctx context.Context, id string, status model.RunStatus, rows int64, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_runs SET status = ?, completed_at = ?, row_count = ?, error = ? WHERE id = ?`,
		string(status), s.now().UTC(), rows, msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish refresh run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: refresh run %s", id)
	}
	return nil
}

// LastRefresh returns the most recent completed refresh, or nil if none.
func (s *SQLiteStore) LastRefresh(ctx context.Context) (*model.RefreshRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	)
	run, err := scanSQLiteRefresh(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last refresh")
	}
	return run, nil
}

// ListRefreshes returns up to limit runs, newest first.
func (s *SQLiteStore) ListRefreshes(ctx context.Context, limit int) ([]model.RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list refreshes")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.RefreshRun
	for rows.Next() {
		run, err := scanSQLiteRefresh(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan refresh run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate refreshes")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRefresh(row rowScanner) (*model.RefreshRun, error) {
	var (
		run       model.RefreshRun
		status    string
		completed sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Source, &status, &run.StartedAt, &completed, &run.Rows, &run.Error); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}
