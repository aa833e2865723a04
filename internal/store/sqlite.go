package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tellae/eqasim/internal/filosofi"
	"github.com/tellae/eqasim/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS income_runs (
	id           TEXT PRIMARY KEY,
	seed         TEXT NOT NULL,
	attribute    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	households   INTEGER NOT NULL DEFAULT 0,
	communes     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS income_assignments (
	run_id            TEXT NOT NULL REFERENCES income_runs(id),
	household_id      INTEGER NOT NULL,
	household_income  REAL NOT NULL,
	consumption_units REAL NOT NULL,
	PRIMARY KEY (run_id, household_id)
);

CREATE TABLE IF NOT EXISTS filosofi_distributions (
	commune_id       TEXT NOT NULL,
	attribute        TEXT NOT NULL,
	modality         TEXT NOT NULL,
	q1 REAL NOT NULL, q2 REAL NOT NULL, q3 REAL NOT NULL,
	q4 REAL NOT NULL, q5 REAL NOT NULL, q6 REAL NOT NULL,
	q7 REAL NOT NULL, q8 REAL NOT NULL, q9 REAL NOT NULL,
	reference_median REAL NOT NULL,
	PRIMARY KEY (commune_id, attribute, modality)
);

CREATE INDEX IF NOT EXISTS idx_income_runs_status ON income_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, seed uint64, attribute string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO income_runs (id, seed, attribute, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, formatSeed(seed), attribute, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Seed:      seed,
		Attribute: attribute,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, households, communes int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE income_runs SET status = ?, households = ?, communes = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), households, communes, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE income_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errorText(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, seed, attribute, status, households, communes, error, started_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM income_runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM income_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveAssignments(ctx context.Context, runID string, assignments []model.IncomeAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin assignments")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO income_assignments (run_id, household_id, household_income, consumption_units) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare assignments")
	}
	defer stmt.Close() //nolint:errcheck

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, runID, a.HouseholdID, a.HouseholdIncome, a.ConsumptionUnits); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert assignment for household %d", a.HouseholdID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit assignments")
	}
	return int64(len(assignments)), nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, runID string) ([]model.IncomeAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT household_id, household_income, consumption_units FROM income_assignments WHERE run_id = ? ORDER BY household_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list assignments for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.IncomeAssignment
	for rows.Next() {
		var a model.IncomeAssignment
		if err := rows.Scan(&a.HouseholdID, &a.HouseholdIncome, &a.ConsumptionUnits); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assignments iterate")
}

func (s *SQLiteStore) SaveDistributions(ctx context.Context, rows []filosofi.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin distributions")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO filosofi_distributions (`+distributionColumnList+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare distributions")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, distributionValues(r)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert distribution %s/%s/%s", r.CommuneID, r.Attribute, r.Modality)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit distributions")
	}
	return int64(len(rows)), nil
}

func (s *SQLiteStore) LoadDistributions(ctx context.Context) ([]filosofi.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+distributionColumnList+` FROM filosofi_distributions ORDER BY attribute, modality, commune_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load distributions")
	}
	defer rows.Close() //nolint:errcheck

	var out []filosofi.Row
	for rows.Next() {
		r, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load distributions iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		seed      string
		completed sql.NullTime
	)
	err := row.Scan(&r.ID, &seed, &r.Attribute, &r.Status, &r.Households, &r.Communes, &r.Error, &r.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if r.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
