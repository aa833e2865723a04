package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/db"
	"github.com/tellae/eqasim/internal/filosofi"
	"github.com/tellae/eqasim/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	maxConns := int32(4)
	if poolCfg != nil && poolCfg.MaxConns > 0 {
		maxConns = poolCfg.MaxConns
	}
	pool, err := db.Connect(ctx, connString, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const (
	assignmentsTable   = "income_assignments"
	distributionsTable = "filosofi_distributions"
)

var assignmentColumns = []string{"run_id", "household_id", "household_income", "consumption_units"}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS income_runs (
	id           TEXT PRIMARY KEY,
	seed         TEXT NOT NULL,
	attribute    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	households   INTEGER NOT NULL DEFAULT 0,
	communes     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS income_assignments (
	run_id            TEXT NOT NULL REFERENCES income_runs(id) ON DELETE CASCADE,
	household_id      BIGINT NOT NULL,
	household_income  DOUBLE PRECISION NOT NULL,
	consumption_units DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, household_id)
);

CREATE TABLE IF NOT EXISTS filosofi_distributions (
	commune_id       TEXT NOT NULL,
	attribute        TEXT NOT NULL,
	modality         TEXT NOT NULL,
	q1 DOUBLE PRECISION NOT NULL, q2 DOUBLE PRECISION NOT NULL, q3 DOUBLE PRECISION NOT NULL,
	q4 DOUBLE PRECISION NOT NULL, q5 DOUBLE PRECISION NOT NULL, q6 DOUBLE PRECISION NOT NULL,
	q7 DOUBLE PRECISION NOT NULL, q8 DOUBLE PRECISION NOT NULL, q9 DOUBLE PRECISION NOT NULL,
	reference_median DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (commune_id, attribute, modality)
);

CREATE INDEX IF NOT EXISTS idx_income_runs_status ON income_runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, seed uint64, attribute string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO income_runs (id, seed, attribute, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, formatSeed(seed), attribute, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Seed:      seed,
		Attribute: attribute,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, households, communes int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE income_runs SET status = $1, households = $2, communes = $3, completed_at = $4 WHERE id = $5`,
		string(model.RunStatusComplete), households, communes, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE income_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errorText(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, seed, attribute, status, households, communes, error, started_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM income_runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+postgresRunColumns+` FROM income_runs WHERE status = $1 ORDER BY started_at DESC LIMIT $2`,
			string(filter.Status), limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+postgresRunColumns+` FROM income_runs ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveAssignments copies the assignments of a fresh run with COPY.
func (s *PostgresStore) SaveAssignments(ctx context.Context, runID string, assignments []model.IncomeAssignment) (int64, error) {
	rows := make([][]any, len(assignments))
	for i, a := range assignments {
		rows[i] = []any{runID, a.HouseholdID, a.HouseholdIncome, a.ConsumptionUnits}
	}
	n, err := db.CopyFrom(ctx, s.pool, assignmentsTable, assignmentColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save assignments for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, runID string) ([]model.IncomeAssignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT household_id, household_income, consumption_units FROM income_assignments WHERE run_id = $1 ORDER BY household_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list assignments for run %s", runID)
	}
	defer rows.Close()

	var out []model.IncomeAssignment
	for rows.Next() {
		var a model.IncomeAssignment
		if err := rows.Scan(&a.HouseholdID, &a.HouseholdIncome, &a.ConsumptionUnits); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assignments iterate")
}

// SaveDistributions upserts rows keyed by (commune, attribute, modality), so a
// rebuilt table replaces the previous vintage in place.
func (s *PostgresStore) SaveDistributions(ctx context.Context, rows []filosofi.Row) (int64, error) {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = distributionValues(r)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        distributionsTable,
		Columns:      distributionColumns,
		ConflictKeys: []string{"commune_id", "attribute", "modality"},
	}, vals)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save distributions")
	}
	return n, nil
}

func (s *PostgresStore) LoadDistributions(ctx context.Context) ([]filosofi.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+distributionColumnList+` FROM filosofi_distributions ORDER BY attribute, modality, commune_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load distributions")
	}
	defer rows.Close()

	var out []filosofi.Row
	for rows.Next() {
		r, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load distributions iterate")
}

func scanPgRun(row scannable) (*model.Run, error) {
	var (
		r    model.Run
		seed string
	)
	if err := row.Scan(&r.ID, &seed, &r.Attribute, &r.Status, &r.Households, &r.Communes, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	var err error
	if r.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	return &r, nil
}
