// Package store persists imputation runs, their income assignments and built
// Filosofi tables to SQLite or Postgres.
package store

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/filosofi"
	"github.com/tellae/eqasim/internal/model"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for imputation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, seed uint64, attribute string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, households, communes int) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Assignments
	SaveAssignments(ctx context.Context, runID string, assignments []model.IncomeAssignment) (int64, error)
	ListAssignments(ctx context.Context, runID string) ([]model.IncomeAssignment, error)

	// Filosofi distributions
	SaveDistributions(ctx context.Context, rows []filosofi.Row) (int64, error)
	LoadDistributions(ctx context.Context) ([]filosofi.Row, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store for driver. dsn is a file path for sqlite and a
// connection URL for postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// Seeds are stored as decimal text; both backends cap integers at int64.
func formatSeed(seed uint64) string { return strconv.FormatUint(seed, 10) }

func parseSeed(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, eris.Wrapf(err, "store: parse seed %q", s)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

const defaultListLimit = 100
