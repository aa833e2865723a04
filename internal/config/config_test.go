package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "utf-8", cfg.Input.Charset)
	assert.Equal(t, ',', cfg.Input.DelimiterRune())
	assert.Equal(t, 5, cfg.Filosofi.SkipRows)
	assert.Equal(t, "15", cfg.Filosofi.VintageSuffix)
	assert.Equal(t, "CODGEO", cfg.Filosofi.CommuneColumn)
	assert.Equal(t, uint64(0), cfg.Income.Seed)
	assert.Equal(t, runtime.NumCPU(), cfg.Income.Workers)
	assert.Equal(t, "household_size", cfg.Income.Attribute)
	assert.Equal(t, "household_income.csv", cfg.Income.Output)
	assert.Empty(t, cfg.Store.Driver)
	assert.Equal(t, "eu-west-3", cfg.S3.Region)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
input:
  persons: s3://synthesis/persons.csv
  homes: homes.csv
  delimiter: ";"
income:
  seed: 18446744073709551615
  workers: 2
  attribute: household_type
store:
  driver: sqlite
  sqlite_path: runs.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "s3://synthesis/persons.csv", cfg.Input.Persons)
	assert.Equal(t, ';', cfg.Input.DelimiterRune())
	assert.Equal(t, uint64(18446744073709551615), cfg.Income.Seed)
	assert.Equal(t, 2, cfg.Income.Workers)
	assert.Equal(t, "household_type", cfg.Income.Attribute)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "runs.db", cfg.Store.DSN())
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Filosofi.SkipRows)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\nincome:\n  seed: 1\n"), 0o644))
	t.Setenv("EQASIM_LOG_LEVEL", "warn")
	t.Setenv("EQASIM_INCOME_SEED", "99")
	t.Setenv("EQASIM_STORE_DRIVER", "postgres")
	t.Setenv("EQASIM_STORE_DATABASE_URL", "postgres://localhost/eqasim")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, uint64(99), cfg.Income.Seed)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/eqasim", cfg.Store.DSN())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validImpute() *Config {
	return &Config{
		Input:    InputConfig{Persons: "persons.csv", Homes: "homes.csv"},
		Filosofi: FilosofiConfig{Workbook: "FILO_DISP_COM.xls", SkipRows: 5},
		Income:   IncomeConfig{Workers: 4, Attribute: "household_size", Output: "out.csv"},
	}
}

func TestValidateImpute(t *testing.T) {
	assert.NoError(t, validImpute().Validate("impute"))
}

func TestValidateImpute_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("impute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.persons is required")
	assert.Contains(t, err.Error(), "input.homes is required")
	assert.Contains(t, err.Error(), "filosofi.workbook")
	assert.Contains(t, err.Error(), "income.attribute must be")
	assert.Contains(t, err.Error(), "income.workers must be >= 1")
}

func TestValidateImpute_FromStoreNeedsDriver(t *testing.T) {
	cfg := validImpute()
	cfg.Filosofi = FilosofiConfig{FromStore: true}

	err := cfg.Validate("impute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filosofi.from_store requires store.driver")

	cfg.Store = StoreConfig{Driver: "sqlite", SQLitePath: "eqasim.db"}
	assert.NoError(t, cfg.Validate("impute"))
}

func TestValidateBuild(t *testing.T) {
	cfg := &Config{Filosofi: FilosofiConfig{SkipRows: -1}}

	err := cfg.Validate("build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filosofi.workbook is required")
	assert.Contains(t, err.Error(), "filosofi.skip_rows must be >= 0")
}

func TestValidateStore(t *testing.T) {
	tests := []struct {
		name  string
		store StoreConfig
		want  string
	}{
		{"no driver", StoreConfig{}, "store.driver is required"},
		{"unknown driver", StoreConfig{Driver: "mysql"}, "store.driver must be sqlite or postgres"},
		{"postgres without url", StoreConfig{Driver: "postgres"}, "store.database_url is required"},
		{"sqlite without path", StoreConfig{Driver: "sqlite"}, "store.sqlite_path is required"},
		{"ok", StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/eqasim"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Store: tt.store}
			err := cfg.Validate("store")
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateUnknownMode(t *testing.T) {
	err := (&Config{}).Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
