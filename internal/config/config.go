package config

import (
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Filosofi FilosofiConfig `yaml:"filosofi" mapstructure:"filosofi"`
	Income   IncomeConfig   `yaml:"income" mapstructure:"income"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	S3       S3Config       `yaml:"s3" mapstructure:"s3"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
}

// InputConfig locates the synthetic population tables. Paths may be local,
// http(s):// or s3://bucket/key.
type InputConfig struct {
	Persons   string `yaml:"persons" mapstructure:"persons"`
	Homes     string `yaml:"homes" mapstructure:"homes"`
	Charset   string `yaml:"charset" mapstructure:"charset"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
}

// DelimiterRune returns the CSV delimiter, ',' when unset.
func (c InputConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// FilosofiConfig locates the municipality income tables. Workbook is the
// INSEE xlsx; TableCSV is a long-form table written by "attributes build".
// When FromStore is set the table is read from the store instead.
type FilosofiConfig struct {
	Workbook      string `yaml:"workbook" mapstructure:"workbook"`
	TableCSV      string `yaml:"table_csv" mapstructure:"table_csv"`
	Registry      string `yaml:"registry" mapstructure:"registry"`
	SkipRows      int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	VintageSuffix string `yaml:"vintage_suffix" mapstructure:"vintage_suffix"`
	CommuneColumn string `yaml:"commune_column" mapstructure:"commune_column"`
	FromStore     bool   `yaml:"from_store" mapstructure:"from_store"`
}

// IncomeConfig configures the imputation.
type IncomeConfig struct {
	Seed      uint64 `yaml:"seed" mapstructure:"seed"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
	Attribute string `yaml:"attribute" mapstructure:"attribute"`
	Output    string `yaml:"output" mapstructure:"output"`
}

// StoreConfig selects the run store. An empty driver disables persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DSN returns the connection string for the configured driver.
func (c StoreConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// S3Config configures access to s3:// inputs.
type S3Config struct {
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	PathStyle       bool   `yaml:"path_style" mapstructure:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// HTTPConfig configures downloads of http(s):// inputs.
type HTTPConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EQASIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so that AutomaticEnv can override it.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.persons", "")
	v.SetDefault("input.homes", "")
	v.SetDefault("input.charset", "utf-8")
	v.SetDefault("input.delimiter", ",")
	v.SetDefault("filosofi.workbook", "")
	v.SetDefault("filosofi.table_csv", "")
	v.SetDefault("filosofi.registry", "")
	v.SetDefault("filosofi.skip_rows", 5)
	v.SetDefault("filosofi.vintage_suffix", "15")
	v.SetDefault("filosofi.commune_column", "CODGEO")
	v.SetDefault("filosofi.from_store", false)
	v.SetDefault("income.seed", 0)
	v.SetDefault("income.workers", runtime.NumCPU())
	v.SetDefault("income.attribute", "household_size")
	v.SetDefault("income.output", "household_income.csv")
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "eqasim.db")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("s3.region", "eu-west-3")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("http.user_agent", "eqasim-income")
	v.SetDefault("http.timeout_secs", 120)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.rate_limit", 0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "impute",
// "build" or "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "impute":
		if c.Input.Persons == "" {
			errs = append(errs, "input.persons is required")
		}
		if c.Input.Homes == "" {
			errs = append(errs, "input.homes is required")
		}
		if c.Filosofi.Workbook == "" && c.Filosofi.TableCSV == "" && !c.Filosofi.FromStore {
			errs = append(errs, "one of filosofi.workbook, filosofi.table_csv or filosofi.from_store is required")
		}
		if c.Filosofi.FromStore && c.Store.Driver == "" {
			errs = append(errs, "filosofi.from_store requires store.driver")
		}
		if c.Income.Attribute != "household_size" && c.Income.Attribute != "household_type" {
			errs = append(errs, "income.attribute must be household_size or household_type")
		}
		if c.Income.Workers < 1 {
			errs = append(errs, "income.workers must be >= 1")
		}
		if c.Income.Output == "" {
			errs = append(errs, "income.output is required")
		}
		errs = append(errs, c.storeErrors(false)...)
	case "build":
		if c.Filosofi.Workbook == "" {
			errs = append(errs, "filosofi.workbook is required")
		}
		if c.Filosofi.SkipRows < 0 {
			errs = append(errs, "filosofi.skip_rows must be >= 0")
		}
		errs = append(errs, c.storeErrors(false)...)
	case "store":
		errs = append(errs, c.storeErrors(true)...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors(required bool) []string {
	switch c.Store.Driver {
	case "":
		if required {
			return []string{"store.driver is required"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
