package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tellae/eqasim/internal/config"
	"github.com/tellae/eqasim/internal/fetcher"
	"github.com/tellae/eqasim/internal/household"
	"github.com/tellae/eqasim/internal/income"
	"github.com/tellae/eqasim/internal/model"
	"github.com/tellae/eqasim/internal/population"
	"github.com/tellae/eqasim/internal/store"
)

var imputeCmd = &cobra.Command{
	Use:   "impute",
	Short: "Impute a monthly income for every household",
	Long: `Loads persons and homes, classifies households by size and type, and
draws one income per household from its municipality's decile distribution.
Results are written to income.output and, when a store is configured,
recorded as a run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyImputeFlags(cmd, cfg)
		if err := cfg.Validate("impute"); err != nil {
			return err
		}
		_, err := runImpute(cmd.Context(), cfg)
		return err
	},
}

func init() {
	addImputeFlags(imputeCmd.Flags())
	rootCmd.AddCommand(imputeCmd)
}

func addImputeFlags(f *pflag.FlagSet) {
	f.String("persons", "", "person table (overrides input.persons)")
	f.String("homes", "", "home table (overrides input.homes)")
	f.String("workbook", "", "Filosofi workbook (overrides filosofi.workbook)")
	f.String("table", "", "long-form income table CSV (overrides filosofi.table_csv)")
	f.String("output", "", "output CSV path (overrides income.output)")
	f.Uint64("seed", 0, "master random seed (overrides income.seed)")
	f.Int("workers", 0, "parallel municipality tasks (overrides income.workers)")
	f.String("attribute", "", "stratification attribute: household_size or household_type")
}

// applyImputeFlags copies explicitly set flags over the loaded config.
func applyImputeFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("persons") {
		c.Input.Persons, _ = f.GetString("persons")
	}
	if f.Changed("homes") {
		c.Input.Homes, _ = f.GetString("homes")
	}
	if f.Changed("workbook") {
		c.Filosofi.Workbook, _ = f.GetString("workbook")
	}
	if f.Changed("table") {
		c.Filosofi.TableCSV, _ = f.GetString("table")
	}
	if f.Changed("output") {
		c.Income.Output, _ = f.GetString("output")
	}
	if f.Changed("seed") {
		c.Income.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("workers") {
		c.Income.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("attribute") {
		c.Income.Attribute, _ = f.GetString("attribute")
	}
}

// runImpute executes one imputation run. When a store is configured the run
// is recorded, and marked failed if any step errors.
func runImpute(ctx context.Context, c *config.Config) (*income.Result, error) {
	log := zap.L().With(zap.String("component", "impute"))

	opener, err := initOpener(ctx, c)
	if err != nil {
		return nil, err
	}
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	reg := prometheus.NewRegistry()
	metrics := income.NewMetrics(reg)

	var run *model.Run
	if st != nil {
		if run, err = st.CreateRun(ctx, c.Income.Seed, c.Income.Attribute); err != nil {
			return nil, err
		}
		log = log.With(zap.String("run_id", run.ID))
	}

	res, err := impute(ctx, c, opener, st, metrics)
	if err != nil {
		if run != nil {
			if ferr := st.FailRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
				log.Error("failed to record run failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	if run != nil {
		if err := persistRun(ctx, st, run.ID, res); err != nil {
			return nil, err
		}
	}

	if c.Metrics.Textfile != "" {
		if err := income.WriteTextfile(c.Metrics.Textfile, reg); err != nil {
			log.Warn("failed to write metrics", zap.Error(err))
		}
	}

	log.Info("run complete",
		zap.Int("households", res.Summary.Households),
		zap.Int("communes", res.Summary.Communes),
		zap.Float64("mean_income", res.Summary.Mean),
		zap.Float64("min_income", res.Summary.Min),
		zap.Float64("max_income", res.Summary.Max),
		zap.String("output", c.Income.Output),
	)
	return res, nil
}

func impute(ctx context.Context, c *config.Config, opener *fetcher.Opener, st store.Store, metrics *income.Metrics) (*income.Result, error) {
	log := zap.L().With(zap.String("component", "impute"))

	table, err := loadTable(ctx, c, opener, st)
	if err != nil {
		return nil, err
	}

	loader := population.NewLoader(opener, population.Options{
		Delimiter: c.Input.DelimiterRune(),
		Charset:   c.Input.Charset,
	})
	persons, err := loader.Persons(ctx, c.Input.Persons)
	if err != nil {
		return nil, err
	}
	homes, err := loader.Homes(ctx, c.Input.Homes)
	if err != nil {
		return nil, err
	}

	classified, err := household.NewClassifier().Classify(persons)
	if err != nil {
		return nil, err
	}
	metrics.ObserveClassification(classified.Counts)
	if len(classified.Flags) > 0 {
		log.Warn("households flagged during classification", zap.Int("flagged", len(classified.Flags)))
	}

	households, err := income.Join(classified.Households, homes)
	if err != nil {
		return nil, err
	}

	imp, err := income.NewImputer(table.Filter(c.Income.Attribute), income.Options{
		Seed:      c.Income.Seed,
		Workers:   c.Income.Workers,
		Attribute: c.Income.Attribute,
	}, metrics)
	if err != nil {
		return nil, err
	}
	res, err := imp.Run(ctx, households)
	if err != nil {
		return nil, err
	}

	if err := writeOutput(c.Income.Output, res.Assignments); err != nil {
		return nil, err
	}
	return res, nil
}

func writeOutput(path string, assignments []model.IncomeAssignment) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "impute: create %s", path)
	}
	if err := income.WriteCSV(f, assignments); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "impute: close %s", path)
}

func persistRun(ctx context.Context, st store.Store, runID string, res *income.Result) error {
	if _, err := st.SaveAssignments(ctx, runID, res.Assignments); err != nil {
		if ferr := st.FailRun(context.WithoutCancel(ctx), runID, err); ferr != nil {
			zap.L().Error("failed to record run failure", zap.String("run_id", runID), zap.Error(ferr))
		}
		return err
	}
	return st.CompleteRun(ctx, runID, res.Summary.Households, res.Summary.Communes)
}
