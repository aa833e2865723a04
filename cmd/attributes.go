package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tellae/eqasim/internal/config"
	"github.com/tellae/eqasim/internal/filosofi"
)

var attributesCmd = &cobra.Command{
	Use:   "attributes",
	Short: "Build and check the Filosofi municipality income table",
}

// -- attributes build --

var attributesBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Parse the Filosofi workbook into a long-form income table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if wb, _ := cmd.Flags().GetString("workbook"); wb != "" {
			cfg.Filosofi.Workbook = wb
		}
		if err := cfg.Validate("build"); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")

		t, err := runAttributesBuild(cmd.Context(), cfg, out, save)
		if err != nil {
			return err
		}
		formatTableSummary(os.Stdout, t)
		return nil
	},
}

// -- attributes validate --

var attributesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a built table (or the workbook) against the attribute registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if table, _ := cmd.Flags().GetString("table"); table != "" {
			cfg.Filosofi.TableCSV = table
		}
		t, err := runAttributesValidate(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		formatTableSummary(os.Stdout, t)
		return nil
	},
}

func init() {
	attributesBuildCmd.Flags().String("workbook", "", "Filosofi workbook (overrides filosofi.workbook)")
	attributesBuildCmd.Flags().String("out", "filosofi_income.csv", "long-form table output path")
	attributesBuildCmd.Flags().Bool("save", false, "also save the table to the configured store")

	attributesValidateCmd.Flags().String("table", "", "long-form table CSV to check (overrides filosofi.table_csv)")

	attributesCmd.AddCommand(attributesBuildCmd)
	attributesCmd.AddCommand(attributesValidateCmd)
	rootCmd.AddCommand(attributesCmd)
}

func runAttributesBuild(ctx context.Context, c *config.Config, out string, save bool) (*filosofi.Table, error) {
	opener, err := initOpener(ctx, c)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(ctx, c, opener)
	if err != nil {
		return nil, err
	}
	t, err := buildTable(ctx, c, opener, reg)
	if err != nil {
		return nil, err
	}

	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return nil, eris.Wrapf(err, "attributes: create %s", out)
		}
		if err := t.WriteCSV(f); err != nil {
			f.Close() //nolint:errcheck
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, eris.Wrapf(err, "attributes: close %s", out)
		}
	}

	if save {
		if c.Store.Driver == "" {
			return nil, eris.New("attributes: --save needs store.driver")
		}
		st, err := initStore(ctx, c)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck
		n, err := st.SaveDistributions(ctx, t.Rows())
		if err != nil {
			return nil, err
		}
		zap.L().Info("saved income table", zap.Int64("rows", n))
	}
	return t, nil
}

// runAttributesValidate reads the configured table and checks its shape. A
// workbook is validated by building it.
func runAttributesValidate(ctx context.Context, c *config.Config) (*filosofi.Table, error) {
	opener, err := initOpener(ctx, c)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(ctx, c, opener)
	if err != nil {
		return nil, err
	}

	if c.Filosofi.TableCSV == "" {
		if c.Filosofi.Workbook == "" {
			return nil, eris.New("attributes: nothing to validate; set filosofi.table_csv or filosofi.workbook")
		}
		return buildTable(ctx, c, opener, reg)
	}

	rc, err := opener.Open(ctx, c.Filosofi.TableCSV)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	t, err := filosofi.ReadCSV(ctx, rc)
	if err != nil {
		return nil, err
	}
	if err := reg.CheckShape(t); err != nil {
		return nil, err
	}
	return t, nil
}

// formatTableSummary writes row, commune and modality counts per attribute.
func formatTableSummary(out io.Writer, t *filosofi.Table) {
	attrs, mods := t.Attributes()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", t.Len())
	_, _ = fmt.Fprintf(w, "Communes:\t%d\n", len(t.Communes()))
	_, _ = fmt.Fprintf(w, "Attributes:\t%d\n", attrs)
	_, _ = fmt.Fprintf(w, "Modalities:\t%d\n", mods)
	_ = w.Flush()
}
