// Package filosofi builds the long-form municipality income table from the
// INSEE Filosofi workbook: one row per (commune, attribute, modality) with
// nine decile cutoffs.
package filosofi

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SheetReader reads a workbook sheet as string rows, dropping the first
// skipRows rows.
type SheetReader interface {
	ReadSheet(name string, skipRows int) ([][]string, error)
}

// BuilderOptions describes the sheet layout.
type BuilderOptions struct {
	SkipRows      int    // rows above the header; default 5
	VintageSuffix string // two-digit year in column names; default "15"
	CommuneColumn string // default "CODGEO"
}

// Builder extracts the income table for every modality of a registry.
type Builder struct {
	reg  *Registry
	opts BuilderOptions
}

// NewBuilder creates a Builder, filling option defaults.
func NewBuilder(reg *Registry, opts BuilderOptions) *Builder {
	if opts.SkipRows == 0 {
		opts.SkipRows = 5
	}
	if opts.VintageSuffix == "" {
		opts.VintageSuffix = "15"
	}
	if opts.CommuneColumn == "" {
		opts.CommuneColumn = "CODGEO"
	}
	return &Builder{reg: reg, opts: opts}
}

// DecileColumns returns the nine column names for a modality pattern:
// <pattern>D<q><yy> for q in 1..4 and 6..9, and the median <pattern>Q2<yy>
// at position 5.
func (b *Builder) DecileColumns(pattern string) [DecileCount]string {
	var cols [DecileCount]string
	for q := 1; q <= DecileCount; q++ {
		if q == 5 {
			cols[q-1] = fmt.Sprintf("%sQ2%s", pattern, b.opts.VintageSuffix)
			continue
		}
		cols[q-1] = fmt.Sprintf("%sD%d%s", pattern, q, b.opts.VintageSuffix)
	}
	return cols
}

// Build reads every registry sheet and returns the validated table. A table
// whose attribute or modality count differs from the registry yields a
// *StructuralError.
func (b *Builder) Build(ctx context.Context, src SheetReader) (*Table, error) {
	log := zap.L().With(zap.String("component", "filosofi.builder"))

	var rows []Row
	for _, attr := range b.reg.Attributes {
		for _, mod := range attr.Modalities {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "filosofi: build cancelled")
			}

			extracted, skipped, err := b.extract(src, attr.Name, mod)
			if err != nil {
				return nil, err
			}
			log.Debug("extracted modality",
				zap.String("attribute", attr.Name),
				zap.String("modality", mod.Name),
				zap.Int("rows", len(extracted)),
				zap.Int("skipped", skipped),
			)
			if skipped > 0 {
				log.Info("skipped communes without complete deciles",
					zap.String("sheet", mod.Sheet),
					zap.Int("skipped", skipped),
				)
			}
			rows = append(rows, extracted...)
		}
	}

	table, err := NewTable(rows)
	if err != nil {
		return nil, err
	}
	if err := b.reg.CheckShape(table); err != nil {
		return nil, err
	}

	log.Info("built income table",
		zap.Int("rows", table.Len()),
		zap.Int("communes", len(table.Communes())),
	)
	return table, nil
}

// extract reads one modality sheet. Rows with a blank or secret decile are
// skipped and counted.
func (b *Builder) extract(src SheetReader, attribute string, mod Modality) ([]Row, int, error) {
	records, err := src.ReadSheet(mod.Sheet, b.opts.SkipRows)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "filosofi: read sheet %s", mod.Sheet)
	}
	if len(records) == 0 {
		return nil, 0, eris.Errorf("filosofi: sheet %s has no header row", mod.Sheet)
	}

	colIdx := mapColumns(records[0])
	cols := b.DecileColumns(mod.ColPattern)
	required := append([]string{b.opts.CommuneColumn}, cols[:]...)
	for _, c := range required {
		if _, ok := colIdx[normalizeCol(c)]; !ok {
			return nil, 0, eris.Errorf("filosofi: sheet %s missing column %s", mod.Sheet, c)
		}
	}

	var (
		rows    []Row
		skipped int
	)
	for _, rec := range records[1:] {
		commune := getCol(rec, colIdx, b.opts.CommuneColumn)
		if commune == "" {
			continue
		}

		row := Row{CommuneID: commune, Attribute: attribute, Modality: mod.Name}
		complete := true
		for i, c := range cols {
			v, ok, err := parseAmount(getCol(rec, colIdx, c))
			if err != nil {
				return nil, 0, &ValidationError{Row: row, Reason: c + ": " + err.Error()}
			}
			if !ok {
				complete = false
				break
			}
			row.Deciles[i] = v
		}
		if !complete {
			skipped++
			continue
		}
		row.ReferenceMedian = row.Deciles[4]

		if err := row.Validate(); err != nil {
			return nil, 0, err
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}
