package filosofi

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/fetcher"
)

// DecileCount is the number of decile cutoffs per row (q1..q9).
const DecileCount = 9

// Row is the income distribution of one modality in one municipality.
// Deciles hold annual income cutoffs q1..q9.
type Row struct {
	CommuneID       string
	Attribute       string
	Modality        string
	Deciles         [DecileCount]float64
	ReferenceMedian float64
}

// Validate checks that deciles are finite, non-negative and non-decreasing
// and that the reference median equals q5.
func (r Row) Validate() error {
	for i, q := range r.Deciles {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return &ValidationError{Row: r, Reason: "q" + strconv.Itoa(i+1) + " is not finite"}
		}
		if q < 0 {
			return &ValidationError{Row: r, Reason: "q" + strconv.Itoa(i+1) + " is negative"}
		}
		if i > 0 && q < r.Deciles[i-1] {
			return &ValidationError{Row: r, Reason: "q" + strconv.Itoa(i+1) + " is below q" + strconv.Itoa(i)}
		}
	}
	if r.ReferenceMedian != r.Deciles[4] {
		return &ValidationError{Row: r, Reason: "reference median differs from q5"}
	}
	return nil
}

type rowKey struct {
	commune   string
	attribute string
	modality  string
}

// Table is the long-form municipality income table. It is read-only once
// built and safe for concurrent lookups.
type Table struct {
	rows  []Row
	index map[rowKey]int
}

// NewTable indexes rows. Duplicate (commune, attribute, modality) keys are
// rejected.
func NewTable(rows []Row) (*Table, error) {
	t := &Table{rows: rows, index: make(map[rowKey]int, len(rows))}
	for i, r := range rows {
		k := rowKey{r.CommuneID, r.Attribute, r.Modality}
		if _, dup := t.index[k]; dup {
			return nil, eris.Errorf("filosofi: duplicate row for commune %s, %s=%s", r.CommuneID, r.Attribute, r.Modality)
		}
		t.index[k] = i
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the rows in build order. The slice must not be modified.
func (t *Table) Rows() []Row { return t.rows }

// Lookup returns the row for a commune and modality of an attribute.
func (t *Table) Lookup(commune, attribute, modality string) (Row, bool) {
	i, ok := t.index[rowKey{commune, attribute, modality}]
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// Filter returns a table restricted to one attribute.
func (t *Table) Filter(attribute string) *Table {
	out := &Table{index: make(map[rowKey]int)}
	for _, r := range t.rows {
		if r.Attribute == attribute {
			out.index[rowKey{r.CommuneID, r.Attribute, r.Modality}] = len(out.rows)
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Communes lists distinct commune ids in first-appearance order.
func (t *Table) Communes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.rows {
		if !seen[r.CommuneID] {
			seen[r.CommuneID] = true
			out = append(out, r.CommuneID)
		}
	}
	return out
}

// Attributes returns the number of distinct attributes and of distinct
// (attribute, modality) pairs.
func (t *Table) Attributes() (attributes, modalities int) {
	attrs := make(map[string]bool)
	mods := make(map[[2]string]bool)
	for _, r := range t.rows {
		attrs[r.Attribute] = true
		mods[[2]string{r.Attribute, r.Modality}] = true
	}
	return len(attrs), len(mods)
}

var csvHeader = []string{
	"commune_id", "q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8", "q9",
	"reference_median", "attribute", "modality",
}

// WriteCSV writes the table in long form.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "filosofi: write header")
	}
	rec := make([]string, len(csvHeader))
	for _, r := range t.rows {
		rec[0] = r.CommuneID
		for i, q := range r.Deciles {
			rec[i+1] = strconv.FormatFloat(q, 'f', -1, 64)
		}
		rec[10] = strconv.FormatFloat(r.ReferenceMedian, 'f', -1, 64)
		rec[11] = r.Attribute
		rec[12] = r.Modality
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "filosofi: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "filosofi: flush csv")
}

// ReadCSV reads a long-form table written by WriteCSV. Columns are matched by
// header name.
func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var (
		colIdx map[string]int
		rows   []Row
		line   = 1
	)
	for rec := range rowCh {
		line++
		if colIdx == nil {
			colIdx = mapColumns(<-headerCh)
			for _, c := range csvHeader {
				if _, ok := colIdx[normalizeCol(c)]; !ok {
					return nil, eris.Errorf("filosofi: csv missing column %q", c)
				}
			}
		}

		row := Row{
			CommuneID: getCol(rec, colIdx, "commune_id"),
			Attribute: getCol(rec, colIdx, "attribute"),
			Modality:  getCol(rec, colIdx, "modality"),
		}
		for i := range DecileCount {
			v, err := strconv.ParseFloat(getCol(rec, colIdx, "q"+strconv.Itoa(i+1)), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "filosofi: line %d q%d", line, i+1)
			}
			row.Deciles[i] = v
		}
		median, err := strconv.ParseFloat(getCol(rec, colIdx, "reference_median"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "filosofi: line %d reference_median", line)
		}
		row.ReferenceMedian = median
		if err := row.Validate(); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrap(err, "filosofi: read csv")
		}
	}

	return NewTable(rows)
}
