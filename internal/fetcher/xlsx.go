package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Workbook is an opened XLSX file whose sheets can be read by name.
type Workbook struct {
	f *xlsx.File
}

// OpenXLSXBinary opens an XLSX file already loaded in memory.
func OpenXLSXBinary(data []byte) (*Workbook, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open binary")
	}
	return &Workbook{f: f}, nil
}

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.f.Sheets))
	for i, s := range w.f.Sheets {
		names[i] = s.Name
	}
	return names
}

// ReadSheet returns the rows of the named sheet as strings, dropping the first
// skipRows rows.
func (w *Workbook) ReadSheet(name string, skipRows int) ([][]string, error) {
	sheet, ok := w.f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < skipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
