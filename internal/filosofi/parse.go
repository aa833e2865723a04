package filosofi

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// mapColumns maps upper-cased, trimmed header names to their column index.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[normalizeCol(col)] = i
	}
	return m
}

// getCol gets a column value by name, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[normalizeCol(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func normalizeCol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseAmount parses a decile cell. Blank cells and the statistical secrecy
// markers used by INSEE ("s", "nd", "ns") report ok=false. Anything else that
// is not a finite number is an error.
func parseAmount(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "s", "nd", "ns", "n/a", "nan":
		return 0, false, nil
	}
	n := strings.ReplaceAll(s, " ", "")
	n = strings.ReplaceAll(n, "\u00a0", "")
	n = strings.ReplaceAll(n, ",", ".")
	v, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, false, eris.Errorf("malformed amount %q", s)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, eris.Errorf("non-finite amount %q", s)
	}
	return v, true, nil
}
