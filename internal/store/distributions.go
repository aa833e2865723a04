package store

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/filosofi"
)

var distributionColumns = []string{
	"commune_id", "attribute", "modality",
	"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8", "q9",
	"reference_median",
}

var distributionColumnList = strings.Join(distributionColumns, ", ")

func distributionValues(r filosofi.Row) []any {
	vals := make([]any, 0, len(distributionColumns))
	vals = append(vals, r.CommuneID, r.Attribute, r.Modality)
	for _, q := range r.Deciles {
		vals = append(vals, q)
	}
	return append(vals, r.ReferenceMedian)
}

func scanDistribution(row scannable) (filosofi.Row, error) {
	var r filosofi.Row
	dest := []any{&r.CommuneID, &r.Attribute, &r.Modality}
	for i := range r.Deciles {
		dest = append(dest, &r.Deciles[i])
	}
	dest = append(dest, &r.ReferenceMedian)
	if err := row.Scan(dest...); err != nil {
		return r, eris.Wrap(err, "store: scan distribution")
	}
	return r, nil
}
