package income

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/model"
)

// OutputHeader is the header row written by WriteCSV.
var OutputHeader = []string{"household_id", "household_income", "consumption_units"}

// WriteCSV writes assignments in input order with a header row.
func WriteCSV(w io.Writer, assignments []model.IncomeAssignment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputHeader); err != nil {
		return eris.Wrap(err, "income: write header")
	}
	for _, a := range assignments {
		rec := []string{
			strconv.FormatInt(a.HouseholdID, 10),
			strconv.FormatFloat(a.HouseholdIncome, 'f', -1, 64),
			strconv.FormatFloat(a.ConsumptionUnits, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "income: write household %d", a.HouseholdID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "income: flush output")
}
