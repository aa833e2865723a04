package income

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellae/eqasim/internal/model"
)

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []model.IncomeAssignment{
		{HouseholdID: 12, HouseholdIncome: 440, ConsumptionUnits: 1.5},
		{HouseholdID: 3, HouseholdIncome: 1234.5, ConsumptionUnits: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "household_id,household_income,consumption_units\n12,440,1.5\n3,1234.5,1\n", buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "household_id,household_income,consumption_units\n", buf.String())
}
