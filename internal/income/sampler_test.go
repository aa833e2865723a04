package income

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellae/eqasim/internal/filosofi"
	"github.com/tellae/eqasim/internal/model"
)

var exampleDeciles = [filosofi.DecileCount]float64{800, 1100, 1400, 1700, 2000, 2300, 2600, 2900, 3200}

func sizeRow(commune string, bucket model.SizeBucket, deciles [filosofi.DecileCount]float64) filosofi.Row {
	return filosofi.Row{
		CommuneID:       commune,
		Attribute:       filosofi.AttrHouseholdSize,
		Modality:        string(bucket),
		Deciles:         deciles,
		ReferenceMedian: deciles[4],
	}
}

func scaled(d [filosofi.DecileCount]float64, f float64) [filosofi.DecileCount]float64 {
	for i := range d {
		d[i] *= f
	}
	return d
}

func testTable(t *testing.T, communes ...string) *filosofi.Table {
	t.Helper()
	var rows []filosofi.Row
	for ci, c := range communes {
		for bi, b := range []model.SizeBucket{model.Size1, model.Size2, model.Size3, model.Size4, model.Size5Plus} {
			rows = append(rows, sizeRow(c, b, scaled(exampleDeciles, 1+0.1*float64(ci)+0.05*float64(bi))))
		}
	}
	tbl, err := filosofi.NewTable(rows)
	require.NoError(t, err)
	return tbl
}

func household(id int64, commune string, size int, cu float64) model.HouseholdRecord {
	return model.HouseholdRecord{
		HouseholdID:      id,
		CommuneID:        commune,
		ConsumptionUnits: cu,
		PersonCount:      size,
		SizeBucket:       model.SizeBucketFor(size),
		Type:             model.ComplexHousehold,
	}
}

func TestBoundaries(t *testing.T) {
	b := NewBoundaries(sizeRow("75056", model.Size1, exampleDeciles))

	assert.Equal(t, 0.0, b[0])
	assert.InDelta(t, 800.0/12, b[1], 1e-9)
	assert.InDelta(t, 3200.0/12, b[9], 1e-9)
	assert.InDelta(t, 3200.0/12*1.2, b[10], 1e-9)
}

func TestBoundaries_Draw(t *testing.T) {
	b := NewBoundaries(sizeRow("75056", model.Size1, exampleDeciles))

	// Top stratum, half way, for a household of 1.5 consumption units.
	assert.InDelta(t, 440.0, b.Draw(9, 0.5)*1.5, 1e-9)
	assert.Equal(t, 0.0, b.Draw(0, 0))
	assert.InDelta(t, 800.0/12, b.Draw(1, 0), 1e-9)
}

func TestNewSampler_UnknownAttribute(t *testing.T) {
	_, err := NewSampler(testTable(t, "01001"), filosofi.AttrHousingTenure)
	require.Error(t, err)
}

func TestSampler_Bounds(t *testing.T) {
	tbl := testTable(t, "01001")
	s, err := NewSampler(tbl, filosofi.AttrHouseholdSize)
	require.NoError(t, err)

	var hs []model.HouseholdRecord
	for i := range 500 {
		hs = append(hs, household(int64(i), "01001", 1+i%6, 1+float64(i%4)*0.5))
	}

	incomes, err := s.Sample("01001", 42, hs)
	require.NoError(t, err)
	require.Len(t, incomes, len(hs))

	for i, h := range hs {
		row, ok := tbl.Lookup("01001", filosofi.AttrHouseholdSize, string(h.SizeBucket))
		require.True(t, ok)
		upper := row.Deciles[8] / 12 * MaximumIncomeFactor * h.ConsumptionUnits
		assert.GreaterOrEqual(t, incomes[i], 0.0)
		assert.Less(t, incomes[i], upper)
	}
}

func TestSampler_DrawOrder(t *testing.T) {
	tbl := testTable(t, "01001")
	s, err := NewSampler(tbl, filosofi.AttrHouseholdSize)
	require.NoError(t, err)

	hs := []model.HouseholdRecord{
		household(1, "01001", 1, 1),
		household(2, "01001", 3, 2),
		household(3, "01001", 2, 1.5),
	}
	got, err := s.Sample("01001", 7, hs)
	require.NoError(t, err)

	rng := NewRand(7)
	strata := make([]int, len(hs))
	for i := range strata {
		strata[i] = rng.IntN(StrataCount)
	}
	for i, h := range hs {
		row, _ := tbl.Lookup("01001", filosofi.AttrHouseholdSize, string(h.SizeBucket))
		want := NewBoundaries(row).Draw(strata[i], rng.Float64()) * h.ConsumptionUnits
		assert.Equal(t, want, got[i], "household %d", h.HouseholdID)
	}
}

func TestSampler_SameSeedSameIncomes(t *testing.T) {
	s, err := NewSampler(testTable(t, "01001"), filosofi.AttrHouseholdSize)
	require.NoError(t, err)

	hs := []model.HouseholdRecord{household(1, "01001", 1, 1), household(2, "01001", 4, 2.1)}
	a, err := s.Sample("01001", 99, hs)
	require.NoError(t, err)
	b, err := s.Sample("01001", 99, hs)
	require.NoError(t, err)
	c, err := s.Sample("01001", 100, hs)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSampler_ByHouseholdType(t *testing.T) {
	row := filosofi.Row{
		CommuneID:       "01001",
		Attribute:       filosofi.AttrHouseholdType,
		Modality:        string(model.SingleWoman),
		Deciles:         exampleDeciles,
		ReferenceMedian: exampleDeciles[4],
	}
	tbl, err := filosofi.NewTable([]filosofi.Row{row})
	require.NoError(t, err)

	s, err := NewSampler(tbl, filosofi.AttrHouseholdType)
	require.NoError(t, err)

	h := household(1, "01001", 1, 1)
	h.Type = model.SingleWoman
	incomes, err := s.Sample("01001", 1, []model.HouseholdRecord{h})
	require.NoError(t, err)
	assert.Len(t, incomes, 1)

	h.Type = model.SingleMan
	_, err = s.Sample("01001", 1, []model.HouseholdRecord{h})
	var missing *MissingDistributionError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, string(model.SingleMan), missing.Modality)
}

func TestSampler_MissingDistribution(t *testing.T) {
	s, err := NewSampler(testTable(t, "01001"), filosofi.AttrHouseholdSize)
	require.NoError(t, err)

	_, err = s.Sample("99999", 1, []model.HouseholdRecord{household(1, "99999", 2, 1)})
	var missing *MissingDistributionError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "99999", missing.CommuneID)
	assert.Equal(t, filosofi.AttrHouseholdSize, missing.Attribute)
	assert.Equal(t, "2_pers", missing.Modality)
	assert.Contains(t, err.Error(), "commune 99999")
}

func TestSampler_Empty(t *testing.T) {
	s, err := NewSampler(testTable(t, "01001"), filosofi.AttrHouseholdSize)
	require.NoError(t, err)

	incomes, err := s.Sample("01001", 1, nil)
	require.NoError(t, err)
	assert.Empty(t, incomes)
}
