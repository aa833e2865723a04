package household

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellae/eqasim/internal/model"
)

var nextPersonID int64

// hh builds the persons of one household. Each member is (sex, age, couple).
func hh(id int64, members ...model.PersonRecord) []model.PersonRecord {
	out := make([]model.PersonRecord, len(members))
	for i, m := range members {
		nextPersonID++
		m.PersonID = nextPersonID
		m.HouseholdID = id
		m.HouseholdSize = len(members)
		m.ConsumptionUnits = 1.5
		out[i] = m
	}
	return out
}

func person(sex model.Sex, age int, couple bool) model.PersonRecord {
	return model.PersonRecord{Sex: sex, Age: age, Couple: couple}
}

func classifyOne(t *testing.T, persons []model.PersonRecord) model.HouseholdRecord {
	t.Helper()
	res, err := NewClassifier().Classify(persons)
	require.NoError(t, err)
	require.Len(t, res.Households, 1)
	return res.Households[0]
}

func TestClassify_Types(t *testing.T) {
	tests := []struct {
		name    string
		members []model.PersonRecord
		want    model.HouseholdType
		bucket  model.SizeBucket
	}{
		{"single man", []model.PersonRecord{person(model.SexMale, 40, false)}, model.SingleMan, model.Size1},
		{"single woman", []model.PersonRecord{person(model.SexFemale, 80, false)}, model.SingleWoman, model.Size1},
		{"couple without child", []model.PersonRecord{
			person(model.SexMale, 50, true), person(model.SexFemale, 48, true),
		}, model.CoupleWithoutChild, model.Size2},
		{"couple with one child", []model.PersonRecord{
			person(model.SexMale, 45, true), person(model.SexFemale, 43, true), person(model.SexMale, 17, false),
		}, model.CoupleWithChild, model.Size3},
		{"couple with four children", []model.PersonRecord{
			person(model.SexMale, 45, true), person(model.SexFemale, 43, true),
			person(model.SexMale, 17, false), person(model.SexFemale, 15, false),
			person(model.SexMale, 9, false), person(model.SexFemale, 24, false),
		}, model.CoupleWithChild, model.Size5Plus},
		{"couple with adult lodger", []model.PersonRecord{
			person(model.SexMale, 45, true), person(model.SexFemale, 43, true), person(model.SexMale, 30, false),
		}, model.ComplexHousehold, model.Size3},
		{"single parent", []model.PersonRecord{
			person(model.SexFemale, 38, false), person(model.SexMale, 10, false), person(model.SexFemale, 6, false),
		}, model.SingleParent, model.Size3},
		{"parent too old", []model.PersonRecord{
			person(model.SexFemale, 60, false), person(model.SexMale, 20, false),
		}, model.ComplexHousehold, model.Size2},
		{"parent too young", []model.PersonRecord{
			person(model.SexFemale, 24, false), person(model.SexMale, 2, false),
		}, model.ComplexHousehold, model.Size2},
		{"flatmates", []model.PersonRecord{
			person(model.SexFemale, 30, false), person(model.SexMale, 29, false),
		}, model.ComplexHousehold, model.Size2},
		{"one partner reported", []model.PersonRecord{
			person(model.SexFemale, 30, true), person(model.SexMale, 29, false),
		}, model.ComplexHousehold, model.Size2},
		{"three couple members", []model.PersonRecord{
			person(model.SexFemale, 30, true), person(model.SexMale, 29, true), person(model.SexMale, 28, true),
			person(model.SexMale, 3, false),
		}, model.ComplexHousehold, model.Size4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyOne(t, hh(1, tt.members...))
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.bucket, got.SizeBucket)
			assert.Equal(t, len(tt.members), got.PersonCount)
			assert.Equal(t, 1.5, got.ConsumptionUnits)
		})
	}
}

func TestClassify_OnePerHouseholdInOrder(t *testing.T) {
	var persons []model.PersonRecord
	persons = append(persons, hh(30, person(model.SexMale, 40, false))...)
	persons = append(persons, hh(10, person(model.SexMale, 45, true), person(model.SexFemale, 44, true))...)
	persons = append(persons, hh(20, person(model.SexFemale, 35, false), person(model.SexMale, 3, false))...)

	res, err := NewClassifier().Classify(persons)
	require.NoError(t, err)
	require.Len(t, res.Households, 3)

	ids := []int64{res.Households[0].HouseholdID, res.Households[1].HouseholdID, res.Households[2].HouseholdID}
	assert.Equal(t, []int64{30, 10, 20}, ids)
	assert.Equal(t, 1, res.Counts[model.SingleMan])
	assert.Equal(t, 1, res.Counts[model.CoupleWithoutChild])
	assert.Equal(t, 1, res.Counts[model.SingleParent])
	assert.Empty(t, res.Flags)
}

func TestClassify_InterleavedPersons(t *testing.T) {
	a := hh(1, person(model.SexMale, 45, true), person(model.SexFemale, 43, true), person(model.SexMale, 5, false))
	b := hh(2, person(model.SexFemale, 70, false))
	persons := []model.PersonRecord{a[0], b[0], a[1], a[2]}

	res, err := NewClassifier().Classify(persons)
	require.NoError(t, err)
	require.Len(t, res.Households, 2)
	assert.Equal(t, model.CoupleWithChild, res.Households[0].Type)
	assert.Equal(t, model.SingleWoman, res.Households[1].Type)
}

func TestClassify_Flags(t *testing.T) {
	unknown := hh(1, person(model.Sex("x"), 40, false))
	mismatch := hh(2, person(model.SexMale, 40, true), person(model.SexFemale, 40, true))
	mismatch[0].HouseholdSize = 3
	mismatch[1].HouseholdSize = 3

	res, err := NewClassifier().Classify(append(unknown, mismatch...))
	require.NoError(t, err)

	assert.Equal(t, model.ComplexHousehold, res.Households[0].Type)
	assert.Equal(t, model.CoupleWithoutChild, res.Households[1].Type)
	assert.ElementsMatch(t, []Flag{
		{HouseholdID: 1, Reason: FlagSingleFallback},
		{HouseholdID: 2, Reason: FlagDeclaredSize},
	}, res.Flags)
}

func TestClassify_Conflict(t *testing.T) {
	overlapping := append(DefaultRules(), Rule{
		Label: model.SingleParent,
		Match: func(m Members) bool { return m.Size() == 2 },
	})

	persons := hh(7, person(model.SexMale, 50, true), person(model.SexFemale, 48, true))
	_, err := NewClassifier(overlapping...).Classify(persons)
	require.Error(t, err)

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, int64(7), ce.Conflicts[0].HouseholdID)
	assert.Equal(t, []model.HouseholdType{model.CoupleWithoutChild, model.SingleParent}, ce.Conflicts[0].Labels)
	assert.Contains(t, err.Error(), "7=Couple_without_child|Single_parent")
}

func TestClassify_DuplicatePerson(t *testing.T) {
	persons := hh(1, person(model.SexMale, 40, false))
	persons = append(persons, persons[0])

	_, err := NewClassifier().Classify(persons)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate person_id")
}

func TestClassify_Empty(t *testing.T) {
	res, err := NewClassifier().Classify(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Households)
}

func TestDefaultRules_MutuallyExclusive(t *testing.T) {
	// Enumerate small households over a grid of ages and couple flags and
	// check that at most one default rule fires.
	ages := []int{5, 24, 25, 40, 59, 60, 75}
	rules := DefaultRules()

	var build func(n int, acc []model.PersonRecord)
	build = func(n int, acc []model.PersonRecord) {
		if n == 0 {
			m := Members{Persons: acc}
			hits := 0
			for _, r := range rules {
				if r.Match(m) {
					hits++
				}
			}
			require.LessOrEqual(t, hits, 1, "persons %+v", acc)
			return
		}
		for _, age := range ages {
			for _, couple := range []bool{false, true} {
				build(n-1, append(acc[:len(acc):len(acc)], person(model.SexFemale, age, couple)))
			}
		}
	}
	for size := 1; size <= 3; size++ {
		build(size, nil)
	}
}
