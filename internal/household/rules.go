package household

import (
	"sort"

	"github.com/tellae/eqasim/internal/model"
)

// Age bounds used by the typology rules.
const (
	ChildMaxAge      = 25 // children are strictly younger
	ParentMinAge     = 25
	ParentMaxAgeExcl = 60
)

// Members is the view of one household the rules evaluate.
type Members struct {
	HouseholdID int64
	Persons     []model.PersonRecord
}

// Size is the number of persons in the household.
func (m Members) Size() int { return len(m.Persons) }

// CoupleCount is the number of persons living in a couple.
func (m Members) CoupleCount() int {
	n := 0
	for _, p := range m.Persons {
		if p.Couple {
			n++
		}
	}
	return n
}

// ChildCount is the number of persons younger than ChildMaxAge not living in a
// couple.
func (m Members) ChildCount() int {
	n := 0
	for _, p := range m.Persons {
		if !p.Couple && p.Age < ChildMaxAge {
			n++
		}
	}
	return n
}

// AgesDesc returns member ages, oldest first.
func (m Members) AgesDesc() []int {
	ages := make([]int, len(m.Persons))
	for i, p := range m.Persons {
		ages[i] = p.Age
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ages)))
	return ages
}

// Rule assigns Label to the households it matches.
type Rule struct {
	Label model.HouseholdType
	Match func(Members) bool
}

// DefaultRules returns the five typology rules. Households matching none of
// them are complex.
func DefaultRules() []Rule {
	return []Rule{
		{Label: model.SingleMan, Match: func(m Members) bool {
			return m.Size() == 1 && m.Persons[0].Sex == model.SexMale
		}},
		{Label: model.SingleWoman, Match: func(m Members) bool {
			return m.Size() == 1 && m.Persons[0].Sex == model.SexFemale
		}},
		{Label: model.CoupleWithoutChild, Match: func(m Members) bool {
			return m.Size() == 2 && m.CoupleCount() == 2
		}},
		{Label: model.CoupleWithChild, Match: func(m Members) bool {
			// At least one child; every non-couple member is a child.
			return m.CoupleCount() == 2 && m.Size() >= 3 && m.ChildCount() == m.Size()-2
		}},
		{Label: model.SingleParent, Match: func(m Members) bool {
			if m.Size() < 2 || m.CoupleCount() > 0 {
				return false
			}
			ages := m.AgesDesc()
			return ages[0] >= ParentMinAge && ages[0] < ParentMaxAgeExcl && ages[1] < ChildMaxAge
		}},
	}
}
