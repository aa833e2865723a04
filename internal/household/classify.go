// Package household derives household size buckets and household types from
// synthetic person records.
package household

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tellae/eqasim/internal/model"
)

// Flag reasons reported alongside a classification.
const (
	FlagDeclaredSize   = "declared_size_mismatch"
	FlagSingleFallback = "single_person_fallback"
)

// Flag marks a household worth a second look. Flags never abort a run.
type Flag struct {
	HouseholdID int64
	Reason      string
}

// Result is the household table built from person records.
type Result struct {
	Households []model.HouseholdRecord
	Flags      []Flag
	Counts     map[model.HouseholdType]int
}

// Classifier evaluates typology rules on every household.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier. With no rules, DefaultRules is used.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify groups persons by household and assigns each household exactly one
// size bucket and one type. Households are returned in first-appearance order.
// A household matched by several rules yields a *ConflictError.
func (c *Classifier) Classify(persons []model.PersonRecord) (*Result, error) {
	log := zap.L().With(zap.String("component", "household.classifier"))

	groups, order, err := groupPersons(persons)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Households: make([]model.HouseholdRecord, 0, len(order)),
		Counts:     make(map[model.HouseholdType]int, len(model.HouseholdTypes)),
	}
	var conflicts []Conflict

	for _, id := range order {
		m := Members{HouseholdID: id, Persons: groups[id]}

		var labels []model.HouseholdType
		for _, r := range c.rules {
			if r.Match(m) {
				labels = append(labels, r.Label)
			}
		}

		htype := model.ComplexHousehold
		switch len(labels) {
		case 0:
			if m.Size() == 1 {
				res.Flags = append(res.Flags, Flag{HouseholdID: id, Reason: FlagSingleFallback})
			}
		case 1:
			htype = labels[0]
		default:
			conflicts = append(conflicts, Conflict{HouseholdID: id, Labels: labels})
			continue
		}

		first := m.Persons[0]
		if first.HouseholdSize != 0 && first.HouseholdSize != m.Size() {
			res.Flags = append(res.Flags, Flag{HouseholdID: id, Reason: FlagDeclaredSize})
		}

		res.Households = append(res.Households, model.HouseholdRecord{
			HouseholdID:      id,
			ConsumptionUnits: first.ConsumptionUnits,
			PersonCount:      m.Size(),
			SizeBucket:       model.SizeBucketFor(m.Size()),
			Type:             htype,
		})
		res.Counts[htype]++
	}

	if len(conflicts) > 0 {
		return nil, &ConflictError{Conflicts: conflicts}
	}

	if len(res.Flags) > 0 {
		log.Warn("households flagged during classification", zap.Int("flags", len(res.Flags)))
	}
	log.Info("classified households",
		zap.Int("households", len(res.Households)),
		zap.Any("types", res.Counts),
	)
	return res, nil
}

func groupPersons(persons []model.PersonRecord) (map[int64][]model.PersonRecord, []int64, error) {
	groups := make(map[int64][]model.PersonRecord)
	seen := make(map[int64]bool, len(persons))
	var order []int64

	for _, p := range persons {
		if seen[p.PersonID] {
			return nil, nil, eris.Errorf("household: duplicate person_id %d", p.PersonID)
		}
		seen[p.PersonID] = true

		if _, ok := groups[p.HouseholdID]; !ok {
			order = append(order, p.HouseholdID)
		}
		groups[p.HouseholdID] = append(groups[p.HouseholdID], p)
	}
	return groups, order, nil
}
