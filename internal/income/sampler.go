// Package income imputes household incomes from municipality decile tables.
// Each municipality is sampled independently with its own seeded generator,
// so results are reproducible from one master seed regardless of how tasks
// are scheduled.
package income

import (
	"math/rand/v2"

	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/filosofi"
	"github.com/tellae/eqasim/internal/model"
)

const (
	// MaximumIncomeFactor extrapolates the open top stratum above the highest
	// decile.
	MaximumIncomeFactor = 1.2

	// StrataCount is the number of equally likely income strata.
	StrataCount = filosofi.DecileCount + 1

	monthsPerYear = 12
)

// Boundaries are the StrataCount+1 monthly income bounds of a distribution:
// 0, q1/12 .. q9/12, and the extrapolated top.
type Boundaries [StrataCount + 1]float64

// NewBoundaries converts an annual decile row to monthly stratum bounds.
func NewBoundaries(row filosofi.Row) Boundaries {
	var b Boundaries
	top := 0.0
	for i, q := range row.Deciles {
		b[i+1] = q / monthsPerYear
		top = max(top, b[i+1])
	}
	b[StrataCount] = top * MaximumIncomeFactor
	return b
}

// Draw returns the income of stratum k at fraction u of its width.
func (b Boundaries) Draw(k int, u float64) float64 {
	lower, upper := b[k], b[k+1]
	return lower + u*(upper-lower)
}

// Distributions looks up decile rows; *filosofi.Table satisfies it.
type Distributions interface {
	Lookup(commune, attribute, modality string) (filosofi.Row, bool)
}

// Sampler draws incomes for the households of one municipality. It holds no
// mutable state and may be shared by concurrent tasks.
type Sampler struct {
	dist      Distributions
	attribute string
	modality  func(model.HouseholdRecord) string
}

// NewSampler creates a Sampler stratified by attribute, which must be one the
// household table carries: household_size or household_type.
func NewSampler(dist Distributions, attribute string) (*Sampler, error) {
	s := &Sampler{dist: dist, attribute: attribute}
	switch attribute {
	case filosofi.AttrHouseholdSize:
		s.modality = func(h model.HouseholdRecord) string { return string(h.SizeBucket) }
	case filosofi.AttrHouseholdType:
		s.modality = func(h model.HouseholdRecord) string { return string(h.Type) }
	default:
		return nil, eris.Errorf("income: cannot stratify by attribute %q", attribute)
	}
	return s, nil
}

// Attribute is the stratification attribute.
func (s *Sampler) Attribute() string { return s.attribute }

// NewRand returns the generator used for a municipality seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Sample returns one household income per household, in input order. All
// stratum indices are drawn first, then all fractions, from a generator
// seeded with seed. Incomes are monthly and scaled by consumption units.
func (s *Sampler) Sample(commune string, seed uint64, households []model.HouseholdRecord) ([]float64, error) {
	bounds := make([]Boundaries, len(households))
	cache := make(map[string]Boundaries)
	for i, h := range households {
		mod := s.modality(h)
		b, ok := cache[mod]
		if !ok {
			row, found := s.dist.Lookup(commune, s.attribute, mod)
			if !found {
				return nil, &MissingDistributionError{CommuneID: commune, Attribute: s.attribute, Modality: mod}
			}
			b = NewBoundaries(row)
			cache[mod] = b
		}
		bounds[i] = b
	}

	rng := NewRand(seed)

	strata := make([]int, len(households))
	for i := range strata {
		strata[i] = rng.IntN(StrataCount)
	}

	incomes := make([]float64, len(households))
	for i, h := range households {
		incomes[i] = bounds[i].Draw(strata[i], rng.Float64()) * h.ConsumptionUnits
	}
	return incomes, nil
}
