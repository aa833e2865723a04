package income

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tellae/eqasim/internal/model"
)

// Options configures an Imputer.
type Options struct {
	Seed      uint64
	Workers   int
	Attribute string
}

// Summary describes a completed imputation.
type Summary struct {
	Households int
	Communes   int
	Mean       float64
	Min        float64
	Max        float64
	Duration   time.Duration
}

// Result is the output of Run. Households carries the input records with
// Income filled in; Assignments is the same data in output form.
type Result struct {
	Households  []model.HouseholdRecord
	Assignments []model.IncomeAssignment
	Summary     Summary
}

// Imputer splits households by municipality and samples each municipality on
// a bounded pool of workers.
type Imputer struct {
	sampler *Sampler
	opts    Options
	metrics *Metrics
}

// NewImputer creates an Imputer. metrics may be nil.
func NewImputer(dist Distributions, opts Options, metrics *Metrics) (*Imputer, error) {
	s, err := NewSampler(dist, opts.Attribute)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Imputer{sampler: s, opts: opts, metrics: metrics}, nil
}

// Join attaches each household's municipality from the home table.
func Join(households []model.HouseholdRecord, homes []model.HomeRecord) ([]model.HouseholdRecord, error) {
	communes := make(map[int64]string, len(homes))
	for _, h := range homes {
		if _, dup := communes[h.HouseholdID]; dup {
			return nil, eris.Errorf("income: duplicate home for household %d", h.HouseholdID)
		}
		if h.CommuneID == "" {
			return nil, eris.Errorf("income: empty commune for household %d", h.HouseholdID)
		}
		communes[h.HouseholdID] = h.CommuneID
	}

	out := make([]model.HouseholdRecord, len(households))
	for i, h := range households {
		c, ok := communes[h.HouseholdID]
		if !ok {
			return nil, eris.Errorf("income: household %d has no home", h.HouseholdID)
		}
		h.CommuneID = c
		out[i] = h
		delete(communes, h.HouseholdID)
	}
	if len(communes) > 0 {
		return nil, eris.Errorf("income: %d homes reference unknown households", len(communes))
	}
	return out, nil
}

type task struct {
	commune string
	seed    uint64
	indices []int
}

// Run imputes an income for every household.
func (im *Imputer) Run(ctx context.Context, households []model.HouseholdRecord) (*Result, error) {
	log := zap.L().With(zap.String("component", "income.imputer"))
	start := time.Now()

	if err := checkInput(households); err != nil {
		return nil, err
	}

	tasks := partition(households, im.opts.Seed)
	log.Info("starting imputation",
		zap.Int("households", len(households)),
		zap.Int("communes", len(tasks)),
		zap.Int("workers", im.opts.Workers),
		zap.String("attribute", im.sampler.Attribute()),
		zap.Uint64("seed", im.opts.Seed),
	)

	results := make([][]float64, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)

	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			taskStart := time.Now()

			subset := make([]model.HouseholdRecord, len(t.indices))
			for j, idx := range t.indices {
				subset[j] = households[idx]
			}
			incomes, err := im.sampler.Sample(t.commune, t.seed, subset)
			if err != nil {
				return err
			}
			results[i] = incomes
			im.metrics.observeTask(len(subset), time.Since(taskStart))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		im.metrics.observeFailure()
		return nil, eris.Wrap(err, "income: imputation failed")
	}

	res := &Result{
		Households:  make([]model.HouseholdRecord, len(households)),
		Assignments: make([]model.IncomeAssignment, len(households)),
	}
	copy(res.Households, households)
	for i, t := range tasks {
		for j, idx := range t.indices {
			res.Households[idx].Income = results[i][j]
		}
	}
	for i, h := range res.Households {
		res.Assignments[i] = model.IncomeAssignment{
			HouseholdID:      h.HouseholdID,
			HouseholdIncome:  h.Income,
			ConsumptionUnits: h.ConsumptionUnits,
		}
	}

	if err := checkOutput(len(households), res.Assignments); err != nil {
		return nil, err
	}

	res.Summary = summarize(res.Assignments, len(tasks), time.Since(start))
	log.Info("imputation complete",
		zap.Int("households", res.Summary.Households),
		zap.Float64("mean_income", res.Summary.Mean),
		zap.Duration("duration", res.Summary.Duration),
	)
	return res, nil
}

// partition groups household indices by commune in first-appearance order and
// draws one seed per commune from the master generator.
func partition(households []model.HouseholdRecord, seed uint64) []task {
	var tasks []task
	byCommune := make(map[string]int)
	for i, h := range households {
		ti, ok := byCommune[h.CommuneID]
		if !ok {
			ti = len(tasks)
			byCommune[h.CommuneID] = ti
			tasks = append(tasks, task{commune: h.CommuneID})
		}
		tasks[ti].indices = append(tasks[ti].indices, i)
	}

	master := NewRand(seed)
	for i := range tasks {
		tasks[i].seed = master.Uint64()
	}
	return tasks
}

func checkInput(households []model.HouseholdRecord) error {
	seen := make(map[int64]struct{}, len(households))
	for _, h := range households {
		if _, dup := seen[h.HouseholdID]; dup {
			return eris.Errorf("income: duplicate household %d", h.HouseholdID)
		}
		seen[h.HouseholdID] = struct{}{}
		if h.CommuneID == "" {
			return eris.Errorf("income: household %d has no commune", h.HouseholdID)
		}
		if !(h.ConsumptionUnits > 0) {
			return eris.Errorf("income: household %d has consumption units %v", h.HouseholdID, h.ConsumptionUnits)
		}
	}
	return nil
}

func checkOutput(want int, out []model.IncomeAssignment) error {
	if len(out) != want {
		return eris.Errorf("income: %d assignments for %d households", len(out), want)
	}
	seen := make(map[int64]struct{}, len(out))
	for _, a := range out {
		if _, dup := seen[a.HouseholdID]; dup {
			return eris.Errorf("income: household %d assigned twice", a.HouseholdID)
		}
		seen[a.HouseholdID] = struct{}{}
		if math.IsNaN(a.HouseholdIncome) || math.IsInf(a.HouseholdIncome, 0) || a.HouseholdIncome < 0 {
			return eris.Errorf("income: invalid income %v for household %d", a.HouseholdIncome, a.HouseholdID)
		}
	}
	return nil
}

func summarize(out []model.IncomeAssignment, communes int, d time.Duration) Summary {
	s := Summary{Households: len(out), Communes: communes, Duration: d}
	if len(out) == 0 {
		return s
	}
	s.Min, s.Max = out[0].HouseholdIncome, out[0].HouseholdIncome
	total := 0.0
	for _, a := range out {
		total += a.HouseholdIncome
		s.Min = min(s.Min, a.HouseholdIncome)
		s.Max = max(s.Max, a.HouseholdIncome)
	}
	s.Mean = total / float64(len(out))
	return s
}
