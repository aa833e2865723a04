// Package population loads the synthetic person and home tables produced by
// the upstream population synthesis.
package population

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tellae/eqasim/internal/fetcher"
	"github.com/tellae/eqasim/internal/model"
)

// Column names of the person table.
const (
	ColPersonID         = "person_id"
	ColHouseholdID      = "household_id"
	ColSex              = "sex"
	ColAge              = "age"
	ColCouple           = "couple"
	ColHouseholdSize    = "household_size"
	ColConsumptionUnits = "consumption_units"
	ColCommuneID        = "commune_id"
)

var (
	personColumns = []string{ColPersonID, ColHouseholdID, ColSex, ColAge, ColCouple, ColHouseholdSize, ColConsumptionUnits}
	homeColumns   = []string{ColHouseholdID, ColCommuneID}
)

// Options controls CSV decoding.
type Options struct {
	Delimiter rune
	Charset   string
}

// Loader reads population tables through an Opener, so inputs may live on
// local disk, behind HTTP or in S3.
type Loader struct {
	opener *fetcher.Opener
	opts   Options
}

// NewLoader creates a Loader.
func NewLoader(opener *fetcher.Opener, opts Options) *Loader {
	return &Loader{opener: opener, opts: opts}
}

// Persons loads the person table at uri.
func (l *Loader) Persons(ctx context.Context, uri string) ([]model.PersonRecord, error) {
	rc, err := l.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	persons, err := ReadPersons(ctx, rc, l.opts)
	if err != nil {
		return nil, eris.Wrapf(err, "population: load persons from %s", uri)
	}
	zap.L().With(zap.String("component", "population")).Info("loaded persons",
		zap.String("uri", uri), zap.Int("persons", len(persons)))
	return persons, nil
}

// Homes loads the household to municipality table at uri.
func (l *Loader) Homes(ctx context.Context, uri string) ([]model.HomeRecord, error) {
	rc, err := l.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	homes, err := ReadHomes(ctx, rc, l.opts)
	if err != nil {
		return nil, eris.Wrapf(err, "population: load homes from %s", uri)
	}
	zap.L().With(zap.String("component", "population")).Info("loaded homes",
		zap.String("uri", uri), zap.Int("homes", len(homes)))
	return homes, nil
}

// ReadPersons parses a person CSV. Columns are matched by header name,
// case-insensitively; extra columns are ignored.
func ReadPersons(ctx context.Context, r io.Reader, opts Options) ([]model.PersonRecord, error) {
	var persons []model.PersonRecord
	err := stream(ctx, r, opts, personColumns, func(line int, rec record) error {
		var (
			p   model.PersonRecord
			err error
		)
		if p.PersonID, err = rec.parseInt64(ColPersonID); err != nil {
			return lineErr(err, line)
		}
		if p.HouseholdID, err = rec.parseInt64(ColHouseholdID); err != nil {
			return lineErr(err, line)
		}
		if p.Age, err = rec.parseInt(ColAge); err != nil {
			return lineErr(err, line)
		}
		if p.Couple, err = rec.parseBool(ColCouple); err != nil {
			return lineErr(err, line)
		}
		if p.HouseholdSize, err = rec.parseInt(ColHouseholdSize); err != nil {
			return lineErr(err, line)
		}
		if p.ConsumptionUnits, err = rec.parseFloat(ColConsumptionUnits); err != nil {
			return lineErr(err, line)
		}
		p.Sex = ParseSex(rec.get(ColSex))
		persons = append(persons, p)
		return nil
	})
	return persons, err
}

// ReadHomes parses a home CSV with household_id and commune_id columns.
func ReadHomes(ctx context.Context, r io.Reader, opts Options) ([]model.HomeRecord, error) {
	var homes []model.HomeRecord
	err := stream(ctx, r, opts, homeColumns, func(line int, rec record) error {
		id, err := rec.parseInt64(ColHouseholdID)
		if err != nil {
			return lineErr(err, line)
		}
		homes = append(homes, model.HomeRecord{HouseholdID: id, CommuneID: rec.get(ColCommuneID)})
		return nil
	})
	return homes, err
}

// ParseSex accepts the labels and INSEE codes used by the synthesis. Any
// other value yields an empty Sex.
func ParseSex(s string) model.Sex {
	switch strings.ToLower(s) {
	case "male", "m", "1":
		return model.SexMale
	case "female", "f", "2":
		return model.SexFemale
	default:
		return ""
	}
}

type record struct {
	fields []string
	cols   map[string]int
}

func (r record) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (r record) parseInt64(col string) (int64, error) {
	v, err := strconv.ParseInt(r.get(col), 10, 64)
	if err != nil {
		// Some exports write integer ids as floats.
		f, ferr := strconv.ParseFloat(r.get(col), 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, eris.Wrapf(err, "column %s", col)
		}
		return int64(f), nil
	}
	return v, nil
}

func (r record) parseInt(col string) (int, error) {
	v, err := r.parseInt64(col)
	return int(v), err
}

func (r record) parseFloat(col string) (float64, error) {
	v, err := strconv.ParseFloat(r.get(col), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "column %s", col)
	}
	return v, nil
}

func (r record) parseBool(col string) (bool, error) {
	v, err := strconv.ParseBool(r.get(col))
	if err != nil {
		return false, eris.Wrapf(err, "column %s", col)
	}
	return v, nil
}

func lineErr(err error, line int) error {
	return eris.Wrapf(err, "population: line %d", line)
}

func stream(ctx context.Context, r io.Reader, opts Options, required []string, fn func(line int, rec record) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter: opts.Delimiter,
		Charset:   opts.Charset,
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var cols map[string]int
	line := 1
	for fields := range rowCh {
		line++
		if cols == nil {
			var err error
			if cols, err = headerIndex(<-headerCh, required); err != nil {
				return err
			}
		}
		if err := fn(line, record{fields: fields, cols: cols}); err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

func headerIndex(header []string, required []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, eris.Errorf("population: missing column %q", c)
		}
	}
	return cols, nil
}
