package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tellae/eqasim/internal/config"
	"github.com/tellae/eqasim/internal/fetcher"
	"github.com/tellae/eqasim/internal/filosofi"
	"github.com/tellae/eqasim/internal/store"
)

// initStore opens and migrates the configured store. It returns nil when no
// driver is configured.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if c.Store.Driver == "" {
		return nil, nil
	}
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DSN())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initOpener builds an Opener for the configured inputs. The S3 client is
// only created when an input lives in S3.
func initOpener(ctx context.Context, c *config.Config) (*fetcher.Opener, error) {
	httpOpts := fetcher.HTTPOptions{
		UserAgent:  c.HTTP.UserAgent,
		Timeout:    time.Duration(c.HTTP.TimeoutSecs) * time.Second,
		MaxRetries: c.HTTP.MaxRetries,
	}
	if c.HTTP.RateLimit > 0 {
		httpOpts.Limiter = rate.NewLimiter(rate.Limit(c.HTTP.RateLimit), 1)
	}

	var objects fetcher.ObjectGetter
	if usesS3(c) {
		client, err := fetcher.NewS3Client(ctx, fetcher.S3Options{
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			PathStyle:       c.S3.PathStyle,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		objects = client
	}
	return fetcher.NewOpener(fetcher.NewHTTPFetcher(httpOpts), objects), nil
}

func usesS3(c *config.Config) bool {
	for _, uri := range []string{c.Input.Persons, c.Input.Homes, c.Filosofi.Workbook, c.Filosofi.TableCSV, c.Filosofi.Registry} {
		if strings.HasPrefix(uri, "s3://") {
			return true
		}
	}
	return false
}

func loadRegistry(ctx context.Context, c *config.Config, opener *fetcher.Opener) (*filosofi.Registry, error) {
	if c.Filosofi.Registry == "" {
		return filosofi.DefaultRegistry(), nil
	}
	data, err := opener.ReadAll(ctx, c.Filosofi.Registry)
	if err != nil {
		return nil, err
	}
	return filosofi.ParseRegistry(data)
}

// buildTable parses the Filosofi workbook, unpacking it first when it is
// given as the zip archive INSEE publishes.
func buildTable(ctx context.Context, c *config.Config, opener *fetcher.Opener, reg *filosofi.Registry) (*filosofi.Table, error) {
	data, err := opener.ReadAll(ctx, c.Filosofi.Workbook)
	if err != nil {
		return nil, err
	}
	if fetcher.IsZIP(c.Filosofi.Workbook) {
		var member string
		if data, member, err = fetcher.UnzipMember(data, ".xlsx"); err != nil {
			return nil, eris.Wrapf(err, "filosofi: unpack %s", c.Filosofi.Workbook)
		}
		zap.L().Debug("unpacked workbook", zap.String("archive", c.Filosofi.Workbook), zap.String("member", member))
	}
	wb, err := fetcher.OpenXLSXBinary(data)
	if err != nil {
		return nil, eris.Wrapf(err, "filosofi: open workbook %s", c.Filosofi.Workbook)
	}
	if missing := reg.MissingSheets(wb.SheetNames()); len(missing) > 0 {
		return nil, eris.Errorf("filosofi: workbook %s lacks sheets %s", c.Filosofi.Workbook, strings.Join(missing, ", "))
	}
	b := filosofi.NewBuilder(reg, filosofi.BuilderOptions{
		SkipRows:      c.Filosofi.SkipRows,
		VintageSuffix: c.Filosofi.VintageSuffix,
		CommuneColumn: c.Filosofi.CommuneColumn,
	})
	return b.Build(ctx, wb)
}

// loadTable returns the income table from the store, a cached long-form CSV
// or the workbook, in that order of preference. The table must match the
// registry shape and carry the attribute being imputed.
func loadTable(ctx context.Context, c *config.Config, opener *fetcher.Opener, st store.Store) (*filosofi.Table, error) {
	log := zap.L().With(zap.String("component", "filosofi"))

	reg, err := loadRegistry(ctx, c, opener)
	if err != nil {
		return nil, err
	}
	if _, ok := reg.Attribute(c.Income.Attribute); !ok {
		return nil, eris.Errorf("filosofi: attribute %q is not in the registry", c.Income.Attribute)
	}

	var t *filosofi.Table
	switch {
	case c.Filosofi.FromStore:
		if st == nil {
			return nil, eris.New("filosofi: from_store needs a configured store")
		}
		rows, err := st.LoadDistributions(ctx)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, eris.New("filosofi: store holds no distributions; run attributes build --save first")
		}
		if t, err = filosofi.NewTable(rows); err != nil {
			return nil, err
		}
		log.Info("loaded income table from store", zap.Int("rows", t.Len()))
	case c.Filosofi.TableCSV != "":
		rc, err := opener.Open(ctx, c.Filosofi.TableCSV)
		if err != nil {
			return nil, err
		}
		defer rc.Close() //nolint:errcheck
		if t, err = filosofi.ReadCSV(ctx, rc); err != nil {
			return nil, err
		}
		log.Info("loaded income table", zap.String("uri", c.Filosofi.TableCSV), zap.Int("rows", t.Len()))
	default:
		if t, err = buildTable(ctx, c, opener, reg); err != nil {
			return nil, err
		}
	}

	if err := reg.CheckShape(t); err != nil {
		return nil, err
	}
	return t, nil
}
