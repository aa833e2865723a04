// Package fetcher opens input tables from local disk, HTTP(S) or S3 and parses
// CSV and XLSX content.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Opener resolves an input URI to a readable stream. Local paths are opened
// directly; http(s):// URIs go through the HTTP fetcher and s3://bucket/key
// URIs through the S3 client.
type Opener struct {
	http *HTTPFetcher
	s3   ObjectGetter
}

// NewOpener creates an Opener. Either backend may be nil, in which case URIs
// with that scheme are rejected.
func NewOpener(h *HTTPFetcher, s3 ObjectGetter) *Opener {
	return &Opener{http: h, s3: s3}
}

// Open returns a reader for the given URI. The caller must close it.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		if o.s3 == nil {
			return nil, eris.Errorf("fetcher: no S3 client configured for %s", uri)
		}
		return openS3(ctx, o.s3, uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if o.http == nil {
			return nil, eris.Errorf("fetcher: no HTTP fetcher configured for %s", uri)
		}
		return o.http.Download(ctx, uri)
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", uri)
		}
		return f, nil
	}
}

// ReadAll opens the URI and reads it fully into memory.
func (o *Opener) ReadAll(ctx context.Context, uri string) ([]byte, error) {
	rc, err := o.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", uri)
	}
	return buf.Bytes(), nil
}
