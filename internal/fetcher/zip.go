package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// IsZIP reports whether the URI names a zip archive.
func IsZIP(uri string) bool {
	return strings.EqualFold(path.Ext(uri), ".zip")
}

// UnzipMember returns the single regular file in the archive whose name ends
// with ext, compared case-insensitively. INSEE ships each Filosofi workbook
// alone in a zip together with documentation files.
func UnzipMember(data []byte, ext string) ([]byte, string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", eris.Wrap(err, "zip: open archive")
	}

	var match *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ext) {
			continue
		}
		if match != nil {
			return nil, "", eris.Errorf("zip: more than one %s member (%s, %s)", ext, match.Name, f.Name)
		}
		match = f
	}
	if match == nil {
		return nil, "", eris.Errorf("zip: no %s member in archive", ext)
	}

	rc, err := match.Open()
	if err != nil {
		return nil, "", eris.Wrapf(err, "zip: open %s", match.Name)
	}
	defer rc.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, "", eris.Wrapf(err, "zip: read %s", match.Name)
	}
	return buf.Bytes(), match.Name, nil
}
