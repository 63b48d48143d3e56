package fetcher

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMemberNotFound is returned when none of the requested names exist.
var ErrMemberNotFound = eris.New("zip: member not found")

// OpenZIPMember opens the first of names present in the archive. Archive
// entries are matched exactly, then by base name.
func OpenZIPMember(ra io.ReaderAt, size int64, names ...string) (io.ReadCloser, string, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, "", eris.Wrap(err, "zip: read directory")
	}

	index := make(map[string]*zip.File, len(zr.File))
	base := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		index[f.Name] = f
		if i := strings.LastIndexByte(f.Name, '/'); i >= 0 {
			base[f.Name[i+1:]] = f
		}
	}

	for _, name := range names {
		f, ok := index[name]
		if !ok {
			f, ok = base[name]
		}
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", eris.Wrapf(err, "zip: open %s", f.Name)
		}
		return rc, f.Name, nil
	}
	return nil, "", eris.Wrapf(ErrMemberNotFound, "zip: tried %s", strings.Join(names, ", "))
}

// OpenFirstCSV opens the first .csv (or .txt) member of a local ZIP file.
// Closing the returned reader also closes the archive.
func OpenFirstCSV(path string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		lower := strings.ToLower(f.Name)
		if !strings.HasSuffix(lower, ".csv") && !strings.HasSuffix(lower, ".txt") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			_ = zr.Close()
			return nil, eris.Wrapf(err, "zip: open %s", f.Name)
		}
		return &zipMember{ReadCloser: rc, archive: zr}, nil
	}

	_ = zr.Close()
	return nil, eris.Wrapf(ErrMemberNotFound, "zip: no csv in %s", path)
}

type zipMember struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (m *zipMember) Close() error {
	err := m.ReadCloser.Close()
	if cerr := m.archive.Close(); err == nil {
		err = cerr
	}
	return err
}
