package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Header maps column names to positions. Lookups are case-insensitive.
type Header map[string]int

// NewHeader indexes a header row.
func NewHeader(cols []string) Header {
	h := make(Header, len(cols))
	for i, c := range cols {
		h[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))] = i
	}
	return h
}

// Row is one CSV record paired with its header.
type Row struct {
	Header Header
	Fields []string
}

// Get returns the trimmed value of column name, or "" when absent.
func (r Row) Get(name string) string {
	i, ok := r.Header[strings.ToUpper(name)]
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[i])
}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	LazyQuotes bool
	Buffer     int // channel buffer; default 256
}

// StreamCSV reads a headed CSV file and sends each data row on the returned
// channel. Both channels are closed when the reader is drained, fails, or
// ctx is cancelled; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Row, <-chan error) {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	rowCh := make(chan Row, opts.Buffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = false

		cols, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		header := NewHeader(cols)

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			select {
			case rowCh <- Row{Header: header, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
