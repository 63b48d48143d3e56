package fetcher

import (
	"context"
	"io"
	"sync"

	"github.com/rotisserie/eris"
)

// RangeGetter reads a byte range of a remote object.
type RangeGetter interface {
	GetRange(ctx context.Context, url string, off, length int64) ([]byte, error)
}

// RangeReader is an io.ReaderAt over a remote object of known size. It keeps
// one read-ahead window and doubles the window on sequential access up to
// maxWindow, so a ZIP central directory or a single member costs a handful
// of requests instead of one per small read.
type RangeReader struct {
	ctx    context.Context
	getter RangeGetter
	url    string
	size   int64

	minWindow int64
	maxWindow int64

	mu       sync.Mutex
	buf      []byte
	bufOff   int64
	window   int64
	requests int
}

// NewRangeReader binds reads to ctx. chunk is the initial window size.
func NewRangeReader(ctx context.Context, g RangeGetter, url string, size, chunk int64) *RangeReader {
	if chunk <= 0 {
		chunk = 64 << 10
	}
	return &RangeReader{
		ctx:       ctx,
		getter:    g,
		url:       url,
		size:      size,
		minWindow: chunk,
		maxWindow: chunk << 7,
		window:    chunk,
	}
}

// Size returns the object size.
func (r *RangeReader) Size() int64 { return r.size }

// Requests returns how many range requests have been issued.
func (r *RangeReader) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// ReadAt implements io.ReaderAt.
func (r *RangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, eris.New("fetcher: negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), r.size-off)

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for n < want {
		pos := off + n
		if pos < r.bufOff || pos >= r.bufOff+int64(len(r.buf)) {
			if err := r.fill(pos, want-n); err != nil {
				return int(n), err
			}
		}
		n += int64(copy(p[n:want], r.buf[pos-r.bufOff:]))
	}

	if want < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (r *RangeReader) fill(pos, need int64) error {
	sequential := len(r.buf) > 0 && pos == r.bufOff+int64(len(r.buf))
	if sequential {
		r.window = min(r.window*2, r.maxWindow)
	} else {
		r.window = r.minWindow
	}

	length := min(max(r.window, need), r.size-pos)
	data, err := r.getter.GetRange(r.ctx, r.url, pos, length)
	r.requests++
	if err != nil {
		return eris.Wrapf(err, "fetcher: range %d+%d", pos, length)
	}
	if len(data) == 0 {
		return io.ErrUnexpectedEOF
	}

	r.buf = data
	r.bufOff = pos
	return nil
}
