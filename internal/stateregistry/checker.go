// Package stateregistry looks an EIN up in state charity registries
// (California, New York, Texas). Results are supplementary: a state that
// fails is skipped and none of them count toward record confidence.
package stateregistry

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// maxBody caps how much of a registry response is read.
const maxBody = 8 << 20

// Fetcher is the HTTP surface the checkers use. *fetcher.HTTPFetcher
// satisfies it.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
	PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error)
}

// Checker queries one state's registry. Check returns nil, nil when the EIN
// is not registered there.
type Checker interface {
	State() string
	TTL() time.Duration
	Check(ctx context.Context, ein string) (*model.StateRegistration, error)
}
