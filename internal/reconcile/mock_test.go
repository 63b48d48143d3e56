package reconcile

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// --- Adapter Mock ---

type mockAdapter struct {
	mock.Mock
	origin model.Origin
}

func (m *mockAdapter) Origin() model.Origin { return m.origin }

func (m *mockAdapter) Fetch(ctx context.Context, key ident.Key) model.SourceResult {
	args := m.Called(ctx, key)
	return args.Get(0).(model.SourceResult)
}

// answering returns an adapter that replies with result to any key after
// delay.
func answering(result model.SourceResult, delay time.Duration) *mockAdapter {
	m := &mockAdapter{origin: result.Origin}
	call := m.On("Fetch", mock.Anything, mock.Anything).Return(result)
	if delay > 0 {
		call.After(delay)
	}
	return m
}
