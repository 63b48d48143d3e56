package stateregistry

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// --- Checker Mock ---

type mockChecker struct {
	mock.Mock
	state string
	ttl   time.Duration
}

func (m *mockChecker) State() string      { return m.state }
func (m *mockChecker) TTL() time.Duration { return m.ttl }

func (m *mockChecker) Check(ctx context.Context, ein string) (*model.StateRegistration, error) {
	args := m.Called(ctx, ein)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StateRegistration), args.Error(1)
}
