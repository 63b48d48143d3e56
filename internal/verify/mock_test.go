package verify

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/nonprofit-verify/internal/ident"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/reconcile"
)

// --- Reconciler Mock ---

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context, key ident.Key) reconcile.Result {
	args := m.Called(ctx, key)
	return args.Get(0).(reconcile.Result)
}

// einKey matches the normalized key for ein.
func einKey(ein string) any {
	return mock.MatchedBy(func(k ident.Key) bool { return k.IsEIN() && k.EIN == ein })
}

func foundResult(ein string) reconcile.Result {
	return reconcile.Result{
		Outcome: reconcile.OutcomeFound,
		Record: &model.Record{
			EIN:        ein,
			LegalName:  model.StrPtr("ORG " + ein),
			Confidence: 1,
			FetchedAt:  testNow,
		},
	}
}

func notFoundResult() reconcile.Result {
	return reconcile.Result{Outcome: reconcile.OutcomeNotFound}
}

func unavailableResult() reconcile.Result {
	return reconcile.Result{
		Outcome: reconcile.OutcomeUnavailable,
		Sources: []model.SourceResult{model.Unavailable(model.OriginLookupAPI, testNow, errors.New("boom"))},
	}
}

// --- RegistryLoader Mock ---

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context, locations []string) ([]model.RegistryOrg, error) {
	args := m.Called(ctx, locations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RegistryOrg), args.Error(1)
}

// --- StateChecker Mock ---

type mockStateChecker struct {
	mock.Mock
}

func (m *mockStateChecker) CheckAll(ctx context.Context, ein string) []model.StateRegistration {
	args := m.Called(ctx, ein)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.StateRegistration)
}
