package verify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-verify/internal/bmf"
	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/metrics"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/namematch"
	"github.com/sells-group/nonprofit-verify/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleOrgs() []model.RegistryOrg {
	return []model.RegistryOrg{
		{EIN: "530196605", Name: "AMERICAN NATIONAL RED CROSS", State: "DC", RevenueAmt: 3_200_000_000},
		{EIN: "131624100", Name: "UNITED WAY WORLDWIDE", State: "VA", RevenueAmt: 90_000_000},
		{EIN: "941111111", Name: "BAY AREA FOOD BANK", State: "CA", RevenueAmt: 1_000},
	}
}

type harness struct {
	svc      *Service
	rec      *mockReconciler
	cache    *cache.Cache
	registry *bmf.Registry
	metrics  *metrics.Metrics
	now      *time.Time
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()
	now := testNow
	clock := func() time.Time { return now }
	m := metrics.New(prometheus.NewRegistry())

	rec := &mockReconciler{}
	reg := &bmf.Registry{}
	reg.Swap(bmf.NewSnapshot(sampleOrgs(), testNow, "test"))
	c := cache.New(cache.NewMemoryStore(time.Minute), cache.Options{Metrics: m, Now: clock})
	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	if deps.Reconciler == nil {
		deps.Reconciler = rec
	}
	deps.Cache = c
	if deps.Registry == nil {
		deps.Registry = reg
	}
	svc := New(deps, Options{
		RegistryLocations: []string{"eo1.csv"},
		BatchMaxSize:      5,
		BatchConcurrency:  2,
		Metrics:           m,
		Now:               clock,
	})
	return &harness{svc: svc, rec: rec, cache: c, registry: deps.Registry, metrics: m, now: &now}
}

func TestLookup_FoundIsCached(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(foundResult("530196605"))
	ctx := context.Background()

	res, err := h.svc.Lookup(ctx, "53-0196605", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "530196605", res.EIN)
	assert.False(t, res.Cached)
	require.NotNil(t, res.Record)

	res, err = h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "530196605", res.Record.EIN)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.LookupOutcome.WithLabelValues("found")))
}

func TestLookup_FoundExpiresAfterSevenDays(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(foundResult("530196605"))
	ctx := context.Background()

	_, err := h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)

	*h.now = testNow.Add(7*24*time.Hour - time.Nanosecond)
	res, err := h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 1)

	*h.now = testNow.Add(7 * 24 * time.Hour)
	res, err = h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, OutcomeFound, res.Outcome)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 2)
}

func TestLookup_NotFoundTombstone(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("111111111")).Return(notFoundResult())
	ctx := context.Background()

	res, err := h.svc.Lookup(ctx, "111111111", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Nil(t, res.Record)

	*h.now = h.now.Add(23 * time.Hour)
	res, err = h.svc.Lookup(ctx, "111111111", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.True(t, res.Cached)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 1)

	*h.now = h.now.Add(time.Hour)
	_, err = h.svc.Lookup(ctx, "111111111", "")
	require.NoError(t, err)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 2)
}

func TestLookup_UnavailableNotCached(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("222222222")).Return(unavailableResult())
	ctx := context.Background()

	for range 2 {
		res, err := h.svc.Lookup(ctx, "222222222", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Nil(t, res)
	}
	h.rec.AssertNumberOfCalls(t, "Reconcile", 2)
	_, ok := h.cache.Get(ctx, "222222222")
	assert.False(t, ok)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.LookupOutcome.WithLabelValues("unavailable")))
}

func TestLookup_Invalid(t *testing.T) {
	h := newHarness(t, Deps{})

	for _, raw := range []string{"", "   ", "12-345"} {
		_, err := h.svc.Lookup(context.Background(), raw, "")
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, raw)
	}
	h.rec.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestLookup_ByName(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(foundResult("530196605")).Once()

	res, err := h.svc.Lookup(context.Background(), "Red Cross", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "530196605", res.EIN)
	require.NotNil(t, res.Match)
	assert.Equal(t, "AMERICAN NATIONAL RED CROSS", *res.Match)
	h.rec.AssertExpectations(t)
}

func TestLookup_ByNameNoMatch(t *testing.T) {
	h := newHarness(t, Deps{})

	res, err := h.svc.Lookup(context.Background(), "Zyxwvut Qqq", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Empty(t, res.EIN)
	h.rec.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestLookup_ByNameWithoutSnapshot(t *testing.T) {
	h := newHarness(t, Deps{Registry: &bmf.Registry{}})

	_, err := h.svc.Lookup(context.Background(), "Red Cross", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLookup_AttachesStateRegistrations(t *testing.T) {
	states := &mockStateChecker{}
	states.On("CheckAll", mock.Anything, "530196605").Return([]model.StateRegistration{
		{State: "CA", Status: model.StrPtr("Current"), RegistrationNumber: model.StrPtr("CT0012345")},
	})
	h := newHarness(t, Deps{States: states})
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(foundResult("530196605"))
	h.rec.On("Reconcile", mock.Anything, einKey("111111111")).Return(notFoundResult())
	ctx := context.Background()

	res, err := h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)
	require.Len(t, res.Record.StateRegistrations, 1)
	assert.Equal(t, "CA", res.Record.StateRegistrations[0].State)
	assert.InDelta(t, 1.0, res.Record.Confidence, 0, "state registries do not count toward confidence")

	cached, err := h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	require.Len(t, cached.Record.StateRegistrations, 1)

	_, err = h.svc.Lookup(ctx, "111111111", "")
	require.NoError(t, err)
	states.AssertNumberOfCalls(t, "CheckAll", 1)
}

func TestReverify_BypassesCache(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("111111111")).Return(notFoundResult()).Once()
	h.rec.On("Reconcile", mock.Anything, einKey("111111111")).Return(foundResult("111111111"))
	ctx := context.Background()

	res, err := h.svc.Lookup(ctx, "111111111", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)

	res, err = h.svc.Reverify(ctx, "11-1111111", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.False(t, res.Cached)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 2)

	res, err = h.svc.Lookup(ctx, "111111111", "")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, OutcomeFound, res.Outcome)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 2)
}

func TestReverify_Unavailable(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(foundResult("530196605")).Once()
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(unavailableResult())
	ctx := context.Background()

	_, err := h.svc.Lookup(ctx, "530196605", "")
	require.NoError(t, err)

	_, err = h.svc.Reverify(ctx, "530196605", "")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, ok := h.cache.Get(ctx, "530196605")
	assert.False(t, ok, "invalidated entry is not restored")
}

func TestSearch(t *testing.T) {
	h := newHarness(t, Deps{})

	page, err := h.svc.Search(context.Background(), namematch.Query{Text: "red cross"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Matches)
	assert.Equal(t, "530196605", page.Matches[0].EIN)
	for _, m := range page.Matches {
		assert.NotEqual(t, "131624100", m.EIN)
	}

	page, err = h.svc.Search(context.Background(), namematch.Query{Text: "red cross", State: "ca"})
	require.NoError(t, err)
	assert.Empty(t, page.Matches)
}

func TestSearch_Errors(t *testing.T) {
	h := newHarness(t, Deps{})
	_, err := h.svc.Search(context.Background(), namematch.Query{Text: "  "})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	empty := newHarness(t, Deps{Registry: &bmf.Registry{}})
	_, err = empty.svc.Search(context.Background(), namematch.Query{Text: "red cross"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBatchLookup(t *testing.T) {
	h := newHarness(t, Deps{})
	h.rec.On("Reconcile", mock.Anything, einKey("530196605")).Return(foundResult("530196605"))
	h.rec.On("Reconcile", mock.Anything, einKey("111111111")).Return(notFoundResult())
	h.rec.On("Reconcile", mock.Anything, einKey("222222222")).Return(unavailableResult())

	items, err := h.svc.BatchLookup(context.Background(),
		[]string{"53-0196605", "111111111", "530196605", "222222222"})
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "53-0196605", items[0].Input)
	assert.Equal(t, OutcomeFound, items[0].Outcome)
	assert.Equal(t, OutcomeNotFound, items[1].Outcome)
	assert.Equal(t, "530196605", items[2].Input)
	assert.Equal(t, OutcomeFound, items[2].Outcome)
	assert.Equal(t, OutcomeUnavailable, items[3].Outcome)
	assert.NotEmpty(t, items[3].Error)
	h.rec.AssertNumberOfCalls(t, "Reconcile", 3)
}

func TestBatchLookup_Rejects(t *testing.T) {
	h := newHarness(t, Deps{})
	ctx := context.Background()

	_, err := h.svc.BatchLookup(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = h.svc.BatchLookup(ctx, []string{"1", "2", "3", "4", "5", "6"})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = h.svc.BatchLookup(ctx, []string{"530196605", "red cross"})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	h.rec.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "verify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRefreshRegistrySnapshot(t *testing.T) {
	st := newStore(t)
	loader := &mockLoader{}
	loader.On("Load", mock.Anything, []string{"eo1.csv"}).Return([]model.RegistryOrg{
		{EIN: "530196605", Name: "AMERICAN NATIONAL RED CROSS", State: "DC"},
	}, nil)
	h := newHarness(t, Deps{Loader: loader, Store: st, Registry: &bmf.Registry{}})
	ctx := context.Background()

	res, err := h.svc.RefreshRegistrySnapshot(ctx, nil)
	require.NoError(t, err)
	loader.AssertExpectations(t)
	assert.Equal(t, 1, res.Orgs)
	assert.NotEmpty(t, res.RunID)

	snap := h.registry.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, "eo1.csv", snap.Source())

	last, err := st.LastRefresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.RunStatusComplete, last.Status)
	assert.Equal(t, int64(1), last.Rows)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SnapshotOrgs))

	st2 := h.svc.Status()
	assert.Equal(t, 1, st2.RegistryOrgs)
}

func TestRefreshRegistrySnapshot_FailureKeepsPrevious(t *testing.T) {
	st := newStore(t)
	loader := &mockLoader{}
	loader.On("Load", mock.Anything, []string{"https://example.org/eo1.csv"}).Return(nil, errors.New("download failed"))
	h := newHarness(t, Deps{Loader: loader, Store: st})
	prev := h.registry.Current()
	ctx := context.Background()

	_, err := h.svc.RefreshRegistrySnapshot(ctx, []string{"https://example.org/eo1.csv"})
	require.Error(t, err)
	assert.Same(t, prev, h.registry.Current())

	runs, err := st.ListRefreshes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "download failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshOutcome.WithLabelValues("failed")))

	last, err := st.LastRefresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRefreshRegistrySnapshot_EmptyLoad(t *testing.T) {
	loader := &mockLoader{}
	loader.On("Load", mock.Anything, mock.Anything).Return([]model.RegistryOrg{}, nil)
	h := newHarness(t, Deps{Loader: loader})
	prev := h.registry.Current()

	_, err := h.svc.RefreshRegistrySnapshot(context.Background(), nil)
	require.Error(t, err)
	assert.Same(t, prev, h.registry.Current())
}

func TestRestoreSnapshot(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	loader := &mockLoader{}
	loader.On("Load", mock.Anything, mock.Anything).Return(sampleOrgs(), nil)
	first := newHarness(t, Deps{Loader: loader, Store: st, Registry: &bmf.Registry{}})
	_, err := first.svc.RefreshRegistrySnapshot(ctx, nil)
	require.NoError(t, err)

	second := newHarness(t, Deps{Store: st, Registry: &bmf.Registry{}})
	ok, err := second.svc.RestoreSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	snap := second.registry.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, "eo1.csv", snap.Source())

	empty := newHarness(t, Deps{Store: newStore(t), Registry: &bmf.Registry{}})
	ok, err = empty.svc.RestoreSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, empty.registry.Current())
}
