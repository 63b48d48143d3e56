package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleOrgs() []model.RegistryOrg {
	return []model.RegistryOrg{
		{EIN: "530196605", Name: "AMERICAN NATIONAL RED CROSS", City: "WASHINGTON", State: "DC",
			Subsection: "03", Status: "01", RevenueAmt: 3_200_000_000, NTEECode: "M20", SortName: "RED CROSS"},
		{EIN: "131624100", Name: "UNITED WAY WORLDWIDE", State: "VA", RevenueAmt: 90_000_000},
	}
}

func TestSQLite_Registry_ReplaceAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	orgs, err := st.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Empty(t, orgs)

	n, err := st.ReplaceRegistry(ctx, sampleOrgs())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	orgs, err = st.LoadRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "131624100", orgs[0].EIN, "ordered by ein")
	assert.Equal(t, sampleOrgs()[0], orgs[1])

	// A second replace drops rows absent from the new snapshot.
	n, err = st.ReplaceRegistry(ctx, sampleOrgs()[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	orgs, err = st.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
}

func TestSQLite_Registry_DuplicateRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, err := st.ReplaceRegistry(ctx, sampleOrgs())
	require.NoError(t, err)

	dup := append(sampleOrgs(), sampleOrgs()[0])
	_, err = st.ReplaceRegistry(ctx, dup)
	require.Error(t, err)

	orgs, err := st.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 2, "previous snapshot survives a failed replace")
}

func TestSQLite_RefreshRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return clock }

	last, err := st.LastRefresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	first, err := st.StartRefresh(ctx, "eo1.csv")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, first.Status)
	assert.NotEmpty(t, first.ID)

	clock = clock.Add(time.Minute)
	require.NoError(t, st.CompleteRefresh(ctx, first.ID, 1_800_000))

	clock = clock.Add(time.Hour)
	second, err := st.StartRefresh(ctx, "eo2.csv")
	require.NoError(t, err)
	require.NoError(t, st.FailRefresh(ctx, second.ID, errors.New("download: 503")))

	last, err = st.LastRefresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, first.ID, last.ID, "failed runs are not the last good refresh")
	assert.Equal(t, int64(1_800_000), last.Rows)
	require.NotNil(t, last.CompletedAt)
	assert.True(t, last.CompletedAt.Equal(time.Date(2026, 3, 1, 6, 1, 0, 0, time.UTC)))

	runs, err := st.ListRefreshes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "download: 503", runs[0].Error)
}

func TestSQLite_FinishUnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.CompleteRefresh(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(context.Background(), "mongo", "")
	assert.Error(t, err)
}
