package namematch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex() *Index {
	return Build([]Candidate{
		{EIN: "530196605", Name: "AMERICAN NATIONAL RED CROSS", State: "DC", Revenue: 3_000_000_000},
		{EIN: "131624100", Name: "UNITED WAY WORLDWIDE", State: "VA", Revenue: 90_000_000},
		{EIN: "237069110", Name: "RED CROSS CHAPTER OF NORTHERN OHIO", State: "OH", Revenue: 4_000_000},
		{EIN: "136213516", Name: "BOY SCOUTS OF AMERICA", AltNames: []string{"BSA"}, State: "TX", Revenue: 400_000_000},
		{EIN: "941196203", Name: "SIERRA CLUB", State: "CA", Revenue: 100_000_000},
		{EIN: "042103580", Name: "HARVARD UNIVERSITY", AltNames: []string{"PRESIDENT AND FELLOWS OF HARVARD COLLEGE"}, State: "MA", Revenue: 6_000_000_000},
	})
}

func eins(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.EIN
	}
	return out
}

func TestSearch_RedCross(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "red cross"})

	require.NotEmpty(t, page.Matches)
	assert.Equal(t, "530196605", page.Matches[0].EIN)
	assert.Contains(t, eins(page.Matches), "237069110")
	assert.NotContains(t, eins(page.Matches), "131624100")
	assert.NotContains(t, eins(page.Matches), "941196203")
}

func TestSearch_TiesBrokenByRevenue(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "Red Cross"})

	require.GreaterOrEqual(t, len(page.Matches), 2)
	// Both contain every query token, so they tie on score.
	assert.InDelta(t, page.Matches[0].Score, page.Matches[1].Score, 1e-9)
	assert.Greater(t, page.Matches[0].Revenue, page.Matches[1].Revenue)
}

func TestSearch_StateFilter(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "red cross", State: "OH"})

	assert.Equal(t, []string{"237069110"}, eins(page.Matches))
	assert.Equal(t, 1, page.Total)
}

func TestSearch_Typo(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "Sierra Clubb"})

	require.NotEmpty(t, page.Matches)
	assert.Equal(t, "941196203", page.Matches[0].EIN)
}

func TestSearch_AltName(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "Harvard College"})

	require.NotEmpty(t, page.Matches)
	assert.Equal(t, "042103580", page.Matches[0].EIN)
	assert.Equal(t, "HARVARD UNIVERSITY", page.Matches[0].Name)
	// One result per organization even when several names match.
	assert.Equal(t, 1, countEIN(page.Matches, "042103580"))
}

func TestSearch_ExactScoresOne(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "sierra club"})

	require.NotEmpty(t, page.Matches)
	assert.InDelta(t, 1.0, page.Matches[0].Score, 1e-9)
}

func TestSearch_NoMatch(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)
	page := m.Search(testIndex(), Query{Text: "zzqx"})
	assert.Empty(t, page.Matches)
	assert.Zero(t, page.Total)

	page = m.Search(testIndex(), Query{Text: "!!!"})
	assert.Empty(t, page.Matches)

	page = m.Search(nil, Query{Text: "red cross"})
	assert.Empty(t, page.Matches)
}

func TestSearch_Pagination(t *testing.T) {
	var cands []Candidate
	for i := range 30 {
		cands = append(cands, Candidate{
			EIN:     fmt.Sprintf("1000000%02d", i),
			Name:    fmt.Sprintf("Community Food Bank %d", i),
			Revenue: int64(i),
		})
	}
	ix := Build(cands)
	m := NewMatcher(0.3, 10, 20)

	p1 := m.Search(ix, Query{Text: "food bank"})
	assert.Equal(t, 30, p1.Total)
	assert.Len(t, p1.Matches, 10)
	assert.Equal(t, 1, p1.Page)

	p3 := m.Search(ix, Query{Text: "food bank", Page: 3})
	assert.Len(t, p3.Matches, 10)

	p4 := m.Search(ix, Query{Text: "food bank", Page: 4})
	assert.Empty(t, p4.Matches)

	capped := m.Search(ix, Query{Text: "food bank", PageSize: 500})
	assert.Equal(t, 20, capped.PageSize)
	assert.Len(t, capped.Matches, 20)
}

func TestBest(t *testing.T) {
	m := NewMatcher(0.3, 25, 100)

	best, ok := m.Best(testIndex(), "American Red Cross", "")
	require.True(t, ok)
	assert.Equal(t, "530196605", best.EIN)

	_, ok = m.Best(testIndex(), "qqqq zzzz", "")
	assert.False(t, ok)
}

func TestStopwordsOnlyQuery(t *testing.T) {
	assert.Equal(t, []string{"the", "of"}, significantTokens("the of the"))
	assert.Equal(t, []string{"harvard"}, significantTokens("the harvard inc"))
}

func TestIndexLen(t *testing.T) {
	assert.Equal(t, 6, testIndex().Len())
	var ix *Index
	assert.Zero(t, ix.Len())
}

func countEIN(ms []Match, ein string) int {
	n := 0
	for _, m := range ms {
		if m.EIN == ein {
			n++
		}
	}
	return n
}
