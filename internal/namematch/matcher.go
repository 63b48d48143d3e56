package namematch

import (
	"sort"

	"github.com/sells-group/nonprofit-verify/internal/ident"
)

// containmentWeight scales token containment so an exact trigram match still
// outranks a name that merely contains every query word.
const containmentWeight = 0.95

// Match is a scored candidate.
type Match struct {
	Candidate
	Score float64 `json:"score"`
}

// Query is a name search request. Text is normalized by the matcher.
type Query struct {
	Text     string
	State    string
	Page     int // 1-based; defaults to 1
	PageSize int // defaults to the matcher's page size
}

// Page is one page of ranked matches.
type Page struct {
	Matches  []Match `json:"matches"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Matcher applies a similarity threshold and paging to an Index.
type Matcher struct {
	Threshold   float64
	PageSize    int
	MaxPageSize int
}

// NewMatcher returns a Matcher with defaults for non-positive settings.
func NewMatcher(threshold float64, pageSize, maxPageSize int) Matcher {
	if threshold <= 0 {
		threshold = 0.3
	}
	if pageSize <= 0 {
		pageSize = 25
	}
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return Matcher{Threshold: threshold, PageSize: pageSize, MaxPageSize: maxPageSize}
}

// Search scores every candidate sharing at least one trigram with q,
// restricted to q.State when set, and returns the requested page ordered by
// score desc, revenue desc, EIN asc.
func (m Matcher) Search(ix *Index, q Query) Page {
	size := q.PageSize
	if size <= 0 {
		size = m.PageSize
	}
	size = min(size, m.MaxPageSize)
	page := max(q.Page, 1)
	out := Page{Page: page, PageSize: size, Matches: []Match{}}

	matches := m.rank(ix, ident.NormalizeName(q.Text), q.State)
	out.Total = len(matches)

	start := (page - 1) * size
	if start >= len(matches) {
		return out
	}
	out.Matches = matches[start:min(start+size, len(matches))]
	return out
}

// Best returns the top-ranked match, if any qualifies.
func (m Matcher) Best(ix *Index, text, state string) (Match, bool) {
	matches := m.rank(ix, ident.NormalizeName(text), state)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

func (m Matcher) rank(ix *Index, norm, state string) []Match {
	if ix.Len() == 0 || norm == "" {
		return nil
	}

	qGrams := trigrams(norm)
	shared := make(map[int32]int32)
	for _, g := range qGrams {
		for _, id := range ix.grams[g] {
			shared[id]++
		}
	}

	qTokens := significantTokens(norm)
	hits := make(map[int32]int32)
	for _, tok := range qTokens {
		for _, id := range ix.tokens[tok] {
			hits[id]++
		}
	}

	best := make(map[int32]float64)
	for id, n := range shared {
		e := ix.entries[id]
		c := &ix.cands[e.cand]
		if state != "" && c.State != state {
			continue
		}

		// Jaccard over distinct trigram sets.
		score := float64(n) / float64(int32(len(qGrams))+e.grams-n)
		if h := hits[id]; h > 0 {
			score = max(score, containmentWeight*float64(h)/float64(len(qTokens)))
		}
		if score < m.Threshold {
			continue
		}
		if score > best[e.cand] {
			best[e.cand] = score
		}
	}

	matches := make([]Match, 0, len(best))
	for cand, score := range best {
		matches = append(matches, Match{Candidate: ix.cands[cand], Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.EIN < b.EIN
	})
	return matches
}
