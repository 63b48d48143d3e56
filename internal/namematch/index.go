// Package namematch ranks registry organizations against free-text name
// queries using trigram similarity and token containment.
package namematch

import (
	"strings"

	"github.com/sells-group/nonprofit-verify/internal/ident"
)

// Candidate is one searchable organization.
type Candidate struct {
	EIN      string   `json:"ein"`
	Name     string   `json:"name"`
	AltNames []string `json:"alt_names,omitempty"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
	Revenue  int64    `json:"revenue"`
}

type entry struct {
	cand  int32
	grams int32 // distinct trigram count of the normalized name
}

// Index is an immutable inverted index over candidate names. Build a new one
// for each registry snapshot; never mutate one that readers can see.
type Index struct {
	cands   []Candidate
	entries []entry
	grams   map[string][]int32 // trigram -> entry ids
	tokens  map[string][]int32 // token -> entry ids
}

// Build indexes every name and alternate name of cands.
func Build(cands []Candidate) *Index {
	ix := &Index{
		cands:  cands,
		grams:  make(map[string][]int32),
		tokens: make(map[string][]int32),
	}
	for i := range cands {
		ix.add(int32(i), cands[i].Name)
		for _, alt := range cands[i].AltNames {
			ix.add(int32(i), alt)
		}
	}
	return ix
}

func (ix *Index) add(cand int32, name string) {
	norm := ident.NormalizeName(name)
	if norm == "" {
		return
	}
	id := int32(len(ix.entries))
	grams := trigrams(norm)
	ix.entries = append(ix.entries, entry{cand: cand, grams: int32(len(grams))})
	for _, g := range grams {
		ix.grams[g] = append(ix.grams[g], id)
	}
	for _, tok := range uniqueTokens(norm) {
		ix.tokens[tok] = append(ix.tokens[tok], id)
	}
}

// Len returns the number of candidates.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.cands)
}

// Candidate returns the candidate at position i.
func (ix *Index) Candidate(i int) Candidate { return ix.cands[i] }

// trigrams returns the distinct trigrams of s padded with two leading
// spaces and one trailing space, so short words still produce grams.
func trigrams(s string) []string {
	r := []rune("  " + s + " ")
	seen := make(map[string]struct{}, len(r))
	out := make([]string, 0, len(r))
	for i := 0; i+3 <= len(r); i++ {
		g := string(r[i : i+3])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "of": true, "and": true, "for": true, "a": true, "an": true, "in": true,
	"inc": true, "incorporated": true, "co": true, "corp": true, "corporation": true,
	"ltd": true, "llc": true,
}

func uniqueTokens(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// significantTokens drops stopwords unless nothing would remain.
func significantTokens(s string) []string {
	all := uniqueTokens(s)
	var out []string
	for _, t := range all {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}
