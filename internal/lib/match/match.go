// Package match implements fuzzy name matching against a small gazetteer of
// known locations. Matching is pure string work: no I/O, no shared state.
package match

import (
	"sort"
	"strings"
	"unicode"
)

// AcceptThreshold is the minimum composite score at which a candidate is
// considered a match. Below this the resolver reports no match.
const AcceptThreshold = 0.3

// Candidate is a scored gazetteer entry.
type Candidate struct {
	Name  string  `json:"name"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Normalize lowercases and replaces punctuation with spaces, so hyphenated
// or dotted names tokenize into the same words as their plain spellings.
// Whitespace runs collapse to a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Levenshtein computes the edit distance between two strings over Unicode
// code points, with insert, delete and substitute each costing 1.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // delete
				curr[j-1]+1,    // insert
				prev[j-1]+cost, // substitute
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Score computes the composite similarity between free-text input and a
// candidate name. Both are normalized first. An exact normalized match scores
// 1.0; otherwise the score is the best of substring containment (0.8), token
// overlap ratio, and edit-distance similarity weighted at 0.7.
func Score(input, candidate string) float64 {
	in := Normalize(input)
	cand := Normalize(candidate)

	if in == "" || cand == "" {
		return 0
	}
	if in == cand {
		return 1.0
	}

	score := 0.0
	if strings.Contains(cand, in) || strings.Contains(in, cand) {
		score = 0.8
	}

	if overlap := tokenOverlap(in, cand); overlap > score {
		score = overlap
	}

	if sim := editSimilarity(in, cand) * 0.7; sim > score {
		score = sim
	}

	return score
}

// Best scores every name and returns the top candidate, if any scored above
// the acceptance threshold. The boolean mirrors the map-lookup idiom.
func Best(input string, names []string) (Candidate, bool) {
	candidates := make([]Candidate, 0, len(names))
	for i, name := range names {
		candidates = append(candidates, Candidate{
			Name:  name,
			Index: i,
			Score: Score(input, name),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) == 0 || candidates[0].Score <= AcceptThreshold {
		return Candidate{}, false
	}
	return candidates[0], true
}

// tokenOverlap computes |shared words| / max(|input tokens|, |candidate tokens|).
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(ta))
	for _, w := range ta {
		set[w] = true
	}

	shared := 0
	seen := make(map[string]bool, len(tb))
	for _, w := range tb {
		if set[w] && !seen[w] {
			shared++
			seen[w] = true
		}
	}

	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}
	return float64(shared) / float64(denom)
}

// editSimilarity computes 1 - distance/maxLen over code points.
func editSimilarity(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
