// Package scoring implements the fuzzy filename score behind the match
// engine's partial tier.
package scoring

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
)

// Hybrid blends normalized edit distance with token-set overlap and
// keeps the stronger signal: edit distance catches near-typos such as
// "essay_jon" vs "essayjohn", token overlap catches reordered or
// decorated stems. Non-identical keys never reach 100.
type Hybrid struct {
	params *levenshtein.Params
}

func NewHybrid() *Hybrid {
	return &Hybrid{params: levenshtein.NewParams()}
}

func (h *Hybrid) Score(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	edit := levenshtein.Similarity(a, b, h.params)
	tokens := tokenOverlap(a, b)

	score := int(math.Round(math.Max(edit, tokens) * 100))
	if score > 99 {
		score = 99
	}
	if score < 0 {
		score = 0
	}
	return score
}

// tokenOverlap is the Jaccard ratio over alphanumeric tokens.
func tokenOverlap(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for token := range ta {
		if _, ok := tb[token]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, token := range strings.FieldsFunc(s, func(r rune) bool {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		return !isAlnum
	}) {
		tokens[token] = struct{}{}
	}
	return tokens
}
