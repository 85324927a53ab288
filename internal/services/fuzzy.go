package services

import (
	"math"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ExactScore is returned for an empty query or a case-insensitive exact name
// match. Partial matches always score below it.
const ExactScore = math.MaxInt32

// Matcher scores a search query against product names.
type Matcher struct {
	MinScore int
}

func NewMatcher(minScore int) *Matcher {
	return &Matcher{MinScore: minScore}
}

// Score reports the relevance of name for query and whether it matches at all.
// A name that does not contain the query characters in order never matches.
func (m *Matcher) Score(query, name string) (int, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return ExactScore, true
	}
	if strings.EqualFold(q, strings.TrimSpace(name)) {
		return ExactScore, true
	}

	matches := fuzzy.Find(q, []string{name})
	if len(matches) == 0 {
		return 0, false
	}

	score := min(matches[0].Score, ExactScore-1)
	if score < m.MinScore {
		return score, false
	}
	return score, true
}
