package rank

import (
	"strings"

	"github.com/smartcart/discovery/internal/catalog"
)

// minTermLength drops filler tokens; two-character words carry no signal.
const minTermLength = 3

// QueryTerms tokenizes a query on whitespace, drops tokens shorter than
// three characters, and lowercases the rest. Order is preserved.
func QueryTerms(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTermLength {
			continue
		}
		terms = append(terms, strings.ToLower(f))
	}
	return terms
}

// MatchedTerms retains the query terms appearing as substrings of the
// product's searchable text, deduplicated in query order.
func MatchedTerms(terms []string, p *catalog.Product) []string {
	if len(terms) == 0 {
		return nil
	}
	haystack := strings.ToLower(p.SearchText())

	matched := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		if strings.Contains(haystack, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

// KeywordBoost is the additive semantic bonus for literal term matches:
// half the fraction of query terms present in the product text.
func KeywordBoost(matched, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	return 0.5 * float64(len(matched)) / float64(len(terms))
}

func toStringList(terms []string) catalog.StringList {
	if len(terms) == 0 {
		return nil
	}
	return catalog.StringList(terms)
}
