package evaluate

import (
	"strings"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/rank"
)

// AutoJudge synthesizes relevance judgments for a query over a product set
// from literal term overlap. It is a deliberately weak signal for catalogs
// without human labels; callers must flag metrics derived from it.
func AutoJudge(query string, products []catalog.Product) []Judgment {
	terms := rank.QueryTerms(query)

	judgments := make([]Judgment, len(products))
	for i := range products {
		judgments[i] = Judgment{
			ProductID: products[i].ID,
			Relevance: judgeProduct(terms, &products[i]),
		}
	}
	return judgments
}

func judgeProduct(terms []string, p *catalog.Product) int {
	if len(terms) == 0 {
		return 0
	}

	text := strings.ToLower(p.SearchText())
	title := strings.ToLower(p.Title)

	var matched int
	var exactTitle bool
	for _, t := range terms {
		if strings.Contains(text, t) {
			matched++
		}
		if strings.Contains(title, t) {
			exactTitle = true
		}
	}

	coverage := float64(matched) / float64(len(terms))
	switch {
	case coverage >= 0.8 && exactTitle:
		return 3
	case coverage >= 0.5 || exactTitle:
		return 2
	case matched > 0:
		return 1
	default:
		return 0
	}
}
