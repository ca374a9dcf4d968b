package rank

import (
	"fmt"
	"strings"

	"github.com/smartcart/discovery/internal/catalog"
)

// fragmentSeparator joins explanation fragments.
const fragmentSeparator = " • "

// Explain synthesizes the human-readable justification for a ranked result
// from its sub-scores. Fragments are appended in fixed order; a result that
// earns none falls back to a generic line.
func Explain(p *catalog.Product, sub SubScores, matched []string) string {
	var fragments []string

	switch {
	case sub.Semantic > 0.5:
		fragments = append(fragments,
			fmt.Sprintf("High semantic match (%d%%)", int(sub.Semantic*100)))
	case sub.Semantic > 0.3:
		fragments = append(fragments,
			fmt.Sprintf("Moderate semantic match (%d%%)", int(sub.Semantic*100)))
	}

	if len(matched) > 0 {
		shown := matched
		if len(shown) > 3 {
			shown = shown[:3]
		}
		fragments = append(fragments, "Matches: "+strings.Join(shown, ", "))
	}

	switch {
	case p.Rating != nil && *p.Rating >= 4:
		fragments = append(fragments, fmt.Sprintf("Highly rated (%.1f★)", *p.Rating))
	case p.Rating != nil && *p.Rating >= 3.5:
		fragments = append(fragments, "Well rated")
	}

	switch {
	case sub.Price > 0.7:
		fragments = append(fragments, "Great value")
	case sub.Price > 0.5:
		fragments = append(fragments, "Good price")
	}

	switch p.Availability {
	case catalog.AvailabilityInStock:
		fragments = append(fragments, "In stock")
	case catalog.AvailabilityLowStock:
		fragments = append(fragments, "Limited stock")
	}

	if len(fragments) == 0 {
		return "Relevant to your search"
	}
	return strings.Join(fragments, fragmentSeparator)
}
