// Package rank scores candidate products for a query: feature normalizers,
// matched-term extraction, the weighted linear combine, and explanation
// synthesis. Everything here is pure and reproducible from the persisted
// product row, so any logged query can be replayed by an auditor.
package rank

import (
	"time"

	"github.com/smartcart/discovery/internal/catalog"
)

// Recency breakpoints in days since product creation.
const (
	recencyFreshDays = 30
	recencyStaleDays = 365
	recencyFloor     = 0.1
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RatingScore normalizes a product rating to [0,1]. Unrated products score
// neutral.
func RatingScore(p *catalog.Product) float64 {
	if p.Rating == nil {
		return 0.5
	}
	return clamp01(*p.Rating / 5)
}

// PriceBounds returns the min and max price over a candidate set. Products
// with unknown price participate as 0.
func PriceBounds(candidates []Candidate) (min, max float64) {
	if len(candidates) == 0 {
		return 0, 0
	}
	min = priceOrZero(&candidates[0].Product)
	max = min
	for i := 1; i < len(candidates); i++ {
		p := priceOrZero(&candidates[i].Product)
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return min, max
}

func priceOrZero(p *catalog.Product) float64 {
	if p.Price < 0 {
		return 0
	}
	return p.Price
}

// PriceScore inverts min-max normalization over the query's candidate set, so
// cheap is relative to the shortlist. Degenerate sets (single price point)
// and unknown prices score neutral.
func PriceScore(p *catalog.Product, min, max float64) float64 {
	if min == max || p.Price < 0 {
		return 0.5
	}
	return clamp01(1 - (p.Price-min)/(max-min))
}

// StockScore maps availability onto [0,1]. In-stock products gain up to 0.3
// extra for deep inventory, saturating at 500 units.
func StockScore(p *catalog.Product) float64 {
	switch p.Availability {
	case catalog.AvailabilityOutOfStock:
		return 0
	case catalog.AvailabilityLowStock:
		return 0.5
	case catalog.AvailabilityInStock:
		return clamp01(0.7 + 0.3*float64(p.StockQuantity)/500)
	default:
		return 0.5
	}
}

// RecencyScore is piecewise linear in days since creation: full score for the
// first month, floor after a year, linear between.
func RecencyScore(p *catalog.Product, now time.Time) float64 {
	days := now.Sub(p.CreatedAt).Hours() / 24
	switch {
	case days <= recencyFreshDays:
		return 1
	case days >= recencyStaleDays:
		return recencyFloor
	default:
		return 1 - 0.9*(days-recencyFreshDays)/(recencyStaleDays-recencyFreshDays)
	}
}
