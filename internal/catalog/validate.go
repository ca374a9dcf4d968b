package catalog

import (
	"fmt"
	"unicode/utf8"

	"github.com/smartcart/discovery/internal/errors"
)

// Query and text length limits. Longer product texts are truncated on store;
// longer queries are rejected.
const (
	MaxQueryChars       = 500
	MaxProductTextChars = 1000
)

// Search limits per the public API surface.
const (
	MaxSearchLimit    = 50
	MaxSimilarLimit   = 20
	DefaultMinScore   = 0.1
)

// ValidateQuery checks a search query for emptiness and length.
// Length is measured in Unicode characters, not bytes.
func ValidateQuery(query string) error {
	if query == "" {
		return errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if n := utf8.RuneCountInString(query); n > MaxQueryChars {
		return errors.New(errors.ErrCodeQueryTooLong,
			fmt.Sprintf("query is %d characters, maximum is %d", n, MaxQueryChars), nil)
	}
	return nil
}

// ValidateLimit checks a result limit against the given maximum.
func ValidateLimit(limit, max int) error {
	if limit < 1 || limit > max {
		return errors.New(errors.ErrCodeInvalidLimit,
			fmt.Sprintf("limit %d out of range [1,%d]", limit, max), nil)
	}
	return nil
}

// Validate checks product invariants: non-empty title, rating in [0,5],
// original price >= price when both present, non-negative price and counts.
func (p *Product) Validate() error {
	if p.Title == "" {
		return errors.New(errors.ErrCodeInvalidProduct, "product title is empty", nil)
	}
	if p.Price < 0 {
		return errors.New(errors.ErrCodeInvalidProduct, "price is negative", nil)
	}
	if p.OriginalPrice != nil && *p.OriginalPrice < p.Price {
		return errors.New(errors.ErrCodeInvalidProduct,
			"original price is below current price", nil)
	}
	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5) {
		return errors.New(errors.ErrCodeInvalidProduct,
			fmt.Sprintf("rating %.2f outside [0,5]", *p.Rating), nil)
	}
	if p.ReviewCount < 0 {
		return errors.New(errors.ErrCodeInvalidProduct, "review count is negative", nil)
	}
	if p.StockQuantity < 0 {
		return errors.New(errors.ErrCodeInvalidProduct, "stock quantity is negative", nil)
	}
	if p.Availability != "" && !p.Availability.Valid() {
		return errors.New(errors.ErrCodeInvalidProduct,
			fmt.Sprintf("unknown availability %q", p.Availability), nil)
	}
	return nil
}

// Validate checks interaction invariants: known kind, product reference set,
// non-negative result position.
func (i *Interaction) Validate() error {
	if !i.Kind.Valid() {
		return errors.New(errors.ErrCodeInvalidKind,
			fmt.Sprintf("unknown interaction kind %q", i.Kind), nil)
	}
	if i.SessionID == "" {
		return errors.InvalidInput("interaction session id is empty")
	}
	if i.ProductID <= 0 {
		return errors.InvalidInput("interaction product id is not set")
	}
	if i.Position < 0 {
		return errors.InvalidInput("interaction position is negative")
	}
	return nil
}

// Validate checks that all five weights are non-negative.
func (w *RankingWeights) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"alpha", w.Alpha}, {"beta", w.Beta}, {"gamma", w.Gamma},
		{"delta", w.Delta}, {"epsilon", w.Epsilon},
	} {
		if v.value < 0 {
			return errors.New(errors.ErrCodeInvalidWeights,
				fmt.Sprintf("weight %s is negative", v.name), nil)
		}
	}
	return nil
}

// Validate checks filter consistency.
func (f *FilterBag) Validate() error {
	if f.MinPrice != nil && *f.MinPrice < 0 {
		return errors.New(errors.ErrCodeInvalidFilter, "min price is negative", nil)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MaxPrice < *f.MinPrice {
		return errors.New(errors.ErrCodeInvalidFilter, "max price is below min price", nil)
	}
	return nil
}

// TruncateText caps product source text at MaxProductTextChars Unicode
// characters for embedding audit storage.
func TruncateText(text string) string {
	if utf8.RuneCountInString(text) <= MaxProductTextChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxProductTextChars])
}
