package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smartcart/discovery/internal/catalog"
)

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"lowercases", "Wireless BLUETOOTH Headphones", []string{"wireless", "bluetooth", "headphones"}},
		{"drops short tokens", "tv on a 4k stand", []string{"stand"}},
		{"empty query", "", []string{}},
		{"whitespace only", "   \t ", []string{}},
		{"preserves order", "noise cancelling over ear", []string{"noise", "cancelling", "over", "ear"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QueryTerms(tt.query))
		})
	}
}

func TestMatchedTerms(t *testing.T) {
	p := &catalog.Product{
		Title:       "Sony Wireless Headphones",
		Description: "Noise cancelling over-ear",
		Category:    "Electronics",
	}

	t.Run("substring match against combined text", func(t *testing.T) {
		got := MatchedTerms([]string{"wireless", "cancelling", "electronics", "unicorn"}, p)
		assert.Equal(t, []string{"wireless", "cancelling", "electronics"}, got)
	})

	t.Run("deduplicates in query order", func(t *testing.T) {
		got := MatchedTerms([]string{"sony", "wireless", "sony"}, p)
		assert.Equal(t, []string{"sony", "wireless"}, got)
	})

	t.Run("no terms", func(t *testing.T) {
		assert.Nil(t, MatchedTerms(nil, p))
	})
}

func TestKeywordBoost(t *testing.T) {
	terms := []string{"wireless", "bluetooth", "headphones"}

	assert.InDelta(t, 0.5, KeywordBoost(terms, terms), 1e-9)
	assert.InDelta(t, 0.5/3, KeywordBoost(terms[:1], terms), 1e-9)
	assert.Zero(t, KeywordBoost(nil, terms))
	assert.Zero(t, KeywordBoost(nil, nil))
}
