package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/output"
	"github.com/smartcart/discovery/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	session  string
	limit    int
	category string
	minPrice float64
	maxPrice float64
	inStock  bool
	minScore float64
	format   string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the product catalog",
		Long: `Search the product catalog with semantic matching and explainable
re-ranking. Each result shows its final score, the five sub-scores behind it,
and a human-readable explanation.

Examples:
  smartcart search "wireless headphones"
  smartcart search "standing desk" --category Furniture --max-price 500
  smartcart search "running shoes" --in-stock --format json
  smartcart search "gift ideas" --session 7d4a... # continue a session`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.session, "session", "", "Session id (new session when empty)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Filter by category (substring match)")
	cmd.Flags().Float64Var(&opts.minPrice, "min-price", 0, "Minimum price")
	cmd.Flags().Float64Var(&opts.maxPrice, "max-price", 0, "Maximum price")
	cmd.Flags().BoolVar(&opts.inStock, "in-stock", false, "Only products in stock")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Score threshold (default 0.1)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	req := search.Request{
		SessionID: opts.session,
		Query:     query,
		Limit:     opts.limit,
		Filters:   buildFilters(opts),
	}

	resp, err := app.orchestrator.Search(ctx, req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return formatSearchText(cmd, query, resp)
}

func buildFilters(opts searchOptions) catalog.FilterBag {
	filters := catalog.FilterBag{
		Category:    opts.category,
		InStockOnly: opts.inStock,
	}
	if opts.minPrice > 0 {
		v := opts.minPrice
		filters.MinPrice = &v
	}
	if opts.maxPrice > 0 {
		v := opts.maxPrice
		filters.MaxPrice = &v
	}
	if opts.minScore > 0 {
		filters.MinScore = opts.minScore
	}
	return filters
}

func formatSearchText(cmd *cobra.Command, query string, resp *search.Response) error {
	out := output.New(cmd.OutOrStdout())

	if len(resp.Results) == 0 {
		out.Statusf("", "No results found for %q", query)
		out.Field("session", resp.SessionID)
		return nil
	}

	if resp.Degraded {
		out.Warning("Embedding service unavailable; results use the deterministic fallback")
	}
	if resp.Fallback != "" {
		out.Warning("No semantic matches; showing keyword matches instead")
	}

	out.Statusf("🔍", "Found %d results for %q (%dms):", len(resp.Results), query, resp.ResponseTimeMs)
	out.Newline()

	for _, r := range resp.Results {
		out.Statusf("", "%d. %s (score: %.3f)", r.Rank, r.Product.Title, r.FinalScore)
		out.Status("", fmt.Sprintf("   %s · %s %.2f · %s",
			r.Product.Category, r.Product.Currency, r.Product.Price, r.Product.Availability))
		out.Status("", "   "+r.Explanation)
		out.Status("", fmt.Sprintf("   semantic %.2f | rating %.2f | price %.2f | stock %.2f | recency %.2f",
			r.SubScores.Semantic, r.SubScores.Rating, r.SubScores.Price,
			r.SubScores.Stock, r.SubScores.Recency))
		out.Newline()
	}

	out.Field("session", resp.SessionID)
	if resp.SearchLogID != 0 {
		out.Field("search log", fmt.Sprintf("%d", resp.SearchLogID))
	}
	return nil
}

// formatRecommendations renders a recommendation list; shared by the
// recommend, similar, and trending commands.
func formatRecommendations(cmd *cobra.Command, heading string, recs []recommendationView, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	out := output.New(cmd.OutOrStdout())
	if len(recs) == 0 {
		out.Status("", "Nothing to recommend yet")
		return nil
	}

	out.Statusf("✨", "%s:", heading)
	out.Newline()
	for i, r := range recs {
		out.Statusf("", "%d. %s (score: %.3f)", i+1, r.Title, r.Score)
		out.Status("", fmt.Sprintf("   %s · %s %.2f — %s", r.Category, r.Currency, r.Price, r.Reason))
	}
	return nil
}

// recommendationView is the JSON shape shared by recommendation commands.
type recommendationView struct {
	ProductID int64   `json:"product_id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}
