package cmd

import (
	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/recommend"
)

func newRecommendCmd() *cobra.Command {
	var limit int
	var exclude []int64
	var format string

	cmd := &cobra.Command{
		Use:   "recommend <session-id>",
		Short: "Recommend products for a session",
		Long: `Recommend products based on a session's interaction history. Sessions
with no usable history receive featured products instead.

Examples:
  smartcart recommend 7d4a9c12-...
  smartcart recommend 7d4a9c12-... --limit 5 --exclude 42 --exclude 97`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			if sessionID == "" {
				return errors.InvalidInput("session id is empty")
			}

			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			recs, err := app.recommender.ForSession(ctx, sessionID, limit, exclude)
			if err != nil {
				return err
			}
			return formatRecommendations(cmd, "Recommended for this session", recommendationViews(recs), format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", recommend.DefaultLimit, "Maximum number of recommendations")
	cmd.Flags().Int64SliceVar(&exclude, "exclude", nil, "Product ids to exclude (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func recommendationViews(recs []recommend.Recommendation) []recommendationView {
	views := make([]recommendationView, 0, len(recs))
	for _, r := range recs {
		views = append(views, recommendationView{
			ProductID: r.Product.ID,
			Title:     r.Product.Title,
			Category:  r.Product.Category,
			Currency:  r.Product.Currency,
			Price:     r.Product.Price,
			Score:     r.Score,
			Reason:    r.Reason,
		})
	}
	return views
}
