package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/errors"
)

func newSimilarCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "similar <product-id>",
		Short: "Find products similar to a given product",
		Long: `Find products similar to the given product by embedding similarity.
Products without an embedding fall back to others in the same category.

Examples:
  smartcart similar 42
  smartcart similar 42 --limit 5 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || productID <= 0 {
				return errors.InvalidInput("product id must be a positive integer")
			}

			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			recs, err := app.recommender.Similar(ctx, productID, limit)
			if err != nil {
				return err
			}
			return formatRecommendations(cmd, "Similar products", recommendationViews(recs), format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of similar products")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
