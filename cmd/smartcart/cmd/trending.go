package cmd

import (
	"github.com/spf13/cobra"
)

func newTrendingCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Show trending products",
		Long: `Show trending products. With REDIS_ADDR configured, results come from
the shared cache (60s TTL); otherwise they are computed per invocation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			recs, err := app.trending.Trending(ctx, limit)
			if err != nil {
				return err
			}
			return formatRecommendations(cmd, "Trending now", recommendationViews(recs), format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of products")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
