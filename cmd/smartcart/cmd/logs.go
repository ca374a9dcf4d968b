package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/output"
)

func newLogsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List recent search logs",
		Long: `List recently executed searches. Use 'logs show <id>' to replay one
search's per-result score decomposition.

Examples:
  smartcart logs --limit 20
  smartcart logs show 138`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			logs, err := app.repo.ListSearchLogs(ctx, limit)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if len(logs) == 0 {
				out.Status("", "No searches logged yet")
				return nil
			}

			out.Statusf("🗒", "Last %d searches:", len(logs))
			for _, l := range logs {
				out.Statusf("", "%6d  %s  %-30q  %d results  %dms  session %s",
					l.ID, l.CreatedAt.Format("2006-01-02 15:04:05"), l.Query,
					l.ResultCount, l.ResponseTimeMs, shortSession(l.SessionID))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of logs")
	cmd.AddCommand(newLogsShowCmd())

	return cmd
}

func newLogsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <log-id>",
		Short: "Replay one search's score decomposition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || logID <= 0 {
				return errors.InvalidInput("log id must be a positive integer")
			}

			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			log, err := app.repo.GetSearchLog(ctx, logID)
			if err != nil {
				return err
			}
			explanations, err := app.repo.ExplanationsForLog(ctx, logID)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("🔍", "Search %d: %q (%d results, %dms)",
				log.ID, log.Query, log.ResultCount, log.ResponseTimeMs)
			out.Field("session", log.SessionID)
			out.Field("executed", log.CreatedAt.Format("2006-01-02 15:04:05"))
			out.Newline()

			for _, e := range explanations {
				clicked := ""
				if e.WasClicked {
					clicked = "  [clicked]"
				}
				out.Statusf("", "%d. product %d (score: %.6f)%s", e.Position, e.ProductID, e.FinalScore, clicked)
				out.Status("", fmt.Sprintf("   semantic %.6f | rating %.6f | price %.6f | stock %.6f | recency %.6f",
					e.SemanticScore, e.RatingScore, e.PriceScore, e.StockScore, e.RecencyScore))
				if len(e.MatchedTerms) > 0 {
					out.Status("", "   matched: "+strings.Join(e.MatchedTerms, ", "))
				}
				out.Status("", "   "+e.Explanation)
			}
			return nil
		},
	}
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
