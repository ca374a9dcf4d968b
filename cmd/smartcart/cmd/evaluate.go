package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/evaluate"
	"github.com/smartcart/discovery/internal/output"
	"github.com/smartcart/discovery/internal/search"
)

func newEvaluateCmd() *cobra.Command {
	var k int
	var save bool

	cmd := &cobra.Command{
		Use:   "evaluate <queries.txt>",
		Short: "Evaluate search quality over a query set",
		Long: `Run every query in the given file (one per line) through the engine,
auto-judge relevance against the catalog, and report nDCG, Recall, Precision,
and MRR at the cutoff. With --save, per-query and aggregate metrics are
persisted for trend tracking.

Examples:
  smartcart evaluate golden_queries.txt
  smartcart evaluate golden_queries.txt --k 5 --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := readQueries(args[0])
			if err != nil {
				return err
			}
			return runEvaluate(cmd, queries, k, save)
		},
	}

	cmd.Flags().IntVar(&k, "k", 10, "Metric cutoff")
	cmd.Flags().BoolVar(&save, "save", false, "Persist metrics to the repository")

	return cmd
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot read query file: %v", err))
	}
	defer func() { _ = f.Close() }()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot read query file: %v", err))
	}
	if len(queries) == 0 {
		return nil, errors.InvalidInput("query file contains no queries")
	}
	return queries, nil
}

func runEvaluate(cmd *cobra.Command, queries []string, k int, save bool) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	// Judgments cover the whole catalog slice the engine searches over, so
	// a relevant product the engine missed still hurts recall.
	pool, err := app.repo.RecentProducts(ctx, search.CandidateLimit)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📊", "Evaluating %d queries at k=%d over %d products", len(queries), k, len(pool))
	out.Newline()

	var sum evaluate.Report
	for _, query := range queries {
		resp, err := app.orchestrator.Search(ctx, search.Request{Query: query, Limit: k})
		if err != nil {
			return fmt.Errorf("query %q failed: %w", query, err)
		}

		ranked := make([]evaluate.RankedItem, 0, len(resp.Results))
		for _, r := range resp.Results {
			ranked = append(ranked, evaluate.RankedItem{
				ProductID:  r.Product.ID,
				Position:   r.Rank,
				FinalScore: r.FinalScore,
			})
		}

		report := evaluate.Evaluate(ranked, evaluate.AutoJudge(query, pool), k)
		sum.NDCG += report.NDCG
		sum.Recall += report.Recall
		sum.Precision += report.Precision
		sum.MRR += report.MRR
		sum.AP += report.AP

		out.Statusf("", "%-40q nDCG %.3f  R %.3f  P %.3f  MRR %.3f",
			query, report.NDCG, report.Recall, report.Precision, report.MRR)

		if save {
			if err := saveQueryMetrics(cmd, app, resp, query, report); err != nil {
				return err
			}
		}
	}

	n := float64(len(queries))
	out.Newline()
	out.Successf("Mean over %d queries: nDCG %.3f  Recall %.3f  Precision %.3f  MRR %.3f  MAP %.3f",
		len(queries), sum.NDCG/n, sum.Recall/n, sum.Precision/n, sum.MRR/n, sum.AP/n)

	if save {
		return saveAggregateMetrics(cmd.Context(), app, len(queries), sum)
	}
	return nil
}

func saveQueryMetrics(cmd *cobra.Command, app *app, resp *search.Response, query string, report evaluate.Report) error {
	ctx := cmd.Context()
	var logID *int64
	if resp.SearchLogID != 0 {
		id := resp.SearchLogID
		logID = &id
	}

	for kind, value := range map[catalog.MetricKind]float64{
		catalog.MetricNDCG10:      report.NDCG,
		catalog.MetricRecall10:    report.Recall,
		catalog.MetricPrecision10: report.Precision,
		catalog.MetricMRR:         report.MRR,
	} {
		m := &catalog.EvaluationMetric{
			SearchLogID: logID,
			Kind:        kind,
			Value:       value,
			QueryCount:  1,
			Note:        query,
		}
		if err := app.repo.SaveMetric(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func saveAggregateMetrics(ctx context.Context, app *app, n int, sum evaluate.Report) error {
	for kind, value := range map[catalog.MetricKind]float64{
		catalog.MetricNDCG10:      sum.NDCG / float64(n),
		catalog.MetricRecall10:    sum.Recall / float64(n),
		catalog.MetricPrecision10: sum.Precision / float64(n),
		catalog.MetricMRR:         sum.MRR / float64(n),
		catalog.MetricCustom:      sum.AP / float64(n),
	} {
		m := &catalog.EvaluationMetric{
			Kind:       kind,
			Value:      value,
			QueryCount: n,
			Note:       "aggregate",
		}
		if kind == catalog.MetricCustom {
			m.Note = "aggregate map"
		}
		if err := app.repo.SaveMetric(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
