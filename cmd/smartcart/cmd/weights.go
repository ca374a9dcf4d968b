package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/config"
	"github.com/smartcart/discovery/internal/output"
)

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show or update the active ranking weights",
		Long: `Show the active ranking weights and the scoring formula, or activate a
new weight set. Weights apply to live searches within 5 seconds.

Examples:
  smartcart weights
  smartcart weights set 0.6,0.2,0.1,0.05,0.05 --name experiment-a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWeightsShow(cmd)
		},
	}

	cmd.AddCommand(newWeightsSetCmd())
	return cmd
}

func runWeightsShow(cmd *cobra.Command) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	w, err := app.weights.Active(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("⚖️", "Active weights: %s", w.Name)
	out.Field("semantic (α)", fmt.Sprintf("%.2f", w.Alpha))
	out.Field("rating (β)", fmt.Sprintf("%.2f", w.Beta))
	out.Field("price (γ)", fmt.Sprintf("%.2f", w.Gamma))
	out.Field("stock (δ)", fmt.Sprintf("%.2f", w.Delta))
	out.Field("recency (ε)", fmt.Sprintf("%.2f", w.Epsilon))
	out.Field("sum", fmt.Sprintf("%.2f", w.Sum()))
	out.Newline()
	out.Field("formula", catalog.Formula)
	return nil
}

func newWeightsSetCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "set <semantic,rating,price,stock,recency>",
		Short: "Activate a new weight set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := config.ParseWeights(args[0])
			if err != nil {
				return err
			}
			w.Name = name
			w.Active = true

			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.weights.Update(ctx, &w); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Activated weights %q (sum %.2f)", w.Name, w.Sum())
			if sum := w.Sum(); sum < 0.999 || sum > 1.001 {
				out.Warningf("Weights sum to %.3f, not 1.0; scores will shift scale", sum)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "custom", "Name for the weight set")
	return cmd
}
