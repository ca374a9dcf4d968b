package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		embedOnly     bool
		regenerateAll bool
		regenerateID  int64
	)

	cmd := &cobra.Command{
		Use:   "index [catalog.json]",
		Short: "Upload a product catalog and embed it",
		Long: `Upload a JSON product catalog, then embed every product that does not
yet have a stored vector. The upload runs as a tracked job; re-running after
an interruption embeds only what is still missing.

The catalog file is a JSON array of products:
  [{"title": "...", "description": "...", "category": "...", "price": 19.99, ...}]

Examples:
  smartcart index catalog.json
  smartcart index --embed-only          # embed products from earlier uploads
  smartcart index --regenerate          # re-embed the whole catalog
  smartcart index --regenerate-id 42    # re-embed one product`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case regenerateID > 0:
				return runRegenerateOne(cmd, regenerateID)
			case regenerateAll:
				return runRegenerateAll(cmd)
			case embedOnly:
				return runIndex(cmd, "(embed-only)", nil)
			}
			if len(args) == 0 {
				return errors.InvalidInput("catalog file is required unless --embed-only or --regenerate is set")
			}

			products, err := readCatalog(args[0])
			if err != nil {
				return err
			}
			return runIndex(cmd, filepath.Base(args[0]), products)
		},
	}

	cmd.Flags().BoolVar(&embedOnly, "embed-only", false, "Skip upload; embed products missing vectors")
	cmd.Flags().BoolVar(&regenerateAll, "regenerate", false, "Re-embed every product from scratch")
	cmd.Flags().Int64Var(&regenerateID, "regenerate-id", 0, "Re-embed a single product by id")

	return cmd
}

func readCatalog(path string) ([]catalog.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot read catalog file: %v", err))
	}

	var products []catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("catalog file is not a JSON product array: %v", err))
	}
	if len(products) == 0 {
		return nil, errors.InvalidInput("catalog file contains no products")
	}
	return products, nil
}

func runIndex(cmd *cobra.Command, filename string, products []catalog.Product) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout())
	if len(products) > 0 {
		out.Statusf("📦", "Uploading %d products from %s", len(products), filename)
	} else {
		out.Status("📦", "Embedding products without stored vectors")
	}

	job, err := app.runner.Run(ctx, filename, products)
	if err != nil {
		if job != nil {
			out.Errorf("Job %s failed: %s", job.ID, job.ErrorMsg)
		}
		return err
	}

	out.Successf("Job %s completed", job.ID)
	out.Field("processed", fmt.Sprintf("%d/%d", job.Processed, job.Total))
	out.Field("embedded", fmt.Sprintf("%d", job.Embedded))
	out.Field("index size", fmt.Sprintf("%d", app.index.Len()))
	return nil
}

func runRegenerateOne(cmd *cobra.Command, productID int64) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📦", "Re-embedding product %d", productID)
	if err := app.runner.Regenerate(ctx, productID); err != nil {
		return err
	}
	out.Successf("Product %d re-embedded", productID)
	return nil
}

func runRegenerateAll(cmd *cobra.Command) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout())
	out.Status("📦", "Re-embedding the whole catalog")

	job, err := app.runner.RegenerateAll(ctx)
	if err != nil {
		if job != nil {
			out.Errorf("Job %s failed: %s", job.ID, job.ErrorMsg)
		}
		return err
	}

	out.Successf("Job %s completed", job.ID)
	out.Field("embedded", fmt.Sprintf("%d", job.Embedded))
	out.Field("index size", fmt.Sprintf("%d", app.index.Len()))
	return nil
}
