package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newExportCmd(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <test-id>",
		Short: "Export daily results",
		Long: `Export the daily results of a test in CSV or JSON format.

Examples:
  variant-goat export 3f1c... --format csv > results.csv
  variant-goat export 3f1c... --format json > results.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}

			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				tv, err := e.GetTestWithVariants(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results, err := e.GetTestResults(cmd.Context(), args[0], 0)
				if err != nil {
					return err
				}

				if format == "csv" {
					return exportCSV(cmd.OutOrStdout(), tv, results)
				}
				return writeJSON(cmd.OutOrStdout(), jsonExport{
					Test:     tv.Test,
					Variants: tv.Variants,
					Results:  results,
				})
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	return cmd
}

type jsonExport struct {
	Test     *store.Test          `json:"test"`
	Variants []*store.Variant     `json:"variants"`
	Results  []*store.DailyResult `json:"results"`
}

func exportCSV(out io.Writer, tv *experiment.TestWithVariants, results []*store.DailyResult) error {
	names := make(map[string]string, len(tv.Variants))
	for _, v := range tv.Variants {
		names[v.ID] = v.Name
	}

	w := csv.NewWriter(out)

	// Write header
	if err := w.Write([]string{
		"date", "variant_id", "variant", "impressions", "clicks", "saves", "conversions",
		"spend", "revenue", "cumulative_impressions", "cumulative_conversions",
	}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, r := range results {
		row := []string{
			r.ResultDate.Format(store.DateLayout),
			r.VariantID,
			names[r.VariantID],
			strconv.FormatInt(r.Impressions, 10),
			strconv.FormatInt(r.Clicks, 10),
			strconv.FormatInt(r.Saves, 10),
			strconv.FormatInt(r.Conversions, 10),
			r.Spend.String(),
			r.Revenue.String(),
			strconv.FormatInt(r.CumulativeImpressions, 10),
			strconv.FormatInt(r.CumulativeConversions, 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
