package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newRecordCmd(o *rootOptions) *cobra.Command {
	var (
		variantID string
		date      string
		spend     string
		revenue   string
		m         experiment.DayMetrics
	)

	cmd := &cobra.Command{
		Use:   "record <test-id>",
		Short: "Record one day of results for a variant",
		Long: `Record one day of performance counts for a variant. Recording the same
variant and date again replaces that day.

Example:
  variant-goat record 3f1c... --variant 9a2e... --date 2026-03-10 \
    --impressions 1200 --clicks 48 --saves 12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if date != "" {
				parsed, err := time.Parse(store.DateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
				day = parsed
			}
			var err error
			if m.Spend, err = parseMoney("spend", spend); err != nil {
				return err
			}
			if m.Revenue, err = parseMoney("revenue", revenue); err != nil {
				return err
			}

			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				r, err := e.RecordResult(cmd.Context(), args[0], variantID, m, day)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for variant %s: %s impressions, CTR %s (cumulative %s impressions, %s conversions)\n",
					r.ResultDate.Format(store.DateLayout),
					r.VariantID,
					formatNumber(r.Impressions),
					formatRate(r.ClickRate),
					formatNumber(r.CumulativeImpressions),
					formatNumber(r.CumulativeConversions),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&variantID, "variant", "", "variant id (required)")
	cmd.Flags().StringVar(&date, "date", "", "result date as YYYY-MM-DD (default today, UTC)")
	cmd.Flags().Int64Var(&m.Impressions, "impressions", 0, "impressions")
	cmd.Flags().Int64Var(&m.Clicks, "clicks", 0, "clicks")
	cmd.Flags().Int64Var(&m.Saves, "saves", 0, "saves")
	cmd.Flags().Int64Var(&m.Conversions, "conversions", 0, "conversions")
	cmd.Flags().StringVar(&spend, "spend", "0", "spend in account currency")
	cmd.Flags().StringVar(&revenue, "revenue", "0", "attributed revenue in account currency")
	cmd.MarkFlagRequired("variant")

	return cmd
}

func parseMoney(flag, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q", flag, value)
	}
	return d, nil
}
