package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newResultsCmd(o *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results <test-id>",
		Short: "Show the daily results of a test",
		Long:  `Show the daily results of a test in date order.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				tv, err := e.GetTestWithVariants(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results, err := e.GetTestResults(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "TEST: %s\n", tv.Test.Name)
				fmt.Fprintf(out, "STATUS: %s\n", tv.Test.Status)
				fmt.Fprintln(out)

				if len(results) == 0 {
					fmt.Fprintln(out, "No results recorded yet.")
					return nil
				}

				names := make(map[string]string, len(tv.Variants))
				for _, v := range tv.Variants {
					names[v.ID] = v.Name
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tVARIANT\tIMPRESSIONS\tCLICKS\tSAVES\tCONVERSIONS\tSPEND\tREVENUE\tCTR\tCVR")
				for _, r := range results {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.ResultDate.Format(store.DateLayout),
						truncate(names[r.VariantID], 20),
						formatNumber(r.Impressions),
						formatNumber(r.Clicks),
						formatNumber(r.Saves),
						formatNumber(r.Conversions),
						r.Spend.StringFixed(2),
						r.Revenue.StringFixed(2),
						formatRate(r.ClickRate),
						formatRate(r.ConversionRate),
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many rows (0 for all)")
	return cmd
}
