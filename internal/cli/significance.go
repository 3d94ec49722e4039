package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newSignificanceCmd(o *rootOptions) *cobra.Command {
	var (
		variantID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:     "significance <test-id>",
		Aliases: []string{"sig"},
		Short:   "Compare a test variant against the control",
		Long: `Compare a test variant against the control on the test's primary metric.

Rate metrics use a two-proportion z-test, cost per action and return on
spend a Welch t-test over per-day ratios. Without --variant the first test
variant is compared.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				res, err := e.CalculateSignificanceFor(cmd.Context(), args[0], variantID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				printVerdict(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&variantID, "variant", "", "test variant to compare (default: first)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printVerdict(out io.Writer, res *experiment.SignificanceResult) {
	st := newStyles(out)

	fmt.Fprintln(out, st.title.Render(fmt.Sprintf("%s (%s)", res.PrimaryMetric, res.Method)))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "VARIANT           DAYS  TRIALS       RATE       CI")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, arm := range []experiment.ArmStats{res.Control, res.Test} {
		ci := fmt.Sprintf("[%s, %s]", formatPercent(arm.CILower), formatPercent(arm.CIUpper))
		rate := formatPercent(arm.Rate)
		if res.Method == experiment.MethodWelchT {
			ci = "-"
			rate = fmt.Sprintf("%.4f", arm.Rate)
		}
		if arm.Trials == 0 {
			ci = "N/A"
		}
		fmt.Fprintf(out, "%-16s  %-4d  %-11s  %-9s  %s\n",
			truncate(arm.Name, 16), arm.Days, formatNumber(arm.Trials), rate, ci)
	}
	fmt.Fprintln(out)

	if res.InsufficientData {
		fmt.Fprintln(out, st.muted.Render("Not enough data: "+res.Reason))
		return
	}

	fmt.Fprintf(out, "Lift: %+.2f%%  p-value: %.4f  confidence: %.1f%% (alpha %.2f)\n",
		res.Lift, res.PValue, res.Confidence*100, res.Alpha)
	if !res.SampleSizeMet {
		fmt.Fprintln(out, st.muted.Render("Minimum sample size not reached yet."))
	}

	switch {
	case res.IsSignificant && res.Winner != experiment.OutcomeNone:
		name := res.Test.Name
		if res.Winner == experiment.OutcomeControl {
			name = res.Control.Name
		}
		line := fmt.Sprintf("Significant: %q wins (%s)", name, res.WinnerVariantID)
		fmt.Fprintln(out, st.good.Render(line))
		if res.ReadyToDeclare {
			fmt.Fprintf(out, "Declare it with: variant-goat winner %s --variant %s\n", res.TestID, res.WinnerVariantID)
		}
	default:
		fmt.Fprintln(out, st.bad.Render("Not significant yet."))
	}
}
