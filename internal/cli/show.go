package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newShowCmd(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <test-id>",
		Short: "Show a test and its variants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				tv, err := e.GetTestWithVariants(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), tv)
				}
				printTest(cmd, tv)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printTest(cmd *cobra.Command, tv *experiment.TestWithVariants) {
	out := cmd.OutOrStdout()
	st := newStyles(out)
	t := tv.Test

	fmt.Fprintln(out, st.title.Render("TEST: "+t.Name))
	fmt.Fprintf(out, "ID: %s\n", t.ID)
	fmt.Fprintf(out, "STATUS: %s\n", t.Status)
	fmt.Fprintf(out, "TYPE: %s  METRIC: %s\n", t.TestType, t.PrimaryMetric)
	fmt.Fprintf(out, "CONFIDENCE: %.1f%%  MIN SAMPLE: %s\n", t.ConfidenceThreshold*100, formatNumber(t.MinimumSampleSize))
	if t.Hypothesis != "" {
		fmt.Fprintf(out, "HYPOTHESIS: %s\n", t.Hypothesis)
	}
	printTime(cmd, "STARTED", t.StartedAt)
	printTime(cmd, "ENDED", t.EndedAt)
	if t.ScheduledEndAt != nil {
		line := "SCHEDULED END: " + t.ScheduledEndAt.Format(time.RFC3339)
		if t.Status == store.StatusRunning && time.Now().After(*t.ScheduledEndAt) {
			line += " " + st.bad.Render("(overdue)")
		}
		fmt.Fprintln(out, line)
	}
	if t.WinnerVariantID != nil {
		confidence := 0.0
		if t.WinnerConfidence != nil {
			confidence = *t.WinnerConfidence
		}
		fmt.Fprintln(out, st.good.Render(fmt.Sprintf("WINNER: %s (%.1f%% confidence)", *t.WinnerVariantID, confidence*100)))
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tID\tNAME\tCONTENT\tTRAFFIC")
	for _, v := range tv.Variants {
		role := "test"
		if v.IsControl {
			role = "control"
		}
		content := v.ContentID
		if v.ContentType != "" {
			content = v.ContentType + ":" + v.ContentID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\n", role, v.ID, truncate(v.Name, 32), content, v.TrafficPercentage)
	}
	w.Flush()
}

func printTime(cmd *cobra.Command, label string, t *time.Time) {
	if t != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", label, t.Format(time.RFC3339))
	}
}
