package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newWinnerCmd(o *rootOptions) *cobra.Command {
	var (
		variantID  string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "winner <test-id>",
		Short: "Declare a winner for a test",
		Long: `Declare a winning variant and complete the test. The current results and
verdict are frozen onto the test.

Without --confidence the confidence of the current significance verdict
against that variant is recorded.

Example:
  variant-goat winner 3f1c... --variant 9a2e...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				ctx := cmd.Context()
				if !cmd.Flags().Changed("confidence") {
					c, err := verdictConfidence(cmd, e, args[0], variantID)
					if err != nil {
						return err
					}
					confidence = c
				}

				if err := e.DeclareWinner(ctx, args[0], variantID, confidence); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Declared winner for test %s: variant %s (%.1f%% confidence)\n", args[0], variantID, confidence*100)
				fmt.Fprintln(cmd.OutOrStdout(), "Test has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantID, "variant", "v", "", "winning variant id (required)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence to record, between 0 and 1")
	cmd.MarkFlagRequired("variant")

	return cmd
}

// verdictConfidence compares the control with the declared variant, or
// with the first test variant when the control itself is declared. Unknown
// variants are left for DeclareWinner to reject.
func verdictConfidence(cmd *cobra.Command, e *experiment.Engine, testID, variantID string) (float64, error) {
	tv, err := e.GetTestWithVariants(cmd.Context(), testID)
	if err != nil {
		return 0, err
	}
	against := ""
	for _, id := range tv.Test.TestVariantIDs {
		if id == variantID {
			against = variantID
		}
	}
	if against == "" && variantID != tv.Test.ControlVariantID {
		return 0, nil
	}
	res, err := e.CalculateSignificanceFor(cmd.Context(), testID, against)
	if err != nil {
		return 0, err
	}
	return res.Confidence, nil
}
