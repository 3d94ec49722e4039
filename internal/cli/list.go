package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newListCmd(o *rootOptions) *cobra.Command {
	var status, owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tests",
		Long:  `List tests, newest first, optionally filtered by status and owner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				tests, err := e.GetTests(cmd.Context(), store.TestFilter{Status: store.TestStatus(status), OwnerID: owner})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(tests) == 0 {
					fmt.Fprintln(out, "No tests yet.")
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Create one with: variant-goat create <name> --type headline --metric click_rate --control A --variant B")
					return nil
				}

				// Print table
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tMETRIC\tSTATUS\tVARIANTS\tCREATED")
				for _, t := range tests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						t.ID,
						truncate(t.Name, 32),
						t.TestType,
						t.PrimaryMetric,
						strings.ToUpper(string(t.Status)),
						len(t.TestVariantIDs)+1,
						t.CreatedAt.Format(store.DateLayout),
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only tests in this status")
	cmd.Flags().StringVar(&owner, "owner", "", "only tests of this owner")
	return cmd
}
