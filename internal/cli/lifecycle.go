package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

type transitionCmd struct {
	use   string
	short string
	done  string
	apply func(*experiment.Engine) func(context.Context, string) error
}

var transitions = []transitionCmd{
	{"start", "Start a draft test", "started", func(e *experiment.Engine) func(context.Context, string) error { return e.StartTest }},
	{"pause", "Pause a running test", "paused", func(e *experiment.Engine) func(context.Context, string) error { return e.PauseTest }},
	{"resume", "Resume a paused test", "resumed", func(e *experiment.Engine) func(context.Context, string) error { return e.ResumeTest }},
	{"cancel", "Cancel a test without a winner", "cancelled", func(e *experiment.Engine) func(context.Context, string) error { return e.CancelTest }},
}

func newTransitionCmds(o *rootOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(transitions))
	for _, tr := range transitions {
		cmds = append(cmds, &cobra.Command{
			Use:   tr.use + " <test-id>",
			Short: tr.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
					if err := tr.apply(e)(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Test %s %s.\n", args[0], tr.done)
					return nil
				})
			},
		})
	}
	return cmds
}

func newDeleteCmd(o *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <test-id>",
		Short: "Delete a draft test",
		Long: `Delete a draft test with its variants. Tests that have been started
are kept; cancel them instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Delete test %s", args[0]),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					if err == promptui.ErrInterrupt {
						os.Exit(0)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				if err := e.DeleteTest(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted test %s.\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
