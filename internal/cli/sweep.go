package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newSweepCmd(o *rootOptions) *cobra.Command {
	var (
		autoDeclare bool
		concurrency int
		interval    time.Duration
		owner       string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate every running test",
		Long: `Re-evaluate every running test and report which are ready to declare or
past their scheduled end.

With --auto-declare a test whose verdict is significant and whose sample
size is met is completed with the significant variant as winner.
With --interval the sweep repeats until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sweep := o.cfg.Sweep
			if cmd.Flags().Changed("auto-declare") {
				sweep.AutoDeclare = autoDeclare
			}
			if cmd.Flags().Changed("concurrency") {
				sweep.Concurrency = concurrency
			}
			opts := experiment.SweepOptions{
				Concurrency: sweep.Concurrency,
				AutoDeclare: sweep.AutoDeclare,
				OwnerID:     owner,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return o.withEngine(ctx, func(e *experiment.Engine, _ store.Store) error {
				for {
					report, err := e.Sweep(ctx, opts)
					if err != nil {
						if interval > 0 && ctx.Err() != nil {
							return nil
						}
						return err
					}
					if asJSON {
						if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
							return err
						}
					} else {
						printSweep(cmd.OutOrStdout(), report)
					}

					if interval <= 0 {
						return nil
					}
					if !sleepCtx(ctx, interval) {
						slog.Info("sweep loop stopped")
						return nil
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&autoDeclare, "auto-declare", false, "complete tests that are ready to declare")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "tests evaluated at once (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat the sweep at this interval until interrupted")
	cmd.Flags().StringVar(&owner, "owner", "", "only sweep tests of this owner")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func printSweep(out io.Writer, report *experiment.SweepReport) {
	st := newStyles(out)
	fmt.Fprintf(out, "Swept %d running tests: %d evaluated, %d declared, %d overdue, %d failed\n",
		len(report.Outcomes), report.Evaluated, report.Declared, report.Overdue, report.Failed)
	if len(report.Outcomes) == 0 {
		return
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERDICT\tCONFIDENCE\tNOTE")
	for _, oc := range report.Outcomes {
		verdict, confidence, note := "-", "-", ""
		if r := oc.Result; r != nil {
			confidence = fmt.Sprintf("%.1f%%", r.Confidence*100)
			switch {
			case r.InsufficientData:
				verdict = "insufficient data"
			case r.ReadyToDeclare:
				verdict = "ready"
			case r.IsSignificant:
				verdict = "significant"
			default:
				verdict = "not significant"
			}
		}
		switch {
		case oc.Error != "":
			note = st.bad.Render(oc.Error)
		case oc.Declared:
			note = st.good.Render("declared " + oc.Result.WinnerVariantID)
		case oc.Overdue:
			note = st.bad.Render("overdue")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", oc.TestID, truncate(oc.Name, 32), verdict, confidence, note)
	}
	w.Flush()
}
