package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/server"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the variant-goat HTTP API server.

The server provides:
  - JSON API under /api/v1 (bearer token)
  - Prometheus metrics at /metrics
  - Health check at /health

Running tests are swept in the background every sweep.interval.

Example:
  variant-goat serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				o.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return o.withEngine(ctx, func(e *experiment.Engine, s store.Store) error {
				tokenFile := o.cfg.TokenPath()
				srv := server.New(e, s, server.Options{
					Port:      o.cfg.Server.Port,
					Token:     readToken(tokenFile),
					TokenFile: tokenFile,
					RateLimit: server.RateLimit{
						PerSecond: o.cfg.Server.RateLimit.PerSecond,
						Burst:     o.cfg.Server.RateLimit.Burst,
					},
					Logger: o.logger,
				})

				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Server running at http://localhost:%d\n", o.cfg.Server.Port)
				fmt.Fprintf(out, "API token: %s\n", srv.Token())
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Press Ctrl+C to stop")

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return srv.Start(ctx) })
				if o.cfg.Sweep.Interval > 0 {
					g.Go(func() error {
						o.sweepLoop(ctx, e)
						return nil
					})
				}
				return g.Wait()
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

// sweepLoop sweeps on the configured interval until ctx is done.
func (o *rootOptions) sweepLoop(ctx context.Context, e *experiment.Engine) {
	opts := experiment.SweepOptions{
		Concurrency: o.cfg.Sweep.Concurrency,
		AutoDeclare: o.cfg.Sweep.AutoDeclare,
	}
	ticker := time.NewTicker(o.cfg.Sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("background sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// readToken returns the token of a previous run so clients keep working
// across restarts.
func readToken(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
