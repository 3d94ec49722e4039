package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

const serverURLSetting = "server_url"

func newTokenCmd(o *rootOptions) *cobra.Command {
	var setURL string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the API URL and access token",
		Long: `Show the API base URL with your access token.

Use this when you've scrolled past the startup message or need to
configure a client. --set-url records the public URL of the server.

Example:
  variant-goat token
  variant-goat token --set-url https://experiments.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(cmd.Context(), func(_ *experiment.Engine, s store.Store) error {
				ctx := cmd.Context()
				if setURL != "" {
					if err := s.SetSetting(ctx, serverURLSetting, strings.TrimRight(setURL, "/")); err != nil {
						return fmt.Errorf("failed to save server url: %w", err)
					}
				}

				data, err := os.ReadFile(o.cfg.TokenPath())
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("no server running. Start with: variant-goat serve")
					}
					return fmt.Errorf("failed to read token file: %w", err)
				}
				token := strings.TrimSpace(string(data))
				if token == "" {
					return fmt.Errorf("token file is empty. Restart the server with: variant-goat serve")
				}

				serverURL := fmt.Sprintf("http://localhost:%d", o.cfg.Server.Port)
				if url, err := s.GetSetting(ctx, serverURLSetting); err == nil && url != "" {
					serverURL = url
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "API: %s/api/v1\n", serverURL)
				fmt.Fprintf(out, "Authorization: Bearer %s\n", token)
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Tip: run 'variant-goat token' anytime.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&setURL, "set-url", "", "record the public server URL")
	return cmd
}
