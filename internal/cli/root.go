package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/config"
	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

// rootOptions holds global flags and the config resolved from them.
type rootOptions struct {
	configPath  string
	dbPath      string
	driver      string
	databaseURL string
	logLevel    string
	logFormat   string

	cfg    config.Config
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "variant-goat",
		Short: "Variant Goat - paired content experiments with significance testing",
		Long: `Variant Goat runs paired content experiments (pin titles, ad creatives,
audiences, schedules) and decides from daily performance counts whether a
variant statistically outperforms its control.

Embedded SQLite by default, Postgres when configured.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", getEnvOrDefault("VG_CONFIG", config.DefaultPath), "config file")
	flags.StringVar(&o.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&o.driver, "driver", "", "database driver: sqlite or postgres (overrides config)")
	flags.StringVar(&o.databaseURL, "database-url", "", "Postgres connection URL (overrides config)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&o.logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(
		newInitCmd(o),
		newServeCmd(o),
		newTokenCmd(o),
		newCreateCmd(o),
		newListCmd(o),
		newShowCmd(o),
		newDeleteCmd(o),
		newRecordCmd(o),
		newResultsCmd(o),
		newSignificanceCmd(o),
		newWinnerCmd(o),
		newExportCmd(o),
		newSweepCmd(o),
	)
	rootCmd.AddCommand(newTransitionCmds(o)...)

	return rootCmd
}

func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// load resolves config file, environment and flags, in that order. An
// explicit --config must exist except for init, which creates it.
func (o *rootOptions) load(cmd *cobra.Command) error {
	required := cmd.Flags().Changed("config") && cmd.Name() != "init"
	cfg, err := config.Load(o.configPath, required)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = o.dbPath
	}
	if flags.Changed("driver") {
		cfg.Database.Driver = o.driver
	}
	if flags.Changed("database-url") {
		cfg.Database.URL = o.databaseURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	o.cfg = cfg
	o.logger = logger
	return nil
}

// withEngine opens the configured store, builds an engine on it, executes
// the function, and handles cleanup.
func (o *rootOptions) withEngine(ctx context.Context, fn func(*experiment.Engine, store.Store) error) error {
	s, err := store.Connect(ctx, o.cfg.Database.Driver, o.cfg.Database.Path, o.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	engine := experiment.New(s,
		experiment.WithLogger(o.logger),
		experiment.WithDefaults(experiment.Defaults{
			ConfidenceThreshold: o.cfg.Experiment.DefaultConfidenceThreshold,
			MinimumSampleSize:   o.cfg.Experiment.DefaultMinimumSampleSize,
		}),
	)
	return fn(engine, s)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
