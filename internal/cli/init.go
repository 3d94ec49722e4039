package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/config"
)

// initAnswers are the choices init asks for.
type initAnswers struct {
	Driver      string
	Path        string
	DatabaseURL string
	Port        int
	AutoDeclare bool
}

func newInitCmd(o *rootOptions) *cobra.Command {
	var (
		useDefaults bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file",
		Long: `Write a variant-goat config file, asking for the database and port.

With --defaults nothing is asked and the current settings (flags,
environment, defaults) are written as they are.

Example:
  variant-goat init
  variant-goat init --defaults --config ./variant-goat.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(o.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", o.configPath)
			}

			answers := initAnswers{
				Driver:      o.cfg.Database.Driver,
				Path:        o.cfg.Database.Path,
				DatabaseURL: o.cfg.Database.URL,
				Port:        o.cfg.Server.Port,
				AutoDeclare: o.cfg.Sweep.AutoDeclare,
			}
			if !useDefaults {
				var err error
				if answers, err = promptAnswers(answers); err != nil {
					return err
				}
			}

			cfg, err := buildConfig(o.cfg, answers)
			if err != nil {
				return err
			}
			if err := config.Write(o.configPath, cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", o.configPath)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Commands:")
			fmt.Fprintln(out, "  create <name>        Create a draft test")
			fmt.Fprintln(out, "  start <test-id>      Start collecting results")
			fmt.Fprintln(out, "  record <test-id>     Record a day of results")
			fmt.Fprintln(out, "  significance <id>    Show the current verdict")
			fmt.Fprintln(out, "  winner <test-id>     Declare a winner")
			fmt.Fprintln(out, "  serve                Start the HTTP API")
			return nil
		},
	}

	cmd.Flags().BoolVar(&useDefaults, "defaults", false, "write the current settings without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// buildConfig applies init answers on top of base and validates the result.
func buildConfig(base config.Config, a initAnswers) (config.Config, error) {
	cfg := base
	cfg.Database.Driver = a.Driver
	cfg.Database.Path = ""
	cfg.Database.URL = ""
	switch a.Driver {
	case "sqlite":
		cfg.Database.Path = a.Path
	case "postgres":
		cfg.Database.URL = a.DatabaseURL
	}
	cfg.Server.Port = a.Port
	cfg.Sweep.AutoDeclare = a.AutoDeclare

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func promptAnswers(a initAnswers) (initAnswers, error) {
	drivers := []string{
		"SQLite (embedded file)",
		"Postgres",
	}
	sel := promptui.Select{
		Label: "Database",
		Items: drivers,
		Size:  2,
	}
	idx, _, err := sel.Run()
	if err != nil {
		return a, promptError(err)
	}

	if idx == 0 {
		a.Driver = "sqlite"
		if a.Path, err = promptString("Database file", a.Path, nil); err != nil {
			return a, err
		}
	} else {
		a.Driver = "postgres"
		required := func(s string) error {
			if s == "" {
				return fmt.Errorf("a connection URL is required")
			}
			return nil
		}
		if a.DatabaseURL, err = promptString("Postgres URL", a.DatabaseURL, required); err != nil {
			return a, err
		}
	}

	portStr, err := promptString("API port", strconv.Itoa(a.Port), func(s string) error {
		p, err := strconv.Atoi(s)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("port must be between 1 and 65535")
		}
		return nil
	})
	if err != nil {
		return a, err
	}
	a.Port, _ = strconv.Atoi(portStr)

	confirm := promptui.Prompt{
		Label:     "Auto-declare winners when a sweep finds one",
		IsConfirm: true,
	}
	_, err = confirm.Run()
	switch {
	case err == nil:
		a.AutoDeclare = true
	case err == promptui.ErrAbort:
		a.AutoDeclare = false
	default:
		return a, promptError(err)
	}
	return a, nil
}

func promptString(label, def string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
	}
	v, err := prompt.Run()
	if err != nil {
		return "", promptError(err)
	}
	return v, nil
}

func promptError(err error) error {
	if err == promptui.ErrInterrupt {
		os.Exit(0)
	}
	return err
}
