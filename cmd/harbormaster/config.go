// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/config"
	"github.com/invowk/harbormaster/internal/issue"
)

// newConfigCommand creates the `harbormaster config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage harbormaster configuration",
		Long: `Manage harbormaster configuration.

Configuration is stored in:
  - Linux: ~/.config/harbormaster/config.cue
  - macOS: ~/Library/Application Support/harbormaster/config.cue
  - Windows: %APPDATA%\harbormaster\config.cue

Every key can be overridden with an environment variable, for example
HARBORMASTER_CONTAINER_ENGINE=podman or HARBORMASTER_VERIFY_TIMEOUT=10s.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			path, found, err := config.Locate(config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err != nil {
				return exitWith(ExitCodeError, err)
			}
			source := SubtitleStyle.Render("(using defaults)")
			if found {
				source = path
			}
			fmt.Fprintf(app.stderr, "%s: %s\n\n", CmdStyle.Render("Config file"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		}),
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			path, found, err := config.Locate(config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err != nil {
				return exitWith(ExitCodeError, err)
			}
			fmt.Fprintln(app.stdout, path)
			if !found {
				fmt.Fprintln(app.stderr, SubtitleStyle.Render("(does not exist; run 'harbormaster config init')"))
			}
			return nil
		}),
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(config.LoadOptions{}, config.DefaultConfig(), force)
			if errors.Is(err, config.ErrConfigExists) {
				return exitWith(ExitCodeError, issue.NewErrorContext().
					WithOperation("create default configuration").
					WithResource(path).
					WithSuggestion("Pass --force to overwrite it").
					Wrap(err).
					BuildError())
			}
			if err != nil {
				return exitWith(ExitCodeError, err)
			}
			fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		}),
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}
