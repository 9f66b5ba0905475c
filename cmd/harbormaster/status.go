// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/provision"
)

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status NAME...",
		Short: "Show the containers of the named services",
		Long: `Show every container, running or stopped, whose name matches a service.

Exits 0 when each named service has a running container and with the
FailedVerification code (5) otherwise.`,
		Args: cobra.MinimumNArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				return err
			}
			engine, err := app.engine(ctx, cfg)
			if err != nil {
				return err
			}
			p := app.provisioner(engine, cfg, app.logger(cfg))

			var notRunning []string
			for _, name := range args {
				containers, err := p.Inspect(ctx, container.ContainerName(name))
				if err != nil {
					return exitWith(ExitCodeError, fmt.Errorf("inspect %s: %w", name, err))
				}
				if !renderStatus(app, name, containers) {
					notRunning = append(notRunning, name)
				}
			}

			if len(notRunning) > 0 {
				return exitWith(provision.StatusFailedVerification.ExitCode(),
					fmt.Errorf("not running: %v", notRunning))
			}
			return nil
		}),
	}
}

// renderStatus prints the containers of one service and reports whether any is running.
func renderStatus(app *App, name string, containers []container.Summary) bool {
	if len(containers) == 0 {
		fmt.Fprintf(app.stdout, "%s %s %s\n", ErrorStyle.Render("✗"), CmdStyle.Render(name), SubtitleStyle.Render("no container"))
		return false
	}

	running := false
	for _, c := range containers {
		mark, state := ErrorStyle.Render("✗"), WarningStyle.Render(string(c.State))
		if c.State == container.StateRunning {
			running = true
			mark, state = SuccessStyle.Render("✓"), SuccessStyle.Render(string(c.State))
		}
		fmt.Fprintf(app.stdout, "%s %s %s %s\n", mark, CmdStyle.Render(name), state,
			SubtitleStyle.Render(fmt.Sprintf("container %s image %s", c.ID.Short(), c.Image)))
	}
	return running
}
