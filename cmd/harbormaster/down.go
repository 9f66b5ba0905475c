// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/container"
)

func newDownCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "down NAME...",
		Short: "Stop and remove the containers of the named services",
		Long: `Stop and remove every container named after a service. Services without a
container are not an error. Images and host directories are left in place.`,
		Args: cobra.MinimumNArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				return err
			}

			names := make([]container.ContainerName, len(args))
			for i, arg := range args {
				names[i] = container.ContainerName(arg)
				if err := names[i].Validate(); err != nil {
					return exitWith(ExitCodeError, err)
				}
			}

			engine, err := app.engine(ctx, cfg)
			if err != nil {
				return err
			}
			locks, err := app.lockServices(cfg, names)
			if err != nil {
				return err
			}
			defer locks.Release()

			p := app.provisioner(engine, cfg, app.logger(cfg))
			for _, name := range names {
				removed, err := p.Teardown(ctx, name)
				if err != nil {
					return exitWith(ExitCodeError, fmt.Errorf("tear down %s: %w", name, err))
				}
				fmt.Fprintf(app.stdout, "%s %s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(string(name)),
					SubtitleStyle.Render(fmt.Sprintf("removed %d container(s)", removed)))
			}
			return nil
		}),
	}
}
