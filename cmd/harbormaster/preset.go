// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/presets"
)

func newPresetCommand(app *App) *cobra.Command {
	presetCmd := &cobra.Command{
		Use:   "preset",
		Short: "List and show the embedded service presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	presetCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the embedded presets",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			all := presets.List()
			width := 0
			for _, p := range all {
				width = max(width, lipgloss.Width(p.Name))
			}
			nameStyle := CmdStyle.Width(width + 2)
			for _, p := range all {
				fmt.Fprintln(app.stdout, nameStyle.Render(p.Name)+SubtitleStyle.Render(p.Description))
			}
			return nil
		}),
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print a preset's service file",
		Long: `Print a preset's CUE service file. Save it, edit it and pass it to 'up'
to customize ports, volumes or the image tag.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completePresetNames,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			p, err := presets.Get(args[0])
			if err != nil {
				return exitWith(ExitCodeError, err)
			}
			_, err = app.stdout.Write(p.Source)
			return err
		}),
	})

	return presetCmd
}

func completePresetNames(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return presets.Names(), cobra.ShellCompDirectiveNoFileComp
}
