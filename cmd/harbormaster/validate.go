// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/provision"
)

func newValidateCommand(app *App) *cobra.Command {
	var sf sourceFlags

	validateCmd := &cobra.Command{
		Use:   "validate [FILE...]",
		Short: "Check service files and print the resolved services",
		Long: `Parse and schema-check service files and presets without touching the host
or the container engine. Services are printed in the order 'up' would provision
them, with GPU selection, host paths and command lines resolved.`,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			descriptors, err := app.loadServices(args, sf)
			if err != nil {
				return err
			}
			ordered, err := provision.Order(descriptors)
			if err != nil {
				return validationExit(orderError(err))
			}

			for i, d := range ordered {
				if i > 0 {
					fmt.Fprintln(app.stdout)
				}
				renderDescriptor(app.stdout, d)
			}
			fmt.Fprintf(app.stdout, "\n%s %d service(s) valid\n", SuccessStyle.Render("✓"), len(ordered))
			return nil
		}),
	}

	sf.register(validateCmd)

	return validateCmd
}
