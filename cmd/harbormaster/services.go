// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/issue"
	"github.com/invowk/harbormaster/internal/presets"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

// errNothingToDo is returned when neither a service file nor a preset was given.
var errNothingToDo = errors.New("nothing to do: pass a service file or --preset NAME")

// sourceFlags are the flags that choose which services a command works on.
type sourceFlags struct {
	presets []string
	gpu     string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.presets, "preset", nil, "embedded preset to include (repeatable, see 'harbormaster preset list')")
	cmd.Flags().StringVar(&f.gpu, "gpu", "", "GPU passthrough for every service: none, nvidia or amd")
}

// loadServices parses every service file and preset into descriptors, in the order
// given. Service names must be unique across all sources.
func (a *App) loadServices(files []string, sf sourceFlags) ([]servicefile.Descriptor, error) {
	if len(files) == 0 && len(sf.presets) == 0 {
		return nil, exitWith(ExitCodeError, errNothingToDo)
	}

	gpu := servicefile.GPUMode(sf.gpu)
	if err := gpu.Validate(); err != nil {
		return nil, exitWith(ExitCodeError, err)
	}

	opts := []servicefile.Option{servicefile.WithLookupEnv(a.Getenv)}
	if gpu != "" {
		opts = append(opts, servicefile.WithGPU(gpu))
	}

	var (
		all    []servicefile.Descriptor
		origin = make(map[container.ContainerName]string)
	)
	add := func(source string, ds []servicefile.Descriptor) error {
		for _, d := range ds {
			if prev, ok := origin[d.Name]; ok {
				return fmt.Errorf("service %q is defined by both %s and %s", d.Name, prev, source)
			}
			origin[d.Name] = source
			all = append(all, d)
		}
		return nil
	}

	for _, file := range files {
		ds, err := servicefile.Load(file, opts...)
		if err != nil {
			return nil, validationExit(serviceFileError(file, err))
		}
		if err := add(file, ds); err != nil {
			return nil, validationExit(err)
		}
	}

	for _, name := range sf.presets {
		p, err := presets.Get(name)
		if err != nil {
			return nil, exitWith(ExitCodeError, err)
		}
		ds, err := p.Load(opts...)
		if err != nil {
			return nil, validationExit(serviceFileError(p.Filename(), err))
		}
		if err := add("preset "+name, ds); err != nil {
			return nil, validationExit(err)
		}
	}

	return all, nil
}

func serviceFileError(source string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load service file").
		WithResource(source).
		WithSuggestion("Run 'harbormaster validate' on the file to see every problem").
		WithSuggestion("Check that variables required with ${VAR:?} are exported").
		WithTopic(issue.ServiceFileInvalidId).
		Wrap(err).
		BuildError()
}

// selectServices keeps the named services. Dependencies on services that are not
// selected are dropped: --only assumes they are already up.
func selectServices(ds []servicefile.Descriptor, only []string) ([]servicefile.Descriptor, error) {
	if len(only) == 0 {
		return ds, nil
	}

	known := make([]string, 0, len(ds))
	for _, d := range ds {
		known = append(known, string(d.Name))
	}
	for _, name := range only {
		if !slices.Contains(known, name) {
			return nil, exitWith(ExitCodeError, fmt.Errorf("unknown service %q (loaded: %s)", name, strings.Join(known, ", ")))
		}
	}

	selected := make([]servicefile.Descriptor, 0, len(only))
	for _, d := range ds {
		if !slices.Contains(only, string(d.Name)) {
			continue
		}
		d.DependsOn = slices.DeleteFunc(slices.Clone(d.DependsOn), func(dep container.ContainerName) bool {
			return !slices.Contains(only, string(dep))
		})
		selected = append(selected, d)
	}
	return selected, nil
}

func serviceNames(ds []servicefile.Descriptor) []container.ContainerName {
	names := make([]container.ContainerName, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}
