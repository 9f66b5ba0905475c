// SPDX-License-Identifier: MPL-2.0

// Package presets embeds ready-made service files for common self-hosted services.
package presets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/invowk/harbormaster/pkg/servicefile"
)

//go:embed services/*.cue
var files embed.FS

// ErrUnknownPreset is the sentinel error wrapped by UnknownPresetError.
var ErrUnknownPreset = errors.New("unknown preset")

type (
	// Preset is an embedded CUE service file.
	Preset struct {
		Name string
		// Description is the file's leading comment line.
		Description string
		Source      []byte
	}

	// UnknownPresetError is returned by Get for a name that is not embedded.
	UnknownPresetError struct {
		Name      string
		Available []string
	}
)

// Error implements the error interface.
func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("unknown preset %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrUnknownPreset for errors.Is() compatibility.
func (e *UnknownPresetError) Unwrap() error { return ErrUnknownPreset }

// List returns every preset, sorted by name.
func List() []Preset {
	entries, err := fs.ReadDir(files, "services")
	if err != nil {
		panic(err) // embedded directory; unreachable
	}

	presets := make([]Preset, 0, len(entries))
	for _, e := range entries {
		p, err := read(strings.TrimSuffix(e.Name(), ".cue"))
		if err != nil {
			panic(err)
		}
		presets = append(presets, p)
	}
	slices.SortFunc(presets, func(a, b Preset) int { return strings.Compare(a.Name, b.Name) })
	return presets
}

// Names returns the preset names, sorted.
func Names() []string {
	var names []string
	for _, p := range List() {
		names = append(names, p.Name)
	}
	return names
}

// Get returns the named preset.
func Get(name string) (Preset, error) {
	p, err := read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return Preset{}, &UnknownPresetError{Name: name, Available: Names()}
	}
	return p, err
}

// Load parses the preset into descriptors.
func (p Preset) Load(opts ...servicefile.Option) ([]servicefile.Descriptor, error) {
	return servicefile.Parse(p.Source, servicefile.FormatCUE, p.Filename(), opts...)
}

// Filename is the name used in validation errors.
func (p Preset) Filename() string { return "preset:" + p.Name + ".cue" }

func read(name string) (Preset, error) {
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return Preset{}, fs.ErrNotExist
	}
	data, err := files.ReadFile(path.Join("services", name+".cue"))
	if err != nil {
		return Preset{}, err
	}
	return Preset{Name: name, Description: description(data), Source: data}, nil
}

func description(data []byte) string {
	first, _, _ := strings.Cut(string(data), "\n")
	if rest, ok := strings.CutPrefix(first, "//"); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}
