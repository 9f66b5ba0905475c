// SPDX-License-Identifier: MPL-2.0

// Package servicelock serializes provisioning runs of the same service across
// processes. Each service name maps to a zero-byte lock file holding a
// non-blocking exclusive flock; a second run fails fast instead of racing the first
// through stop, remove and launch.
//
// An orphaned lock file is harmless: the kernel drops the flock when the holder's
// descriptor is closed, including on a crash.
package servicelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/invowk/harbormaster/internal/container"
)

const dirName = "harbormaster"

// ErrLocked is the sentinel error wrapped by LockedError.
var ErrLocked = errors.New("service is locked by another run")

type (
	// LockedError is returned when another process holds the service's lock.
	LockedError struct {
		Service container.ContainerName
		Path    string
	}

	// Set is a group of held locks, released together.
	Set []*Lock
)

// Error implements the error interface.
func (e *LockedError) Error() string {
	return fmt.Sprintf("%s is being provisioned by another run (lock %s)", e.Service, e.Path)
}

// Unwrap returns ErrLocked for errors.Is() compatibility.
func (e *LockedError) Unwrap() error { return ErrLocked }

// Dir returns the lock directory. configured wins when set; otherwise
// $XDG_RUNTIME_DIR/harbormaster, falling back to the temp dir.
func Dir(configured string, getenv func(string) string) string {
	if configured != "" {
		return configured
	}
	base := getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, dirName)
}

// Path returns the lock file for name inside dir.
func Path(dir string, name container.ContainerName) string {
	return filepath.Join(dir, string(name)+".lock")
}

// AcquireAll locks every name, in sorted order so that two overlapping stacks cannot
// deadlock. On failure the locks taken so far are released.
func AcquireAll(dir string, names []container.ContainerName) (Set, error) {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	set := make(Set, 0, len(sorted))
	for _, name := range sorted {
		l, err := Acquire(dir, name)
		if err != nil {
			set.Release()
			return nil, err
		}
		set = append(set, l)
	}
	return set, nil
}

// Release releases every lock in the set.
func (s Set) Release() {
	for _, l := range s {
		l.Release()
	}
}
