// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package servicelock

import "github.com/invowk/harbormaster/internal/container"

// Lock is a no-op on platforms without flock. Docker Desktop on Windows runs the
// engine in a VM that a host-side lock cannot reach anyway.
type Lock struct {
	path string
}

// Acquire validates name and returns an unheld lock.
func Acquire(dir string, name container.ContainerName) (*Lock, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}
	return &Lock{path: Path(dir, name)}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release is a no-op.
func (l *Lock) Release() {}
