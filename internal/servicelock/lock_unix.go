// SPDX-License-Identifier: MPL-2.0

//go:build unix

package servicelock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/invowk/harbormaster/internal/container"
)

// Lock is a held flock on one service's lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the lock for name without blocking. It returns a *LockedError when
// another process holds it.
func Acquire(dir string, name container.ContainerName) (*Lock, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}

	path := Path(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &LockedError{Service: name, Path: path}
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and closes the file. Safe to call more than once and on nil.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN) // Close releases it too
	_ = l.file.Close()
	l.file = nil
}
