// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/harbormaster/pkg/servicefile"
)

// DefaultVerifyBackoff is the wait before the second verify attempt; it doubles after
// every further attempt.
const DefaultVerifyBackoff = 250 * time.Millisecond

type (
	// Config holds the provisioner settings that are not part of a descriptor.
	Config struct {
		// BuildDir is the parent of the temporary build contexts.
		BuildDir string

		// Verify fills the zero fields of each descriptor's VerifyPolicy.
		Verify servicefile.VerifyPolicy

		// VerifyBackoff is the base wait between verify attempts.
		VerifyBackoff time.Duration

		// Output receives pull and build progress. Nil discards it.
		Output io.Writer

		// Logger receives one entry per step. Nil discards it.
		Logger *log.Logger
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BuildDir:      DefaultBuildDir(),
		Verify:        servicefile.VerifyPolicy{}.OrDefault(),
		VerifyBackoff: DefaultVerifyBackoff,
	}
}

// DefaultBuildDir picks the parent directory for build contexts.
//
// Docker installed via Snap cannot read /tmp (separate namespace) or hidden
// directories in $HOME, so a visible directory in the home is preferred:
// ~/harbormaster-build, then ./.harbormaster-build, then the system temp dir.
func DefaultBuildDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "harbormaster-build")
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".harbormaster-build")
	}
	return filepath.Join(os.TempDir(), "harbormaster-build")
}

// WithBuildDir returns an Option that sets BuildDir. An empty dir keeps the default.
func WithBuildDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.BuildDir = dir
		}
	}
}

// WithVerifyDefaults returns an Option that sets the fallback verify policy.
func WithVerifyDefaults(policy servicefile.VerifyPolicy) Option {
	return func(c *Config) {
		c.Verify = policy.OrDefault()
	}
}

// WithVerifyBackoff returns an Option that sets VerifyBackoff.
func WithVerifyBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.VerifyBackoff = d
	}
}

// WithOutput returns an Option that sets Output.
func WithOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Output = w
	}
}

// WithLogger returns an Option that sets Logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// verifyPolicy merges a descriptor's policy over the configured defaults.
func (c *Config) verifyPolicy(p servicefile.VerifyPolicy) servicefile.VerifyPolicy {
	if p.Timeout <= 0 {
		p.Timeout = c.Verify.Timeout
	}
	if p.Attempts <= 0 {
		p.Attempts = c.Verify.Attempts
	}
	return p.OrDefault()
}
