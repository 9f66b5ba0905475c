// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where configuration comes from. The zero value reads the
	// platform config directory and the process environment.
	LoadOptions struct {
		// ConfigFilePath names the file to read; it must exist.
		ConfigFilePath string
		// ConfigDirPath replaces the platform config directory.
		ConfigDirPath string
		// LookupEnv replaces os.LookupEnv for HARBORMASTER_* overrides.
		LookupEnv func(string) (string, bool)
	}

	// Provider loads configuration.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderFunc adapts a function to Provider.
	ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, error)
)

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return f(ctx, opts)
}

// NewProvider returns the provider that reads the CUE file and the environment.
func NewProvider() Provider {
	return ProviderFunc(func(ctx context.Context, opts LoadOptions) (*Config, error) {
		cfg, _, err := loadWithOptions(ctx, opts)
		return cfg, err
	})
}

// Static returns a provider that ignores its options and hands out a copy of cfg,
// so callers may modify what they get.
func Static(cfg *Config) Provider {
	return ProviderFunc(func(ctx context.Context, _ LoadOptions) (*Config, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := *cfg
		return &c, nil
	})
}
