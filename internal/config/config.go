// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/invowk/harbormaster/internal/issue"
	"github.com/invowk/harbormaster/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "harbormaster"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides: log.level is HARBORMASTER_LOG_LEVEL.
	EnvPrefix = "HARBORMASTER"
)

// ErrConfigExists is returned by Init when the config file exists and overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the per-user harbormaster directory: os.UserConfigDir (so
// $XDG_CONFIG_HOME, ~/Library/Application Support or %APPDATA%) plus AppName.
//
//nolint:revive // config.ConfigDir reads better than config.Dir at call sites
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultPath returns the path of the config file inside the config directory,
// whether or not it exists.
func DefaultPath(opts LoadOptions) (string, error) {
	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// Locate returns the config file a load with opts would read. An explicit
// ConfigFilePath always wins; otherwise the config directory is searched, then
// the current directory. found is false when no file exists and defaults apply.
func Locate(opts LoadOptions) (path string, found bool, err error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, fileExists(opts.ConfigFilePath), nil
	}

	cuePath, err := DefaultPath(opts)
	if err != nil {
		return "", false, err
	}
	if fileExists(cuePath) {
		return cuePath, true, nil
	}

	localCuePath := ConfigFileName + "." + ConfigFileExt
	if fileExists(localCuePath) {
		return localCuePath, true, nil
	}

	return cuePath, false, nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. Precedence: defaults < config file < HARBORMASTER_* env.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper(opts.LookupEnv)

	path, found, err := Locate(opts)
	if err != nil {
		return nil, "", err
	}

	if opts.ConfigFilePath != "" && !found {
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(opts.ConfigFilePath).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Check that the file exists and is readable").
			WithSuggestion("Use 'harbormaster config init' to write the default configuration").
			Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
			BuildError()
	}

	resolvedPath := ""
	if found {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithTopic(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
		resolvedPath = path
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment overrides bypass the CUE schema, so the typed validation runs last.
	if valid, errs := cfg.IsValid(); !valid {
		ec := issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check HARBORMASTER_* environment variables for typos").
			WithTopic(issue.ConfigLoadFailedId)
		if resolvedPath != "" {
			ec = ec.WithResource(resolvedPath)
		}
		return nil, "", ec.Wrap(errors.Join(errs...)).BuildError()
	}

	return &cfg, resolvedPath, nil
}

// newViper returns a viper instance primed with defaults and environment overrides.
// A nil lookupEnv reads the process environment.
func newViper(lookupEnv func(string) (string, bool)) *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("container_engine", defaults.ContainerEngine)
	v.SetDefault("require_root", defaults.RequireRoot)
	v.SetDefault("build_dir", defaults.BuildDir)
	v.SetDefault("lock_dir", defaults.LockDir)
	v.SetDefault("verify.timeout", defaults.Verify.Timeout)
	v.SetDefault("verify.attempts", defaults.Verify.Attempts)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	if lookupEnv == nil {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		return v
	}

	// Injected environments are applied as explicit overrides; viper's
	// AutomaticEnv always reads the process environment.
	for _, key := range v.AllKeys() {
		if value, ok := lookupEnv(EnvKey(key)); ok {
			v.Set(key, value)
		}
	}
	return v
}

// EnvKey returns the environment variable that overrides a config key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates the file at path against #Config and merges the
// result over the defaults already set on v. Env bindings stay on top.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	res, err := cueutil.ParseAndDecode[map[string]any](
		[]byte(configSchema), data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*res.Value); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// Init writes cfg as CUE to the default config path and returns that path.
// An existing file is left untouched unless force is set, in which case
// ErrConfigExists is not returned and the file is overwritten.
func Init(opts LoadOptions, cfg *Config, force bool) (string, error) {
	cfgPath, err := DefaultPath(opts)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if !force && fileExists(cfgPath) {
		return cfgPath, fmt.Errorf("%w: %s", ErrConfigExists, cfgPath)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE renders cfg in the config file format. Empty directory overrides are omitted.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// harbormaster configuration\n")
	sb.WriteString("// Every key is optional. Environment variables named HARBORMASTER_<KEY> override it,\n")
	sb.WriteString("// e.g. HARBORMASTER_VERIFY_TIMEOUT=10s.\n\n")

	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	fmt.Fprintf(&sb, "require_root: %v\n", cfg.RequireRoot)
	if cfg.BuildDir != "" {
		fmt.Fprintf(&sb, "build_dir: %q\n", cfg.BuildDir)
	}
	if cfg.LockDir != "" {
		fmt.Fprintf(&sb, "lock_dir: %q\n", cfg.LockDir)
	}

	sb.WriteString("\nverify: {\n")
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Verify.Timeout.String())
	fmt.Fprintf(&sb, "\tattempts: %d\n", cfg.Verify.Attempts)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
