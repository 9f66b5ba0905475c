// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ContainerEngineAuto prefers docker and falls back to podman.
	ContainerEngineAuto ContainerEngine = "auto"
	// ContainerEngineDocker uses the docker CLI.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman uses the podman CLI.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDockerAPI talks to the Docker Engine API directly.
	ContainerEngineDockerAPI ContainerEngine = "docker-api"

	// LogLevelDebug enables per-step debug logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default log level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn only logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError only logs errors.
	LogLevelError LogLevel = "error"

	// LogFormatText is the human-readable terminal format.
	LogFormatText LogFormat = "text"
	// LogFormatJSON emits one JSON object per record.
	LogFormatJSON LogFormat = "json"
	// LogFormatLogfmt emits key=value records.
	LogFormatLogfmt LogFormat = "logfmt"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultVerifyTimeout bounds the post-launch running check.
	DefaultVerifyTimeout = 5 * time.Second
	// MaxVerifyAttempts mirrors the schema's upper bound on verify.attempts.
	MaxVerifyAttempts = 100
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned when a LogFormat value is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidDirPath is returned when a DirPath value is whitespace-only.
	ErrInvalidDirPath = errors.New("invalid directory path")
	// ErrInvalidVerifyConfig is the sentinel error wrapped by InvalidVerifyConfigError.
	ErrInvalidVerifyConfig = errors.New("invalid verify config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to use.
	// Defined locally to avoid coupling config to internal/container;
	// the CLI casts to container.EngineType at the boundary.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// LogLevel is the minimum level the CLI logger emits.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// LogFormat selects the charmbracelet/log formatter.
	LogFormat string

	// InvalidLogFormatError is returned when a LogFormat value is not recognized.
	InvalidLogFormatError struct {
		Value LogFormat
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// DirPath is an optional directory override.
	// The zero value ("") is valid and means "use the default location".
	DirPath string

	// InvalidDirPathError is returned when a DirPath is non-empty but whitespace-only.
	InvalidDirPathError struct {
		Field string
		Value DirPath
	}

	// InvalidVerifyConfigError collects VerifyConfig field errors.
	InvalidVerifyConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects every field error of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// ContainerEngine specifies which container runtime to use.
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// RequireRoot makes validation fail for unprivileged users.
		RequireRoot bool `json:"require_root" mapstructure:"require_root"`
		// BuildDir overrides where build contexts are staged.
		BuildDir DirPath `json:"build_dir" mapstructure:"build_dir"`
		// LockDir overrides where per-service run locks live.
		LockDir DirPath `json:"lock_dir" mapstructure:"lock_dir"`
		// Verify configures the post-launch running check.
		Verify VerifyConfig `json:"verify" mapstructure:"verify"`
		// Log configures the CLI logger.
		Log LogConfig `json:"log" mapstructure:"log"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// VerifyConfig holds the defaults for services that set no verify policy of their own.
	VerifyConfig struct {
		Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
		Attempts int           `json:"attempts" mapstructure:"attempts"`
	}

	// LogConfig configures the CLI logger.
	LogConfig struct {
		Level  LogLevel  `json:"level" mapstructure:"level"`
		Format LogFormat `json:"format" mapstructure:"format"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme selects the glamour style used by explain.
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables debug logging and full error chains.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineAuto,
		RequireRoot:     true,
		Verify: VerifyConfig{
			Timeout:  DefaultVerifyTimeout,
			Attempts: 1,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// String returns the string representation of the ContainerEngine.
func (ce ContainerEngine) String() string { return string(ce) }

// IsValid returns whether the ContainerEngine is one of the defined engine types.
func (ce ContainerEngine) IsValid() (bool, []error) {
	switch ce {
	case ContainerEngineAuto, ContainerEngineDocker, ContainerEnginePodman, ContainerEngineDockerAPI:
		return true, nil
	default:
		return false, []error{&InvalidContainerEngineError{Value: ce}}
	}
}

// Error implements the error interface for InvalidContainerEngineError.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: auto, docker, podman, docker-api)", e.Value)
}

// Unwrap returns ErrInvalidContainerEngine for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogFormat.
func (f LogFormat) String() string { return string(f) }

// IsValid returns whether the LogFormat is one of the defined formats.
func (f LogFormat) IsValid() (bool, []error) {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidLogFormatError{Value: f}}
	}
}

// Error implements the error interface for InvalidLogFormatError.
func (e *InvalidLogFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns ErrInvalidLogFormat for errors.Is() compatibility.
func (e *InvalidLogFormatError) Unwrap() error { return ErrInvalidLogFormat }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the DirPath.
func (p DirPath) String() string { return string(p) }

// validate reports a whitespace-only override; field names the config key.
func (p DirPath) validate(field string) []error {
	if p != "" && strings.TrimSpace(string(p)) == "" {
		return []error{&InvalidDirPathError{Field: field, Value: p}}
	}
	return nil
}

// Error implements the error interface for InvalidDirPathError.
func (e *InvalidDirPathError) Error() string {
	return fmt.Sprintf("invalid %s %q: non-empty value must not be whitespace-only", e.Field, e.Value)
}

// Unwrap returns ErrInvalidDirPath for errors.Is() compatibility.
func (e *InvalidDirPathError) Unwrap() error { return ErrInvalidDirPath }

// IsValid returns whether the VerifyConfig has a positive timeout and an
// attempt count within [1, MaxVerifyAttempts].
func (c VerifyConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("verify.timeout must be positive, got %s", c.Timeout))
	}
	if c.Attempts < 1 || c.Attempts > MaxVerifyAttempts {
		errs = append(errs, fmt.Errorf("verify.attempts must be between 1 and %d, got %d", MaxVerifyAttempts, c.Attempts))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidVerifyConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidVerifyConfigError.
func (e *InvalidVerifyConfigError) Error() string {
	return fmt.Sprintf("invalid verify config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidVerifyConfig for errors.Is() compatibility.
func (e *InvalidVerifyConfigError) Unwrap() error { return ErrInvalidVerifyConfig }

// IsValid returns whether the Config has valid fields.
// Bool fields need no validation.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ContainerEngine.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	errs = append(errs, c.BuildDir.validate("build_dir")...)
	errs = append(errs, c.LockDir.validate("lock_dir")...)
	if valid, fieldErrs := c.Verify.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Format.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by the field errors, so errors.Is
// matches both the config sentinel and the individual field sentinels.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
