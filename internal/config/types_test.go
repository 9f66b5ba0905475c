// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"testing"
	"time"
)

func TestContainerEngine_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value ContainerEngine
		want  bool
	}{
		{ContainerEngineAuto, true},
		{ContainerEngineDocker, true},
		{ContainerEnginePodman, true},
		{ContainerEngineDockerAPI, true},
		{"", false},
		{"lxc", false},
		{"Docker", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.value), func(t *testing.T) {
			t.Parallel()

			valid, errs := tt.value.IsValid()
			if valid != tt.want {
				t.Fatalf("IsValid() = %v, want %v", valid, tt.want)
			}
			if !tt.want {
				if len(errs) != 1 || !errors.Is(errs[0], ErrInvalidContainerEngine) {
					t.Errorf("expected ErrInvalidContainerEngine, got %v", errs)
				}
				var engineErr *InvalidContainerEngineError
				if !errors.As(errs[0], &engineErr) || engineErr.Value != tt.value {
					t.Errorf("expected InvalidContainerEngineError{%q}, got %v", tt.value, errs[0])
				}
			}
		})
	}
}

func TestEnumTypes_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		isValid  func() (bool, []error)
		want     bool
		sentinel error
	}{
		{"level debug", LogLevelDebug.IsValid, true, nil},
		{"level error", LogLevelError.IsValid, true, nil},
		{"level trace", LogLevel("trace").IsValid, false, ErrInvalidLogLevel},
		{"format logfmt", LogFormatLogfmt.IsValid, true, nil},
		{"format xml", LogFormat("xml").IsValid, false, ErrInvalidLogFormat},
		{"scheme dark", ColorSchemeDark.IsValid, true, nil},
		{"scheme neon", ColorScheme("neon").IsValid, false, ErrInvalidColorScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			valid, errs := tt.isValid()
			if valid != tt.want {
				t.Fatalf("IsValid() = %v, want %v", valid, tt.want)
			}
			if tt.sentinel != nil && (len(errs) != 1 || !errors.Is(errs[0], tt.sentinel)) {
				t.Errorf("expected %v, got %v", tt.sentinel, errs)
			}
		})
	}
}

func TestVerifyConfig_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  VerifyConfig
		want bool
	}{
		{"defaults", VerifyConfig{Timeout: 5 * time.Second, Attempts: 1}, true},
		{"max attempts", VerifyConfig{Timeout: time.Second, Attempts: MaxVerifyAttempts}, true},
		{"zero timeout", VerifyConfig{Attempts: 1}, false},
		{"negative timeout", VerifyConfig{Timeout: -time.Second, Attempts: 1}, false},
		{"zero attempts", VerifyConfig{Timeout: time.Second}, false},
		{"too many attempts", VerifyConfig{Timeout: time.Second, Attempts: MaxVerifyAttempts + 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			valid, errs := tt.cfg.IsValid()
			if valid != tt.want {
				t.Fatalf("IsValid() = %v, want %v (errs: %v)", valid, tt.want, errs)
			}
			if !tt.want && !errors.Is(errs[0], ErrInvalidVerifyConfig) {
				t.Errorf("expected ErrInvalidVerifyConfig, got %v", errs[0])
			}
		})
	}
}

func TestConfig_IsValid_CollectsEveryField(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ContainerEngine = "lxc"
	cfg.BuildDir = "   "
	cfg.LockDir = "\t"
	cfg.Log.Format = "xml"

	valid, errs := cfg.IsValid()
	if valid {
		t.Fatal("expected an invalid config")
	}
	if len(errs) != 1 {
		t.Fatalf("expected a single InvalidConfigError, got %d errors", len(errs))
	}

	var cfgErr *InvalidConfigError
	if !errors.As(errs[0], &cfgErr) {
		t.Fatalf("expected *InvalidConfigError, got %T", errs[0])
	}
	if len(cfgErr.FieldErrors) != 4 {
		t.Errorf("expected 4 field errors, got %d: %v", len(cfgErr.FieldErrors), cfgErr.FieldErrors)
	}
	for _, sentinel := range []error{ErrInvalidConfig, ErrInvalidContainerEngine, ErrInvalidDirPath, ErrInvalidLogFormat} {
		if !errors.Is(errs[0], sentinel) {
			t.Errorf("expected errors.Is(%v)", sentinel)
		}
	}

	var dirErr *InvalidDirPathError
	if !errors.As(errs[0], &dirErr) || dirErr.Field != "build_dir" {
		t.Errorf("expected the first DirPath error to name build_dir, got %+v", dirErr)
	}
}
