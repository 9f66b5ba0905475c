// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/invowk/harbormaster/internal/config"
	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/host"
	"github.com/invowk/harbormaster/internal/issue"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory connects to the container engine of the requested type.
	EngineFactory func(ctx context.Context, engineType container.EngineType) (container.Engine, error)

	// HostFactory returns the host collaborator for a run.
	HostFactory func(requireRoot bool) host.Environment

	// App wires CLI services and shared dependencies. Every command handler
	// receives it and reaches the engine, host and config only through it.
	App struct {
		Config    ConfigProvider
		NewEngine EngineFactory
		NewHost   HostFactory
		Getenv    func(string) string
		// IssueStyle overrides the glamour style used by explain. Empty follows ui.color_scheme.
		IssueStyle string

		stdout io.Writer
		stderr io.Writer
		flags  rootFlags
	}

	// Dependencies defines the injection points for building an App. Nil fields are
	// replaced with production defaults by NewApp.
	Dependencies struct {
		Config     ConfigProvider
		NewEngine  EngineFactory
		NewHost    HostFactory
		Getenv     func(string) string
		IssueStyle string
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// rootFlags holds the persistent flags shared by every command.
	rootFlags struct {
		configPath string
		verbose    bool
		engine     string
		logFormat  string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewEngine == nil {
		deps.NewEngine = container.NewEngine
	}
	if deps.NewHost == nil {
		deps.NewHost = func(requireRoot bool) host.Environment {
			return host.New(host.WithRequireRoot(requireRoot))
		}
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}

	return &App{
		Config:     deps.Config,
		NewEngine:  deps.NewEngine,
		NewHost:    deps.NewHost,
		Getenv:     deps.Getenv,
		IssueStyle: deps.IssueStyle,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
}

// loadConfig loads the configuration and applies the global flag overrides on top.
// Flags beat HARBORMASTER_* variables, which beat the config file.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return nil, exitWith(ExitCodeError, err)
	}

	if a.flags.engine != "" {
		cfg.ContainerEngine = config.ContainerEngine(a.flags.engine)
	}
	if a.flags.logFormat != "" {
		cfg.Log.Format = config.LogFormat(a.flags.logFormat)
	}
	if a.flags.verbose {
		cfg.UI.Verbose = true
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, exitWith(ExitCodeError, issue.NewErrorContext().
			WithOperation("apply command-line flags").
			WithSuggestion("Valid engines: auto, docker, podman, docker-api").
			WithSuggestion("Valid log formats: text, json, logfmt").
			Wrap(errs[0]).
			BuildError())
	}
	return cfg, nil
}

// logger builds the CLI logger from the effective configuration.
func (a *App) logger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "harbormaster",
		ReportTimestamp: cfg.Log.Format != config.LogFormatText,
	})

	if level, err := log.ParseLevel(string(cfg.Log.Level)); err == nil {
		logger.SetLevel(level)
	}
	if cfg.UI.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	switch cfg.Log.Format {
	case config.LogFormatJSON:
		logger.SetFormatter(log.JSONFormatter)
	case config.LogFormatLogfmt:
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
	return logger
}

// engine connects to the configured container engine.
func (a *App) engine(ctx context.Context, cfg *config.Config) (container.Engine, error) {
	engine, err := a.NewEngine(ctx, container.EngineType(cfg.ContainerEngine))
	if err != nil {
		return nil, exitWith(ExitCodeError, issue.NewErrorContext().
			WithOperation("connect to the container engine").
			WithResource(string(cfg.ContainerEngine)).
			WithSuggestion("Start the docker or podman service").
			WithSuggestion("Select another engine with --engine or container_engine").
			WithTopic(issue.EngineUnavailableId).
			Wrap(err).
			BuildError())
	}
	return engine, nil
}
