package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/specialistvlad/graphjob/internal/config"
	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/registry"
)

// Artifact file names written into the working directory.
const (
	SummaryFile = "summary.json"
	MetricsFile = "metrics.prom"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *config.Model
	appCfg   *Config

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads and
// validates the run configuration and registers every module. A nil
// modules list registers the compiled-in integrations.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfgModel := config.New()
	if len(appConfig.ConfigPaths) > 0 {
		loaded, err := loader.Load(ctx, appConfig.ConfigPaths...)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfgModel = loaded
	}
	if appConfig.Integration != "" {
		cfgModel.Run.Integration = appConfig.Integration
	}
	if appConfig.WorkingDir != "" {
		cfgModel.Run.WorkingDir = appConfig.WorkingDir
	}
	cfgModel.ApplyDefaults()
	if err := cfgModel.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfgModel.Run.Integration == "" {
		return nil, fmt.Errorf("invalid configuration: run.integration is required")
	}
	workingDir, err := filepath.Abs(cfgModel.Run.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	cfgModel.Run.WorkingDir = workingDir
	logger.Debug("Configuration loaded and translated into unified model.", "integration", cfgModel.Run.Integration, "store", cfgModel.Run.Store)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All modules registered.", "count", len(modules))

	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfgModel,
		appCfg:   appConfig,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the effective run configuration.
func (a *App) Model() *config.Model {
	return a.config
}

// Path returns the absolute path of an artifact in the working directory.
func (a *App) Path(name string) string {
	return filepath.Join(a.config.Run.WorkingDir, name)
}
