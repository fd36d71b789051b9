// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	apihttp "github.com/artpar/modelgate/adapters/http"
	"github.com/artpar/modelgate/adapters/metrics"
	"github.com/artpar/modelgate/config"
	"github.com/artpar/modelgate/core/definition"
	"github.com/artpar/modelgate/core/export"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/storage"
	"github.com/artpar/modelgate/core/validation"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Registry   *registry.Registry
	Engine     *validation.Engine
	Store      *storage.SQLiteStore
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	holder *config.Holder
}

// Options provides optional settings for application initialization.
type Options struct {
	// Version is reported by /version.
	Version string

	// LogOutput receives log events. Defaults to os.Stdout.
	LogOutput io.Writer
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := SetupLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Msg("initializing modelgate")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	reg, err := LoadRegistry(cfg.Schemas.Paths)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	a.Registry = reg
	logger.Info().
		Int("count", reg.Len()).
		Strs("schemas", reg.Names()).
		Msg("schemas registered")

	var promReg *prometheus.Registry
	engineOpts := []validation.Option{validation.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(promReg)
		engineOpts = append(engineOpts, validation.WithObserver(a.Metrics))
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}
	a.Engine = validation.New(reg, engineOpts...)

	if cfg.Database.Enabled {
		store, err := storage.NewSQLiteStore(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		a.Store = store
		logger.Info().Str("dsn", cfg.Database.DSN).Msg("record storage enabled")
	}

	a.initHTTPServer(opts.Version, promReg)
	return a, nil
}

// NewWithHotReload creates the application from the config file at path and
// reloads it on file change or SIGHUP.
func NewWithHotReload(path string, opts Options) (*App, error) {
	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get(), opts)
	if err != nil {
		return nil, err
	}

	a.attachHolder(holder)
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	holder.WatchSignals()
	return a, nil
}

// LoadRegistry builds a registry from schema files and directories.
func LoadRegistry(paths []string) (*registry.Registry, error) {
	reg := registry.New()
	if len(paths) == 0 {
		return reg, nil
	}
	if err := definition.Load(reg, paths...); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *App) attachHolder(holder *config.Holder) {
	a.holder = holder
	if a.Metrics != nil {
		holder.SetObserver(a.Metrics)
	}
	holder.OnChange(a.applyConfig)
}

// applyConfig applies the reloadable settings of cfg.
func (a *App) applyConfig(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		a.Logger.Error().Err(err).Msg("invalid log level on reload")
		return
	}
	zerolog.SetGlobalLevel(level)
	a.Logger.Info().Str("level", level.String()).Msg("log level applied")
}

func (a *App) initHTTPServer(version string, promReg *prometheus.Registry) {
	cfg := a.Config

	h := apihttp.NewHandler(apihttp.HandlerConfig{
		Catalog: a.Registry,
		Engine:  a.Engine,
		Store:   a.storeOrNil(),
		Metrics: a.Metrics,
		Logger:  a.Logger,
		Info: export.Info{
			Title:       cfg.OpenAPI.Title,
			Description: cfg.OpenAPI.Description,
			Version:     cfg.OpenAPI.Version,
		},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	routerCfg := apihttp.RouterConfig{
		Metrics:       a.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		Version:       version,
		Timeout:       cfg.Server.RequestTimeout,
		EnableSwagger: cfg.OpenAPI.SwaggerUI,
	}
	if promReg != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apihttp.NewRouter(h, a.Logger, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// storeOrNil keeps a nil *SQLiteStore from becoming a non-nil interface.
func (a *App) storeOrNil() storage.Store {
	if a.Store == nil {
		return nil
	}
	return a.Store
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a server
// error.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the server, the config watchers and the database.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger creates the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
