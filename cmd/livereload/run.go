package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livereload/internal/artifact"
	"livereload/internal/config"
	"livereload/internal/hostcap"
	"livereload/internal/httpapi"
	"livereload/internal/reloader"
	"livereload/internal/runner"
	"livereload/pkg/types"
)

const shutdownTimeout = 5 * time.Second

type runOptions struct {
	lib               string
	libDir            string
	libName           string
	addr              string
	tickMS            int
	reloadEvery       int
	debounceMS        int
	watchBuffer       int
	retryUnloaded     bool
	failOnReloadError bool
	logFormat         string
	corsOrigins       []string
}

func newRunCommand(root *rootOptions, o *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the artifact and drive it until it quits or a signal arrives",
		Example: "  livereload run --lib ./build/libgame.so\n" +
			"  livereload run --lib-dir ./build --lib-name game --addr :8080\n" +
			"  livereload run -c livereload.yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, root, o)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.lib, "lib", "", "Path to the artifact")
	f.StringVar(&o.libDir, "lib-dir", "", "Directory holding the artifact (with --lib-name)")
	f.StringVar(&o.libName, "lib-name", "", "Artifact name without platform prefix and suffix")
	f.StringVar(&o.addr, "addr", "", "HTTP listen address for the control surface, e.g. :8080 (empty disables it)")
	f.IntVar(&o.tickMS, "tick-ms", config.DefaultTickMS, "Milliseconds between update calls")
	f.IntVar(&o.reloadEvery, "reload-every", config.DefaultReloadEvery, "Check for a new build every N ticks")
	f.IntVar(&o.debounceMS, "debounce-ms", config.DefaultDebounceMS, "Quiet period after the last write before reloading")
	f.IntVar(&o.watchBuffer, "watch-buffer", 0, "Watch channel capacity (0 keeps the default)")
	f.BoolVar(&o.retryUnloaded, "retry-unloaded", false, "Retry loading on every check while nothing is loaded")
	f.BoolVar(&o.failOnReloadError, "fail-on-reload-error", false, "Exit on the first failed reload")
	f.StringVar(&o.logFormat, "log-format", config.DefaultLogFormat, "Log format: json|console")
	f.StringSliceVar(&o.corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable); enables CORS")
	return cmd
}

// resolveConfig loads the config file, if any, and lets explicitly set flags
// override it.
func resolveConfig(cmd *cobra.Command, root *rootOptions, o *runOptions) (config.Config, error) {
	var cfg config.Config
	if root.configPath != "" {
		c, err := config.Load(root.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	f := cmd.Flags()
	if f.Changed("lib") {
		cfg.Library, cfg.LibDir, cfg.LibName = o.lib, "", ""
	}
	if f.Changed("lib-dir") || f.Changed("lib-name") {
		cfg.Library = ""
		if f.Changed("lib-dir") {
			cfg.LibDir = o.libDir
		}
		if f.Changed("lib-name") {
			cfg.LibName = o.libName
		}
	}
	if f.Changed("addr") {
		cfg.Addr = o.addr
	}
	if f.Changed("tick-ms") {
		cfg.TickMS = o.tickMS
	}
	if f.Changed("reload-every") {
		cfg.ReloadEvery = o.reloadEvery
	}
	if f.Changed("debounce-ms") {
		cfg.DebounceMS = o.debounceMS
	}
	if f.Changed("watch-buffer") {
		cfg.WatchBuffer = o.watchBuffer
	}
	if f.Changed("retry-unloaded") {
		cfg.RetryUnloaded = o.retryUnloaded
	}
	if f.Changed("fail-on-reload-error") {
		cfg.FailOnReloadError = o.failOnReloadError
	}
	if f.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if f.Changed("cors-origin") {
		cfg.CORSOrigins = o.corsOrigins
	}
	if root.logLevel != "" {
		cfg.LogLevel = root.logLevel
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// service exposes the runner to the HTTP surface.
type service struct {
	*runner.Runner
	dir string
}

func (s service) Artifacts() ([]types.Artifact, error) { return artifact.List(s.dir) }

func run(cmd *cobra.Command, cfg config.Config) error {
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	path, err := cfg.ArtifactPath()
	if err != nil {
		return err
	}
	hostcap.SetLogger(logger)
	httpapi.SetLogger(logger)

	r, err := reloader.NewWithConfig(reloader.Config{
		Path:          path,
		Debounce:      cfg.Debounce(),
		WatchBuffer:   cfg.WatchBuffer,
		RetryUnloaded: cfg.RetryUnloaded,
		Publisher:     logPublisher{log: logger},
		Logger:        &logger,
	}, hostcap.New())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rn := runner.New(r, runner.Config{
		Tick:              cfg.Tick(),
		ReloadEvery:       cfg.ReloadEvery,
		FailOnReloadError: cfg.FailOnReloadError,
		Logger:            &logger,
	})

	var srv *http.Server
	srvErr := make(chan error, 1)
	if cfg.Addr != "" {
		httpapi.SetBaseContext(ctx)
		httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
		srv = &http.Server{
			Addr:              cfg.Addr,
			Handler:           httpapi.NewMux(service{Runner: rn, dir: filepath.Dir(r.Path())}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
				stop()
			}
		}()
	}

	runErr := rn.Run(ctx)

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown")
		}
	}
	select {
	case err := <-srvErr:
		return errors.Join(runErr, fmt.Errorf("http server: %w", err))
	default:
	}
	if runErr == nil {
		logger.Info().Msg("stopped")
	}
	return runErr
}
