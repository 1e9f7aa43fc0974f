package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/always-cache/svcrouter"
	"github.com/always-cache/svcrouter/cache"
	"github.com/always-cache/svcrouter/config"
	httptransport "github.com/always-cache/svcrouter/pkg/http-transport"
	tcptransport "github.com/always-cache/svcrouter/pkg/tcp-transport"
)

var (
	// CLI flags
	configFilenameFlag string
	listenFlag         string
	tcpListenFlag      string
	adminListenFlag    string
	providerFlag       string
	dbFilenameFlag     string
	collapseFlag       bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&listenFlag, "listen", "", "HTTP address to listen on (overrides config)")
	flag.StringVar(&tcpListenFlag, "tcp-listen", "", "Bare TCP address to listen on (overrides config)")
	flag.StringVar(&adminListenFlag, "admin-listen", "", "Address of the metrics endpoint (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Cache provider to use: memory, sqlite or redis (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name for the sqlite provider (overrides config)")
	flag.BoolVar(&collapseFlag, "collapse", false, "Invoke a backend once for concurrent cache misses")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("version", version).Logger()

	cfg := config.Default()
	if configFilenameFlag != "" {
		var err error
		if cfg, err = config.Load(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Str("file", configFilenameFlag).Msg("Cannot load config")
		}
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Stopped")
}

func applyFlags(cfg *config.Config) {
	if listenFlag != "" {
		cfg.Listen = listenFlag
	}
	if tcpListenFlag != "" {
		cfg.TCPListen = tcpListenFlag
	}
	if adminListenFlag != "" {
		cfg.AdminListen = adminListenFlag
	}
	if providerFlag != "" {
		cfg.Cache.Provider = providerFlag
	}
	if dbFilenameFlag != "" {
		cfg.Cache.SQLite.File = dbFilenameFlag
	}
	if collapseFlag {
		cfg.Router.CollapseMisses = true
	}
}

// run serves the configured listeners until ctx is done.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	provider, err := config.OpenProvider(cfg.Cache)
	if err != nil {
		return err
	}
	defer provider.Close()

	responseCache := cache.New(provider, &logger)
	if n, err := responseCache.Len(ctx); err == nil && n > 0 {
		logger.Info().Int("entries", n).Msg("Restored cache entries")
	}

	reg, err := config.BuildRegistry(cfg.Backends, config.Environ(), &logger)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	routerConfig := svcrouter.Config{
		Cache:          responseCache,
		Registry:       reg,
		Logger:         &logger,
		Metrics:        svcrouter.NewMetrics(promRegistry),
		InvokeTimeout:  cfg.Router.InvokeTimeout.Duration(),
		CollapseMisses: cfg.Router.CollapseMisses,
	}
	if cfg.Router.StaticDir != "" {
		if routerConfig.Static, err = svcrouter.NewStaticHandler(cfg.Router.StaticDir, logger); err != nil {
			return err
		}
	}
	router := svcrouter.CreateRouter(routerConfig)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(ctx, cfg.Listen, httptransport.NewHandler(router, logger), logger)
	})
	if cfg.AdminListen != "" {
		g.Go(func() error {
			return serveHTTP(ctx, cfg.AdminListen, httptransport.NewAdminHandler(promRegistry), logger)
		})
	}
	if cfg.TCPListen != "" {
		tcpServer := &tcptransport.Server{Addr: cfg.TCPListen, Handler: router, Logger: &logger}
		g.Go(func() error {
			return tcpServer.ListenAndServe(ctx)
		})
	}
	logger.Info().Strs("services", reg.IDs()).Str("provider", cfg.Cache.Provider).Msg("Router started")
	return g.Wait()
}

// serveHTTP runs an HTTP server on addr and shuts it down gracefully when ctx is done.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("Shutdown incomplete")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
