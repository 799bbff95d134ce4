package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/pagetrack/internal/api"
	"github.com/shehryarbajwa/pagetrack/internal/config"
	"github.com/shehryarbajwa/pagetrack/internal/delivery"
	"github.com/shehryarbajwa/pagetrack/internal/feed"
	"github.com/shehryarbajwa/pagetrack/internal/ratelimit"
	"github.com/shehryarbajwa/pagetrack/internal/storage"
)

type options struct {
	addr         string
	settingsFile string
	envFiles     []string
	hostname     string

	store      string
	sqlitePath string
	redisURL   string

	maxPages     int64
	signalRate   float64
	signalBurst  int
	connectRate  float64
	connectBurst int

	beaconInFlight int64
	beaconTimeout  time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("pagetrackd", pflag.ContinueOnError)
	flagSet.StringVar(&opts.addr, "addr", ":8080", "listen address")
	flagSet.StringVar(&opts.settingsFile, "settings", "", "JSON (with comments) settings file")
	flagSet.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, ".env files to load; missing files are skipped")
	flagSet.StringVar(&opts.hostname, "hostname", "", "hostname the tracked pages are served from; localhost selects development")
	flagSet.StringVar(&opts.store, "store", "memory", "visitor id store: memory, sqlite or redis")
	flagSet.StringVar(&opts.sqlitePath, "sqlite-path", "pagetrack.db", "sqlite database path for --store=sqlite")
	flagSet.StringVar(&opts.redisURL, "redis-url", "redis://localhost:6379/0", "redis URL for --store=redis")
	flagSet.Int64Var(&opts.maxPages, "max-pages", 1000, "maximum concurrently connected pages")
	flagSet.Float64Var(&opts.signalRate, "signal-rate", 20, "sustained mousemove/keydown/scroll signals per second per page")
	flagSet.IntVar(&opts.signalBurst, "signal-burst", 40, "mousemove/keydown/scroll burst per page")
	flagSet.Float64Var(&opts.connectRate, "connect-rate", 50, "new page connections per second per scope; 0 disables the limit")
	flagSet.IntVar(&opts.connectBurst, "connect-burst", 100, "page connection burst per scope")
	flagSet.Int64Var(&opts.beaconInFlight, "beacon-inflight", 64, "maximum end-of-session payloads in flight")
	flagSet.DurationVar(&opts.beaconTimeout, "beacon-timeout", 5*time.Second, "timeout of one end-of-session send")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, coreLogger, err := newLoggers(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting pagetrackd",
		zap.String("environment", string(cfg.Environment)),
		zap.String("apiBaseUrl", cfg.APIBaseURL),
		zap.String("projectId", cfg.ProjectID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("visitor store ready", zap.String("store", opts.store))

	httpClient := &http.Client{Timeout: 10 * time.Second}
	// end-of-session failures are tracker errors and follow the core logger
	beacon := delivery.NewHTTPBeacon(httpClient, opts.beaconInFlight, opts.beaconTimeout, coreLogger)

	feedServer := feed.NewServer(feed.Options{
		Config:     cfg,
		Store:      store,
		Beacon:     beacon,
		HTTPClient: httpClient,
		Limiter:    ratelimit.NewLimiter(opts.signalRate, opts.signalBurst),
		MaxPages:   opts.maxPages,
		Logger:     logger,
		CoreLogger: coreLogger,
	})

	var connectLimiter *ratelimit.Limiter
	if opts.connectRate > 0 {
		connectLimiter = ratelimit.NewLimiter(opts.connectRate, opts.connectBurst)
	}
	router := api.NewHandler(feedServer, string(cfg.Environment)).SetupRoutes(connectLimiter, opts.connectBurst, logger)

	// no WriteTimeout: page sockets stay open for the whole page lifetime
	srv := &http.Server{
		Addr:        opts.addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("server listening", zap.String("addr", opts.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// pages end their sessions first, then the queued beacons drain
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := feedServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("feed shutdown: %w", err))
		}
		if err := beacon.Wait(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("beacon drain: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// loadConfig layers the settings file, .env files and PAGETRACK_* variables
func loadConfig(opts options) (config.Config, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return config.Config{}, err
	}

	var settings config.Settings
	if opts.settingsFile != "" {
		loaded, err := config.LoadSettingsFile(opts.settingsFile)
		if err != nil {
			return config.Config{}, err
		}
		settings = loaded
	}

	settings, err := config.ApplyEnv(settings, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}

	return config.Resolve(settings, config.DetectEnvironment(opts.hostname))
}

// newLoggers returns the daemon logger and the logger handed to tracker
// clients, which stay silent outside development.
func newLoggers(cfg config.Config) (*zap.Logger, *zap.Logger, error) {
	if cfg.IsDevelopment() {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
		return logger, logger.Named("tracker"), nil
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}
	return logger, zap.NewNop(), nil
}

func openStore(ctx context.Context, opts options) (storage.Store, func(), error) {
	switch opts.store {
	case "memory":
		return storage.NewMemory(), func() {}, nil
	case "sqlite":
		store, err := storage.OpenSQLite(opts.sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "redis":
		store, err := storage.OpenRedis(ctx, opts.redisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", opts.store)
	}
}
