// gocaptpd daemon -- CapTP (Capability Transport Protocol) node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gocaptp/internal/builtin"
	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/config"
	"github.com/dantte-lp/gocaptp/internal/locator"
	captpmetrics "github.com/dantte-lp/gocaptp/internal/metrics"
	"github.com/dantte-lp/gocaptp/internal/netlayer"
	"github.com/dantte-lp/gocaptp/internal/server"
	appversion "github.com/dantte-lp/gocaptp/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// abortDrainReason is the reason reported to peers in op:abort when the
// daemon shuts down intentionally.
const abortDrainReason = "node shutting down"

// recorderMinAge is the minimum window age for the execution trace flight
// recorder. Captures the last window of activity for post-mortem debugging
// of session failures.
const recorderMinAge = 500 * time.Millisecond

// recorderMaxBytes is the upper bound on flight recorder window size.
const recorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("gocaptpd starting",
		slog.String("version", appversion.Version),
		slog.String("designator", cfg.Identity.Designator),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := captpmetrics.NewCollector(reg)

	bootstrap := captp.NewBootstrap()
	if err := registerSwissEntries(bootstrap, cfg.Bootstrap.SwissRegistrations, logger); err != nil {
		logger.Error("failed to register bootstrap objects", slog.String("error", err.Error()))
		return 1
	}

	manager := captp.NewManager(logger, captp.WithManagerMetrics(collector))
	defer func() { _ = manager.CloseAll(abortDrainReason) }()

	if err := runServers(cfg, manager, bootstrap, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("gocaptpd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("gocaptpd stopped")
	return 0
}

// runServers binds every configured netlayer, starts the admin and metrics
// HTTP servers, and blocks until a shutdown signal arrives and every
// goroutine has drained.
func runServers(
	cfg *config.Config,
	manager *captp.Manager,
	bootstrap *captp.Bootstrap,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	adminSrv := newAdminServer(cfg.Admin, manager, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	netlayers, err := bindNetlayers(gCtx, cfg.Netlayers, cfg.Identity, bootstrap, manager, logger)
	if err != nil {
		return fmt.Errorf("bind netlayers: %w", err)
	}
	defer closeNetlayers(netlayers, logger)

	for _, nl := range netlayers {
		g.Go(func() error {
			return acceptLoop(gCtx, nl, logger)
		})
	}

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, bootstrap, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, manager, logger, fr, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Netlayer Wiring
// -------------------------------------------------------------------------

// bindNetlayers constructs and binds one netlayer.Netlayer per configured
// entry, each advertising identity.Designator under that entry's transport.
func bindNetlayers(
	ctx context.Context,
	entries []config.NetlayerConfig,
	identity config.IdentityConfig,
	bootstrap *captp.Bootstrap,
	manager *captp.Manager,
	logger *slog.Logger,
) ([]*netlayer.Netlayer, error) {
	netlayers := make([]*netlayer.Netlayer, 0, len(entries))
	for _, nlCfg := range entries {
		driver, err := driverForTransport(nlCfg.Transport)
		if err != nil {
			return nil, fmt.Errorf("netlayer %s: %w", nlCfg.Transport, err)
		}

		loc := locator.NewNodeLocator(identity.Designator, nlCfg.Transport)
		builder, err := captp.NewBuilder(loc)
		if err != nil {
			return nil, fmt.Errorf("netlayer %s: new builder: %w", nlCfg.Transport, err)
		}
		builder.WithOptions(captp.WithBootstrap(bootstrap))

		nl := netlayer.New(driver, builder, manager, logger)
		if err := nl.Bind(ctx, identity.Designator, nlCfg.Addr); err != nil {
			for _, bound := range netlayers {
				_ = bound.Close()
			}
			return nil, fmt.Errorf("bind %s on %s: %w", nlCfg.Transport, nlCfg.Addr, err)
		}

		for _, advertised := range nl.Locators() {
			logger.Info("netlayer bound", slog.String("locator", advertised.String()))
		}
		netlayers = append(netlayers, nl)
	}
	return netlayers, nil
}

// errUnsupportedTransport indicates a configured netlayer names a
// transport no driver is wired for yet.
var errUnsupportedTransport = errors.New("captpd: unsupported netlayer transport")

// driverForTransport maps a configured transport name to its netlayer
// driver. "tcp+tls" is accepted by config validation but has no driver
// wired yet (no TLS certificate configuration surface exists).
func driverForTransport(transport string) (netlayer.Driver, error) {
	switch transport {
	case "tcp":
		return netlayer.NewTCPDriver(), nil
	case "onion":
		return netlayer.NewOverlayDriver(netlayer.NewTCPDriver(), "tcp"), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedTransport, transport)
	}
}

// acceptLoop repeatedly accepts sessions on nl until ctx is cancelled,
// running each resulting session's read loop in its own goroutine.
func acceptLoop(ctx context.Context, nl *netlayer.Netlayer, logger *slog.Logger) error {
	for {
		session, err := nl.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}

		logger.Info("session accepted", slog.String("peer", session.Peer().String()))
		go func() {
			if err := session.Run(ctx); err != nil {
				logger.Debug("session ended", slog.String("peer", session.Peer().String()),
					slog.String("error", err.Error()))
			}
		}()
	}
}

func closeNetlayers(netlayers []*netlayer.Netlayer, logger *slog.Logger) {
	for _, nl := range netlayers {
		if err := nl.Close(); err != nil {
			logger.Warn("failed to close netlayer", slog.String("error", err.Error()))
		}
	}
}

// registerSwissEntries constructs and registers a builtin.Object for each
// configured swiss registration.
func registerSwissEntries(bootstrap *captp.Bootstrap, regs []config.SwissRegistration, logger *slog.Logger) error {
	for _, reg := range regs {
		swissNum, err := config.DecodeSwissHex(reg.SwissHex)
		if err != nil {
			return fmt.Errorf("swiss registration %q: %w", reg.SwissHex, err)
		}
		obj, err := builtin.New(reg.Kind, logger)
		if err != nil {
			return fmt.Errorf("swiss registration %q: %w", reg.SwissHex, err)
		}
		bootstrap.RegisterSwiss(swissNum, obj)
		logger.Info("bootstrap object registered",
			slog.String("swiss_hex", reg.SwissHex), slog.String("kind", reg.Kind))
	}
	return nil
}

// -------------------------------------------------------------------------
// HTTP Servers
// -------------------------------------------------------------------------

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func newAdminServer(cfg config.AdminConfig, manager *captp.Manager, logger *slog.Logger) *http.Server {
	_, handler := server.New(manager, logger)
	return server.NewHTTPServer(cfg.Addr, handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Daemon Goroutines — watchdog + SIGHUP reload
// -------------------------------------------------------------------------

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	bootstrap *captp.Bootstrap,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, bootstrap, logger)
		return nil
	})
}

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	bootstrap *captp.Bootstrap,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, bootstrap, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from configPath, updates the
// dynamic log level, and re-registers bootstrap swiss entries. Errors are
// logged but do not stop the daemon; the previous configuration remains in
// effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, bootstrap *captp.Bootstrap, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	if err := registerSwissEntries(bootstrap, newCfg.Bootstrap.SwissRegistrations, logger); err != nil {
		logger.Error("failed to reload bootstrap registrations", slog.String("error", err.Error()))
	}

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. Exits immediately if no watchdog is
// configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(
	ctx context.Context,
	manager *captp.Manager,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if err := manager.CloseAll(abortDrainReason); err != nil {
		logger.Warn("errors aborting sessions during shutdown", slog.String("error", err.Error()))
	}

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts a Go runtime/trace
// FlightRecorder, keeping a rolling window of execution trace data for
// post-mortem debugging of session failures.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   recorderMinAge,
		MaxBytes: recorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", recorderMinAge), slog.Uint64("max_bytes", recorderMaxBytes))

	return fr
}

// -------------------------------------------------------------------------
// Configuration and Logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
