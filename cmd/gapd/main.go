// gapd -- a Bluetooth GAP (Generic Access Profile) host stack daemon.
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
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gogap/internal/bluez"
	"github.com/dantte-lp/gogap/internal/config"
	"github.com/dantte-lp/gogap/internal/ctlproto"
	"github.com/dantte-lp/gogap/internal/gap"
	"github.com/dantte-lp/gogap/internal/hcisock"
	"github.com/dantte-lp/gogap/internal/l2capsock"
	gapmetrics "github.com/dantte-lp/gogap/internal/metrics"
	"github.com/dantte-lp/gogap/internal/peercache"
	appversion "github.com/dantte-lp/gogap/internal/version"
)

// shutdownTimeout is the maximum time to wait for the HTTP metrics server
// to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

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

	logger.Info("gapd starting",
		slog.String("version", appversion.Version),
		slog.String("control_socket", cfg.Control.SocketPath),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("hci_device_index", int(cfg.Adapter.HCIDeviceIndex)),
	)

	reg := prometheus.NewRegistry()
	collector := gapmetrics.NewCollector(reg)

	transport, err := hcisock.Open(cfg.Adapter.HCIDeviceIndex, logger)
	if err != nil {
		logger.Error("failed to open HCI transport", slog.String("error", err.Error()))
		return 1
	}
	defer transport.Close()

	cache := peercache.New(logger)

	// l2capsock.Opener resolves addresses by ACL handle through
	// ConnectionManager.AddressForHandle, which only exists once the
	// manager is built; the indirection through connMgr (assigned right
	// below) breaks that constructor cycle without needing a setter on
	// either side.
	var connMgr *gap.ConnectionManager
	l2capOpener := l2capsock.New(func(handle uint16) (gap.DeviceAddress, bool) {
		return connMgr.AddressForHandle(handle)
	}, logger)

	connMgr = gap.NewConnectionManager(
		transport, cache, l2capOpener, logger,
		gap.WithManagerMetrics(collector),
		gap.WithCreateConnectionTimeout(cfg.GAP.CreateConnectionTimeout),
		gap.WithDisconnectCooldown(cfg.GAP.DisconnectCooldown),
	)
	defer connMgr.Close()

	bredr := gap.NewBREDRDiscoveryManager(transport, cache, logger, gap.WithInquiryLength(cfg.GAP.InquiryLength))
	le := gap.NewLEDiscoveryManager(
		transport, cache, logger,
		gap.WithScanPeriod(cfg.GAP.LEScanPeriod),
		gap.WithScanParameters(cfg.GAP.LEScanWindow, cfg.GAP.LEScanInterval),
	)

	for _, svc := range cfg.Services {
		connMgr.AddServiceSearch(svc.UUID, nil, func(peer gap.PeerId, attrs map[uint16][]byte) {
			logger.Info("service search result",
				slog.Uint64("peer", uint64(peer)),
				slog.Int("attr_count", len(attrs)),
			)
		})
	}

	bridge, err := bluez.NewBridge(cfg.Adapter.BluezObjectPath, logger)
	if err != nil {
		logger.Warn("bluez bridge disabled", slog.String("error", err.Error()))
		bridge, _ = bluez.NewBridge("", logger)
	}
	defer bridge.Close()
	cache.Observe(bridge)

	if err := runServers(cfg, transport, connMgr, bredr, le, cache, reg, logger); err != nil {
		logger.Error("gapd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("gapd stopped")
	return 0
}

func runServers(
	cfg *config.Config,
	transport *hcisock.Transport,
	connMgr *gap.ConnectionManager,
	bredr *gap.BREDRDiscoveryManager,
	le *gap.LEDiscoveryManager,
	cache *peercache.Cache,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	ctlSrv := ctlproto.NewServer(connMgr, bredr, le, cache, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runDispatcher(gCtx, transport, connMgr, bredr, le, logger)
	})

	ln, err := listenControlSocket(cfg.Control.SocketPath)
	if err != nil {
		return fmt.Errorf("listen control socket: %w", err)
	}
	g.Go(func() error {
		logger.Info("control socket listening", slog.String("path", cfg.Control.SocketPath))
		return ctlSrv.Serve(gCtx, ln)
	})

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, connMgr, logger, metricsSrv, ln, cfg.Control.SocketPath)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runDispatcher is the single cooperative event-processing goroutine: it
// owns the HCI reader's output channel exclusively and fans each decoded
// event out to every component that might care, mirroring the single
// dispatcher goroutine the core's concurrency model assumes (§5).
// Pinned to an OS thread, like the sibling project's session timer loop.
// The LE Discovery Manager's scan-period rotation does not run here: it
// fires from its own time.AfterFunc timer.
func runDispatcher(
	ctx context.Context,
	transport *hcisock.Transport,
	connMgr *gap.ConnectionManager,
	bredr *gap.BREDRDiscoveryManager,
	le *gap.LEDiscoveryManager,
	logger *slog.Logger,
) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	events := transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				logger.Warn("HCI transport closed, dispatcher exiting")
				return nil
			}
			connMgr.HandleEvent(ev)
			bredr.HandleEvent(ev)
			le.HandleEvent(ev)
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration
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
	logger.Info("systemd watchdog enabled", slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

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
// SIGHUP -- logged only, nothing is reloaded; log level and GAP core
// parameters take effect on next restart (unlike the sibling's declarative BFD sessions, discovery
// sessions are owned by gapctl callers, not the config file).
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reload currently only affects log level on restart")
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(
	ctx context.Context,
	connMgr *gap.ConnectionManager,
	logger *slog.Logger,
	metricsSrv *http.Server,
	ln net.Listener,
	socketPath string,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if err := connMgr.Close(); err != nil {
		logger.Warn("connection manager close failed", slog.String("error", err.Error()))
	}

	_ = ln.Close()
	_ = os.Remove(socketPath)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenControlSocket(path string) (net.Listener, error) {
	_ = os.Remove(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create control socket dir %s: %w", dir, err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
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
