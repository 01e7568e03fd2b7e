package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
	"github.com/dantte-lp/goudpstack/internal/config"
	"github.com/dantte-lp/goudpstack/internal/ipstack"
	udpmetrics "github.com/dantte-lp/goudpstack/internal/metrics"
	"github.com/dantte-lp/goudpstack/internal/netio"
	"github.com/dantte-lp/goudpstack/internal/udp"
	appversion "github.com/dantte-lp/goudpstack/internal/version"
)

// ifaceResolveTimeout bounds how long serve waits for the interface
// monitor to discover a named interface declared in a listener entry
// before giving up on it and logging a warning.
const ifaceResolveTimeout = 2 * time.Second

// ifacePollInterval is how often SystemInterfaceMonitor refreshes the
// interface/address set it hands to Iface.IsLocalAddr.
const ifacePollInterval = 2 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the UDP/IPv4 demultiplexer daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	logger.Info("udpstackd starting",
		slog.String("version", appversion.Version),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("listeners", len(cfg.Listeners)),
	)

	reg := prometheus.NewRegistry()
	collector := udpmetrics.NewCollector(reg)

	stack, err := netio.NewRawStack(logger)
	if err != nil {
		return fmt.Errorf("open raw sockets (requires CAP_NET_RAW): %w", err)
	}
	defer closeLogged(stack, logger, "close raw sockets")

	core := udp.NewCore(stack, logger, udp.WithTTL(cfg.UDP.TTL), udp.WithMetrics(collector))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	mon := netio.NewSystemInterfaceMonitor(logger, ifacePollInterval)
	g.Go(func() error {
		return mon.Run(gCtx)
	})
	g.Go(func() error {
		for range mon.Events() {
			// Drained only so the channel doesn't block the monitor;
			// Iface.IsLocalAddr already reflects the latest poll.
		}
		return nil
	})

	listeners, err := registerListeners(gCtx, core, mon, cfg.Listeners, logger)
	if err != nil {
		return fmt.Errorf("register declarative listeners: %w", err)
	}
	defer resetListeners(listeners, core)

	receiveLoops, err := startReceiveLoops(gCtx, g, core, mon, cfg.Listeners, logger)
	if err != nil {
		return fmt.Errorf("start receive loops: %w", err)
	}
	defer closeReceiveLoops(receiveLoops, logger)

	g.Go(func() error {
		return runMetricsPoller(gCtx, core, collector)
	})

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return shutdownServer(metricsSrv)
	})

	logger.Info("udpstackd ready")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run daemon: %w", err)
	}

	logger.Info("udpstackd stopped")
	return nil
}

// echoListener is the default Receiver attached to every declarative
// listener: it logs accepted payloads and stops further dispatch, giving
// operators a way to confirm a listener is alive without standing up a
// separate RPC management plane (see DESIGN.md).
type echoListener struct {
	name   string
	logger *slog.Logger
}

func (e *echoListener) RecvUDPIP4Packet(_ ipstack.RxInfo, rx udp.RxInfo, data bufchain.Ref) udp.Result {
	payload := make([]byte, data.TotalLength())
	data.TakeBytes(len(payload), payload)
	e.logger.Debug("datagram accepted",
		slog.String("listener", e.name),
		slog.Int("src_port", int(rx.SrcPort)),
		slog.Int("dst_port", int(rx.DstPort)),
		slog.Bool("has_checksum", rx.HasChecksum),
		slog.Int("bytes", len(payload)),
	)
	return udp.AcceptStop
}

// registerListeners attaches one udp.Listener per configured entry,
// resolving each entry's named interface (if any) through mon.
func registerListeners(ctx context.Context, core *udp.Core, mon *netio.SystemInterfaceMonitor, entries []config.ListenerConfig, logger *slog.Logger) ([]*udp.Listener, error) {
	attached := make([]*udp.Listener, 0, len(entries))

	for i, lc := range entries {
		addr, err := lc.ListenAddr()
		if err != nil {
			return attached, fmt.Errorf("listeners[%d]: %w", i, err)
		}

		var iface *netio.Iface
		if lc.Interface != "" {
			iface, err = resolveIface(ctx, mon, lc.Interface)
			if err != nil {
				logger.Warn("listener interface not found, registering without one",
					slog.String("interface", lc.Interface), slog.String("error", err.Error()))
			}
		}

		params := udp.ListenParams{
			LocalAddr:         addr,
			LocalPort:         lc.Port,
			AcceptNonlocalDst: lc.AcceptNonlocalDst,
		}
		if iface != nil {
			params.Iface = iface
		}

		l := &udp.Listener{}
		recv := &echoListener{name: fmt.Sprintf("listeners[%d]", i), logger: logger}
		l.StartListening(core, params, recv)
		attached = append(attached, l)

		logger.Info("listener registered",
			slog.String("addr", lc.Addr), slog.Int("port", int(lc.Port)),
			slog.String("interface", lc.Interface), slog.Bool("accept_nonlocal_dst", lc.AcceptNonlocalDst),
		)
	}

	return attached, nil
}

func resetListeners(listeners []*udp.Listener, _ *udp.Core) {
	for _, l := range listeners {
		l.ResetListener()
	}
}

// startReceiveLoops opens one raw-socket ReceiveLoop per distinct named
// interface referenced by entries, plus one wildcard loop (unbound to any
// device) if any entry leaves Interface empty or no named loop was opened.
func startReceiveLoops(ctx context.Context, g *errgroup.Group, core *udp.Core, mon *netio.SystemInterfaceMonitor, entries []config.ListenerConfig, logger *slog.Logger) ([]*netio.ReceiveLoop, error) {
	seen := make(map[string]struct{})
	needWildcard := false
	var loops []*netio.ReceiveLoop

	for _, lc := range entries {
		if lc.Interface == "" {
			needWildcard = true
			continue
		}
		if _, ok := seen[lc.Interface]; ok {
			continue
		}
		seen[lc.Interface] = struct{}{}

		iface, err := resolveIface(ctx, mon, lc.Interface)
		if err != nil {
			logger.Warn("skipping receive loop for unresolved interface",
				slog.String("interface", lc.Interface), slog.String("error", err.Error()))
			continue
		}

		loop, err := netio.NewReceiveLoop(core, iface, logger)
		if err != nil {
			closeReceiveLoops(loops, logger)
			return nil, fmt.Errorf("open receive loop on %s: %w", lc.Interface, err)
		}
		loops = append(loops, loop)
		g.Go(func() error { return loop.Run(ctx) })
	}

	if needWildcard || len(loops) == 0 {
		iface := &netio.Iface{}
		loop, err := netio.NewReceiveLoop(core, iface, logger)
		if err != nil {
			closeReceiveLoops(loops, logger)
			return nil, fmt.Errorf("open wildcard receive loop: %w", err)
		}
		loops = append(loops, loop)
		g.Go(func() error { return loop.Run(ctx) })
	}

	return loops, nil
}

func closeReceiveLoops(loops []*netio.ReceiveLoop, logger *slog.Logger) {
	for _, l := range loops {
		if err := l.Close(); err != nil {
			logger.Warn("failed to close receive loop", slog.String("error", err.Error()))
		}
	}
}

// resolveIface polls mon for name, retrying briefly since the monitor's
// first poll may not have completed yet when serve starts.
func resolveIface(ctx context.Context, mon *netio.SystemInterfaceMonitor, name string) (*netio.Iface, error) {
	deadline := time.Now().Add(ifaceResolveTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if iface, ok := mon.Iface(name); ok {
			return iface, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("interface %q not found after %s", name, ifaceResolveTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// runMetricsPoller periodically copies core's listener/association
// counts into the Prometheus gauges, polling manager state rather than
// pushing every mutation through the metrics interface.
func runMetricsPoller(ctx context.Context, core *udp.Core, collector *udpmetrics.Collector) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			collector.SetListeners(core.ListenerCount())
			collector.SetAssociations(core.AssociationCount())
		}
	}
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

func shutdownServer(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
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

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func closeLogged(c interface{ Close() error }, logger *slog.Logger, action string) {
	if err := c.Close(); err != nil {
		logger.Warn(action+" failed", slog.String("error", err.Error()))
	}
}
