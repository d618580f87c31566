package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vifd/api"
	"vifd/internal/config"
	"vifd/internal/logger"
	"vifd/internal/metrics"
	"vifd/internal/observability"
	"vifd/internal/platform"
	"vifd/pkg/flow"
	"vifd/pkg/lifecycle"
	"vifd/pkg/network"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const closeTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config/vifd.yaml", "path to config file")
	printConfig := flag.Bool("print-config", false, "print the effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	gin.SetMode(gin.ReleaseMode)
	log := logger.New(cfg.Logging.Level)
	log.Info("config loaded", map[string]any{"path": *configPath})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, cfg, log); err != nil {
		log.Error("vifd exited", map[string]any{"error": err})
		os.Exit(1)
	}
	log.Info("shutdown", nil)
}

func run(ctx context.Context, configPath string, cfg *config.Config, log *logger.Logger) error {
	metricsSrv := metrics.New()
	traces := observability.NewTraceStore(cfg.Observability.TracesLimit)
	alerts := observability.NewAlertStore(cfg.Observability.AlertsLimit)
	log.AddHook(observability.LogHook(alerts))

	driver, err := platform.NewDriver(platform.Options{
		Driver:     cfg.Interface.Driver,
		ReadBuffer: cfg.Loop.ReadBuffer,
		Log:        log,
	})
	if err != nil {
		return err
	}
	spec, err := buildSpec(cfg.Interface)
	if err != nil {
		return err
	}

	flows := flow.NewTable(0)
	manager := newManager(cfg.Loop, driver, spec, flows, log, metricsSrv)

	if err := config.Watch(configPath, func(next *config.Config) {
		log.SetLevel(next.Logging.Level)
		log.Info("config reloaded", map[string]any{"level": next.Logging.Level})
	}, func(err error) {
		log.Warn("config reload rejected", map[string]any{"error": err})
	}); err != nil {
		log.Warn("config watch unavailable", map[string]any{"error": err})
	}

	router := api.NewRouter(cfg.API, &api.Handlers{
		Interfaces:    manager,
		Flows:         flows,
		Metrics:       metricsSrv,
		Observability: traces,
		Alerts:        alerts,
		Log:           log,
	})

	observability.StartAlerts(ctx, metricsSrv, alerts, observability.AlertsConfig{
		ErrorsThreshold:       cfg.Observability.ErrorsThreshold,
		LoopFailuresThreshold: cfg.Observability.LoopFailuresThreshold,
	}, time.Duration(cfg.Observability.AlertIntervalSeconds)*time.Second)
	if err := metrics.StartRemoteWrite(ctx, cfg.Metrics.Export, metricsSrv); err != nil {
		log.Warn("metrics export disabled", map[string]any{"error": err})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.StartServer(gctx, cfg.Metrics)
	})
	g.Go(func() error {
		log.Info("api listening", map[string]any{"address": cfg.API.Address})
		return api.Serve(gctx, cfg.API.Address, router)
	})
	if cfg.API.HTTP3.Enabled {
		g.Go(func() error {
			log.Info("http3 listening", map[string]any{"address": cfg.API.HTTP3.Address})
			return api.ServeHTTP3(gctx, cfg.API.HTTP3, router)
		})
	}

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if cerr := manager.Close(closeCtx); cerr != nil {
		log.Warn("interface teardown failed", map[string]any{"error": cerr})
	}
	return err
}

// buildSpec converts validated interface config into a driver spec.
func buildSpec(ic config.InterfaceConfig) (network.Spec, error) {
	spec := network.Spec{
		Name:    ic.Name,
		MTU:     ic.MTU,
		Address: net.ParseIP(ic.Address).To4(),
		Netmask: net.ParseIP(ic.Netmask).To4(),
	}
	if spec.Address == nil {
		return network.Spec{}, fmt.Errorf("interface address %q is not IPv4", ic.Address)
	}
	if spec.Netmask == nil {
		return network.Spec{}, fmt.Errorf("interface netmask %q is not IPv4", ic.Netmask)
	}
	for _, raw := range ic.Routes {
		_, dst, err := net.ParseCIDR(raw)
		if err != nil {
			return network.Spec{}, fmt.Errorf("interface route %q: %w", raw, err)
		}
		spec.Routes = append(spec.Routes, dst)
	}
	return spec, nil
}

// newManager wires the flow table into the packet loop. Flows are cleared
// while the new device is created, before its loop can record anything.
func newManager(
	loop config.LoopConfig,
	driver network.Driver,
	spec network.Spec,
	flows *flow.Table,
	log *logger.Logger,
	metricsSrv *metrics.Metrics,
) *lifecycle.Manager {
	return lifecycle.NewManager(lifecycle.Options{
		Driver:       driver,
		Spec:         spec,
		StartTimeout: loop.StartTimeout,
		StopTimeout:  loop.StopTimeout,
		Handler:      flows.Add,
		OnCreate:     func(network.Descriptor) { flows.Reset() },
		Log:          log,
		Metrics:      metricsSrv,
	})
}
