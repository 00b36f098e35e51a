// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cmd wires the node's cobra CLI: the root command that runs a
// node to completion, and diagnostic subcommands that drive it over the
// control HTTP surface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/adrcs/ip400/internal/chat"
	"github.com/adrcs/ip400/internal/config"
	"github.com/adrcs/ip400/internal/control"
	"github.com/adrcs/ip400/internal/hostlink"
	"github.com/adrcs/ip400/internal/metrics"
	"github.com/adrcs/ip400/internal/node"
	"github.com/adrcs/ip400/internal/radio"
	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

// NewCommand builds the ip400node root command.
func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ip400node",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	cmd.AddCommand(newTestModeCommand())
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newMeshCommand())
	cmd.AddCommand(newBeaconCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("ip400node - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogger(cfg)
	log := slog.Default()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	var cleanup func(context.Context) error
	if cfg.Metrics.OTLPEndpoint != "" {
		cleanup, err = initTracer(cfg)
		if err != nil {
			return fmt.Errorf("failed to setup tracing: %w", err)
		}
	} else {
		cleanup = func(context.Context) error { return nil }
	}

	runCtx, cancel := context.WithCancel(ctx)

	chatSink := &chat.RecentSink{Capacity: 50}
	hw := radio.NewLoopbackHardware()
	n := node.New(cfg, hw, chatSink, log)

	relay, err := hostlink.NewRelay(cfg.HostLink.ListenAddr, cfg.HostLink.RemoteAddr, log)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start host-link relay: %w", err)
	}
	n.Relay = relay

	setupMeshAgingJob(scheduler, n, cfg.Scheduler.MeshTickSeconds)
	scheduler.Start()

	metricsReg := metrics.NewMetrics()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Bind, cfg.Metrics.Port, promHandler())
	}

	controlServer := control.NewServer(controlAddr(cfg), n.Engine, n.Counters, n.Mesh, n.Beacon)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		return n.Run(gctx)
	})
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Run(gctx)
		})
	}
	g.Go(func() error {
		return controlServer.Run(gctx)
	})
	g.Go(func() error {
		return sampleCounters(gctx, n, metricsReg)
	})

	stop := func(sig os.Signal) {
		log.Error("shutting down due to signal", slog.Any("signal", sig))
		cancel()

		wg := new(sync.WaitGroup)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.StopJobs(); err != nil {
				log.Error("failed to stop scheduler jobs", slog.String("error", err.Error()))
			}
			if err := scheduler.Shutdown(); err != nil {
				log.Error("failed to stop scheduler", slog.String("error", err.Error()))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Close(); err != nil {
				log.Error("failed to close host-link relay", slog.String("error", err.Error()))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			const timeout = 5 * time.Second
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
			defer shutdownCancel()
			if err := cleanup(shutdownCtx); err != nil {
				log.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()

		const timeout = 10 * time.Second
		done := make(chan struct{})
		go func() {
			defer close(done)
			wg.Wait()
		}()
		select {
		case <-done:
			log.Info("shutdown complete")
		case <-time.After(timeout):
			log.Error("shutdown timed out, forcing exit")
		}
	}
	defer stop(syscall.SIGINT)

	shutdown.AddWithParam(stop)
	shutdown.Listen(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	if err := g.Wait(); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("node worker failed: %w", err)
	}
	return nil
}

// loadConfig reads the environment-driven configuration. Library-side
// validation is skipped; runRoot applies Config.Validate itself so a
// rejected configuration reports this package's sentinel errors.
func loadConfig() (*config.Config, error) {
	cfg, err := configulator.New[config.Config]().LoadWithoutValidation()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupLogger configures the structured logger per cfg.LogLevel.
func setupLogger(cfg *config.Config) {
	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	default:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	}
	slog.SetDefault(logger)
}

// setupMeshAgingJob schedules the mesh table's Lost/Unused aging sweep,
// separate from the hot cooperative tick that runs inside node.Run.
func setupMeshAgingJob(scheduler gocron.Scheduler, n *node.Node, periodSeconds int) {
	if periodSeconds <= 0 {
		periodSeconds = 60
	}
	_, err := scheduler.NewJob(
		gocron.DurationJob(time.Duration(periodSeconds)*time.Second),
		gocron.NewTask(func() {
			n.Mesh.Tick()
		}),
	)
	if err != nil {
		slog.Error("failed to schedule mesh aging job", slog.String("error", err.Error()))
	}
}

func controlAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Metrics.Bind, cfg.Metrics.Port+1)
}

func initTracer(cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "ip400node"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resources: %w", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown, nil
}

func promHandler() http.Handler {
	return promhttp.Handler()
}

// sampleCounters periodically copies the engine and dispatcher's atomic
// counters into the Prometheus series.
func sampleCounters(ctx context.Context, n *node.Node, reg *metrics.Metrics) error {
	const period = time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var prev metrics.Sample
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c := n.Counters
			cur := metrics.Sample{
				Tx:              c.TxCount.Load(),
				Rx:              c.RxCount.Load(),
				CRCErrors:       c.CRCErrors.Load(),
				Timeouts:        c.Timeouts.Load(),
				OKFrames:        c.OKFrames.Load(),
				Dropped:         c.Dropped.Load(),
				Duplicates:      c.Duplicates.Load(),
				Beacons:         c.Beacons.Load(),
				Repeated:        c.Repeated.Load(),
				PLLErrors:       c.PLLErrors.Load(),
				VCOErrors:       c.VCOErrors.Load(),
				SequencerErrors: c.SequencerErrors.Load(),
			}
			reg.Observe(prev, cur)
			prev = cur

			entries := n.Mesh.List()
			reg.MeshEntries.Set(float64(len(entries)))
			latest := -1
			for i, e := range entries {
				if latest < 0 || e.LastHeard.After(entries[latest].LastHeard) {
					latest = i
				}
			}
			if latest >= 0 {
				reg.LastRSSI.Set(float64(entries[latest].RSSI))
			}
		}
	}
}
