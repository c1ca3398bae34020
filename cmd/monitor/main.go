// Package main is the entry point for the liquidity crunch monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book"
	bookDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/storage"
	storageDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/storage/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apm"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/config"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/health"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/metrics"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/monolith"
)

// Exit codes fixed by the CLI contract.
const (
	exitOK          = 0
	exitConfig      = 1
	exitExternal    = 2
	exitInterrupted = 130
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// symbolList collects repeated --symbol flags.
type symbolList []string

func (s *symbolList) String() string {
	return strings.Join(*s, ",")
}

func (s *symbolList) Set(v string) error {
	*s = append(*s, strings.ToUpper(v))
	return nil
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	var symbols symbolList
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Var(&symbols, "symbol", "Symbol to monitor (repeatable)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("liquidity-crunch-monitor %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(exitOK)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals. SIGINT maps to the conventional 130.
	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		if sig == syscall.SIGINT {
			interrupted.Store(true)
		}
		cancel()
	}()

	code := run(ctx, *configPath, symbols)
	if code == exitOK && interrupted.Load() {
		code = exitInterrupted
	}
	os.Exit(code)
}

func run(ctx context.Context, configPath string, symbols []string) int {
	// Load configuration. Missing DB_PASSWORD fails here.
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfig
	}
	if len(symbols) > 0 {
		cfg.Exchange.Symbols = symbols
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting liquidity crunch monitor",
		"version", version,
		"environment", cfg.App.Environment,
		"exchange", cfg.Exchange.Name,
		"symbols", cfg.Exchange.Symbols,
	)

	// Initialize observability if enabled.
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.OTLPGRPCProvider, log))

		if _, err := metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		); err != nil {
			log.Warn(ctx, "failed to initialize metric provider", "error", err)
		} else {
			port := cfg.Telemetry.PrometheusPort
			if port == 0 {
				port = 9090
			}
			go func() {
				if err := metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port))); err != nil {
					log.Warn(ctx, "prometheus metrics server stopped", "error", err)
				}
			}()
			log.Info(ctx, "prometheus metrics server started", "port", port)
		}
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	// Health endpoints; the supervisor drives the degraded state.
	healthServer := health.NewServer(cfg.App.HealthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.App.HealthPort)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		healthServer.Stop(stopCtx)
	}()

	// Create monolith (application container). A misconfigured store fails
	// startup rather than the first write.
	mono, err := monolith.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to store: %v\n", err)
		return exitExternal
	}
	defer mono.Close()

	// Modules in dependency order: the pipeline is a DAG, leaves first.
	modules := []monolith.Module{
		&book.Module{},      // Frame source, parser, per-symbol book engines
		&liquidity.Module{}, // Metrics engines consuming book views
		&anomaly.Module{},   // Detector consuming metrics samples
		&storage.Module{},   // Sinks consuming samples and events
	}

	if err := mono.RegisterModules(modules...); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register modules: %v\n", err)
		return exitConfig
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		log.Error(ctx, "failed to start modules", "error", err)
		return exitExternal
	}

	return supervise(ctx, mono, healthServer, log)
}

// supervise watches the pipeline health. A stale book or an open sink
// breaker flips the health endpoint to degraded; continuous degradation past
// the terminal grace exits with code 2.
func supervise(ctx context.Context, mono monolith.Monolith, healthServer *health.Server, log logger.LoggerInterface) int {
	books := bookDI.GetBookService(mono.Services())
	snapshotSink := storageDI.GetSnapshotSink(mono.Services())
	eventSink := storageDI.GetEventSink(mono.Services())

	healthServer.RegisterCheck("books", func(ctx context.Context) (bool, string) {
		if books.AnyStale() {
			return false, "one or more books are stale"
		}
		return true, ""
	})
	healthServer.RegisterCheck("sinks", func(ctx context.Context) (bool, string) {
		if !snapshotSink.Healthy() || !eventSink.Healthy() {
			return false, "sink circuit breaker open"
		}
		return true, ""
	})

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var degradedSince time.Time

	for {
		select {
		case <-ctx.Done():
			log.Info(context.Background(), "shutting down")
			// Give the sinks a moment to drain and flush synchronously.
			time.Sleep(time.Second)
			return exitOK

		case now := <-ticker.C:
			degraded := books.AnyStale() || !snapshotSink.Healthy() || !eventSink.Healthy()

			if !degraded {
				degradedSince = time.Time{}
				continue
			}

			if degradedSince.IsZero() {
				degradedSince = now
				log.Warn(ctx, "pipeline degraded",
					"book_states", books.States(),
					"snapshot_sink_healthy", snapshotSink.Healthy(),
					"event_sink_healthy", eventSink.Healthy(),
				)
				continue
			}

			if now.Sub(degradedSince) >= mono.Config().App.TerminalGrace {
				log.Error(ctx, "persistent external failure, exiting",
					"degraded_for", now.Sub(degradedSince).String(),
				)
				return exitExternal
			}
		}
	}
}
