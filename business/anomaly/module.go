// Package anomaly implements the anomaly detection bounded context.
package anomaly

import (
	"context"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/app"
	anomalyDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/di"
	liquidityDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/config"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/monolith"
)

// Module implements the anomaly bounded context.
type Module struct{}

// RegisterServices registers the detector with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, anomalyDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		samples := liquidityDI.GetMetricsService(sr).Samples()

		detCfg := app.DefaultDetectorConfig()
		detCfg.WindowSize = cfg.Anomaly.WindowSize
		detCfg.MinSamples = cfg.Anomaly.MinSamples
		detCfg.Cooldown = cfg.Anomaly.Cooldown
		detCfg.MonitoredMetrics = cfg.Anomaly.MonitoredMetrics

		d, err := app.NewDetector(detCfg, samples, log)
		if err != nil {
			panic("failed to create anomaly detector: " + err.Error())
		}
		return d
	})
	return nil
}

// Startup launches the detector goroutine.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	d := anomalyDI.GetDetector(mono.Services())
	go d.Run(ctx)

	mono.Logger().Info(ctx, "anomaly module started",
		"window", mono.Config().Anomaly.WindowSize,
		"metrics", mono.Config().Anomaly.MonitoredMetrics,
	)
	return nil
}
