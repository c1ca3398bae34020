// Package liquidity implements the liquidity metrics bounded context.
package liquidity

import (
	"context"

	bookDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/app"
	liquidityDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/monolith"
)

// Module implements the liquidity bounded context.
type Module struct{}

// RegisterServices registers the metrics service with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, liquidityDI.MetricsService, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewService(log)
	})
	return nil
}

// Startup attaches one metrics engine per symbol to the book view queues and
// starts them.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()

	books := bookDI.GetBookService(mono.Services())
	svc := liquidityDI.GetMetricsService(mono.Services())

	for _, sym := range cfg.Exchange.Symbols {
		views := books.Views(sym)
		if views == nil {
			continue
		}

		engineCfg := app.EngineConfig{
			Symbol: sym,
			Period: cfg.Metrics.Period(),
			Compute: domain.ComputeConfig{
				Exchange:     cfg.Exchange.Name,
				BandsBps:     cfg.Metrics.DepthBandsBps,
				TopN:         cfg.Metrics.ImbalanceTopN,
				NotionalsUSD: cfg.Metrics.NotionalsDecimal(),
			},
		}

		if err := svc.Attach(engineCfg, views, log); err != nil {
			return err
		}
	}

	svc.Start(ctx)
	log.Info(ctx, "liquidity module started",
		"period", cfg.Metrics.Period().String(),
		"bands_bps", cfg.Metrics.DepthBandsBps,
	)
	return nil
}
