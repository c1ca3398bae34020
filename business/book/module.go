// Package book implements the order book bounded context: stream ingestion,
// snapshot/delta synchronization, and per-symbol book reconstruction.
package book

import (
	"context"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/app"
	bookDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/infra/binance"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/config"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/monolith"
)

// Module implements the book bounded context.
type Module struct{}

// RegisterServices registers all book services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, bookDI.SnapshotFetcher, func(sr di.ServiceRegistry) app.SnapshotFetcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		fetcher, err := binance.NewSnapshotFetcher(binance.FetcherConfig{
			BaseURL: cfg.Exchange.RESTURL,
			Timeout: cfg.Book.SnapshotTimeout,
		}, log)
		if err != nil {
			panic("failed to create snapshot fetcher: " + err.Error())
		}
		return fetcher
	})

	di.RegisterToken(c, bookDI.BookService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		fetcher := bookDI.GetSnapshotFetcher(sr)

		engineCfgs := make([]app.EngineConfig, 0, len(cfg.Exchange.Symbols))
		for _, sym := range cfg.Exchange.Symbols {
			ec := app.DefaultEngineConfig(sym)
			ec.ViewDepth = cfg.Book.ViewDepth
			ec.SnapshotDepth = cfg.Book.SnapshotDepth
			ec.SnapshotTimeout = cfg.Book.SnapshotTimeout
			ec.MaxResyncs = cfg.Book.MaxResyncs
			ec.ResyncWindow = cfg.Book.ResyncWindow
			engineCfgs = append(engineCfgs, ec)
		}

		svc, err := app.NewService(engineCfgs, fetcher, log)
		if err != nil {
			panic("failed to create book service: " + err.Error())
		}
		return svc
	})

	di.RegisterToken(c, bookDI.Feed, func(sr di.ServiceRegistry) *binance.Feed {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		svc := bookDI.GetBookService(sr)

		feedCfg := binance.DefaultFeedConfig(cfg.Exchange.Symbols)
		feedCfg.WebSocketURL = cfg.Exchange.WebSocketURL
		feedCfg.DepthSpeedMs = cfg.Exchange.DepthSpeedMs
		feedCfg.InitialBackoff = cfg.Exchange.InitialBackoff
		feedCfg.MaxBackoff = cfg.Exchange.MaxBackoff

		feed, err := binance.NewFeed(feedCfg, svc.Inboxes(), log)
		if err != nil {
			panic("failed to create depth feed: " + err.Error())
		}
		return feed
	})

	return nil
}

// Startup launches the engines and connects the depth stream.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	svc := bookDI.GetBookService(mono.Services())
	svc.Start(ctx)

	feed := bookDI.GetFeed(mono.Services())
	if err := feed.Connect(ctx); err != nil {
		return err
	}

	log.Info(ctx, "book module started", "symbols", svc.Symbols())
	return nil
}
