// Package storage implements the persistence bounded context: durable,
// idempotent sinks for metrics samples and anomaly events.
package storage

import (
	"context"

	"gorm.io/gorm"

	anomalyDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/di"
	liquidityDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/di"
	storageDI "github.com/JudyChang-TW/liquidity-crunch-monitor/business/storage/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/storage/infra/pg"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/config"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/monolith"
)

// Module implements the storage bounded context.
type Module struct{}

// RegisterServices registers both sinks with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, storageDI.SnapshotSink, func(sr di.ServiceRegistry) *pg.SnapshotSink {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		db := sr.Get("db").(*gorm.DB)
		persist := liquidityDI.GetMetricsService(sr).Persist()

		sink, err := pg.NewSnapshotSink(db, persist, pg.SinkConfig{
			BatchSize: cfg.Database.BatchSize,
		}, log)
		if err != nil {
			panic("failed to create snapshot sink: " + err.Error())
		}
		return sink
	})

	di.RegisterToken(c, storageDI.EventSink, func(sr di.ServiceRegistry) *pg.EventSink {
		log := sr.Get("logger").(logger.LoggerInterface)
		db := sr.Get("db").(*gorm.DB)
		events := anomalyDI.GetDetector(sr).Events()

		sink, err := pg.NewEventSink(db, events, log)
		if err != nil {
			panic("failed to create event sink: " + err.Error())
		}
		return sink
	})

	return nil
}

// Startup migrates the schema and launches both writer goroutines.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	snapshots := storageDI.GetSnapshotSink(mono.Services())
	if err := snapshots.Migrate(); err != nil {
		return err
	}
	events := storageDI.GetEventSink(mono.Services())
	if err := events.Migrate(); err != nil {
		return err
	}

	go snapshots.Run(ctx)
	go events.Run(ctx)

	log.Info(ctx, "storage module started")
	return nil
}
