// Package di contains dependency injection tokens for the storage context.
package di

import (
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/storage/infra/pg"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/di"
)

// DI tokens for the storage module.
const (
	SnapshotSink = "storage.SnapshotSink"
	EventSink    = "storage.EventSink"
)

// GetSnapshotSink resolves the snapshot sink.
func GetSnapshotSink(sr di.ServiceRegistry) *pg.SnapshotSink {
	return di.GetToken[*pg.SnapshotSink](sr, SnapshotSink)
}

// GetEventSink resolves the event sink.
func GetEventSink(sr di.ServiceRegistry) *pg.EventSink {
	return di.GetToken[*pg.EventSink](sr, EventSink)
}
