// Package app contains the application services for the order book context.
package app

import (
	"context"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
)

// SnapshotFetcher retrieves a full book snapshot tagged with a sequence
// cursor. Implementations must be callable concurrently with delta reception
// and honor a per-symbol rate limit.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, symbol string, depth int) (*domain.Snapshot, error)
}

// Event is the engine inbox element: either a parsed delta or a stream-reset
// sentinel emitted by the transport after a reconnect.
type Event struct {
	Delta *domain.Delta
	Reset bool
}

// ResetEvent returns the stream-reset sentinel.
func ResetEvent() Event {
	return Event{Reset: true}
}

// DeltaEvent wraps a delta for the engine inbox.
func DeltaEvent(d *domain.Delta) Event {
	return Event{Delta: d}
}
