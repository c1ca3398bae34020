// Package binance adapts the Binance diff-depth stream and REST depth
// endpoint to the book engine's frame-source and snapshot-fetcher contracts.
package binance

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apperror"
)

// WebSocket request/response messages

// WSRequest is a WebSocket subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// WSResponse is a WebSocket subscription response.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// StreamEvent is the combined-streams wrapper for all stream messages.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthUpdateEvent is one diff depth update.
// Stream: <symbol>@depth@100ms or <symbol>@depth@1000ms
type DepthUpdateEvent struct {
	EventType     string     `json:"e"` // "depthUpdate"
	EventTime     int64      `json:"E"` // Event time (ms)
	Symbol        string     `json:"s"` // Symbol
	FirstUpdateID int64      `json:"U"` // First update ID in event
	FinalUpdateID int64      `json:"u"` // Final update ID in event
	Bids          [][]string `json:"b"` // Bid changes [price, qty]
	Asks          [][]string `json:"a"` // Ask changes [price, qty]
}

// EventTypeDepthUpdate is the depth event discriminator.
const EventTypeDepthUpdate = "depthUpdate"

// ToDelta validates the event and converts it to a domain delta. Zero
// quantities are preserved: in a diff stream they are level removals.
func (e *DepthUpdateEvent) ToDelta() (*domain.Delta, error) {
	if e.EventType != EventTypeDepthUpdate {
		return nil, apperror.New(apperror.CodeMalformedFrame,
			apperror.WithContext("unexpected event type "+e.EventType))
	}
	if e.Symbol == "" || e.FirstUpdateID <= 0 || e.FinalUpdateID < e.FirstUpdateID {
		return nil, apperror.New(apperror.CodeMalformedFrame,
			apperror.WithContext("missing or inconsistent sequence fields"))
	}

	bids, err := parseChanges(e.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseChanges(e.Asks)
	if err != nil {
		return nil, err
	}

	return &domain.Delta{
		Symbol:  e.Symbol,
		FirstID: e.FirstUpdateID,
		LastID:  e.FinalUpdateID,
		Bids:    bids,
		Asks:    asks,
	}, nil
}

// parseChanges converts raw [price, qty] pairs, keeping zero quantities.
func parseChanges(raw [][]string) ([]domain.Level, error) {
	levels := make([]domain.Level, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			return nil, apperror.New(apperror.CodeMalformedFrame,
				apperror.WithContext("level entry has fewer than 2 fields"))
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, apperror.New(apperror.CodeMalformedFrame,
				apperror.WithCause(err), apperror.WithContext("unparseable price"))
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, apperror.New(apperror.CodeMalformedFrame,
				apperror.WithCause(err), apperror.WithContext("unparseable quantity"))
		}
		if price.IsNegative() || qty.IsNegative() {
			return nil, apperror.New(apperror.CodeMalformedFrame,
				apperror.WithContext("negative price or quantity"))
		}
		levels = append(levels, domain.Level{Price: price, Qty: qty})
	}
	return levels, nil
}

// REST API responses (for book snapshots)

// DepthResponse is the REST depth endpoint response.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// ToSnapshot converts the REST response to a domain snapshot. Zero-quantity
// entries never appear in snapshots; they are skipped defensively by the
// ladder on install.
func (d *DepthResponse) ToSnapshot(symbol string) (*domain.Snapshot, error) {
	if d.LastUpdateID <= 0 {
		return nil, apperror.New(apperror.CodeSnapshotInvalid,
			apperror.WithContext("missing lastUpdateId"))
	}
	bids, err := parseChanges(d.Bids)
	if err != nil {
		return nil, apperror.New(apperror.CodeSnapshotInvalid, apperror.WithCause(err))
	}
	asks, err := parseChanges(d.Asks)
	if err != nil {
		return nil, apperror.New(apperror.CodeSnapshotInvalid, apperror.WithCause(err))
	}
	return &domain.Snapshot{
		Symbol:       symbol,
		LastUpdateID: d.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

// BinanceAPIError represents an error response from the Binance API.
type BinanceAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *BinanceAPIError) Error() string {
	return "binance API error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// Stream name helpers

// DepthStream returns the diff depth stream name for a symbol.
func DepthStream(symbol string, speedMs int) string {
	return strings.ToLower(symbol) + "@depth@" + strconv.Itoa(speedMs) + "ms"
}

// extractSymbolFromStream extracts the symbol from a stream name.
// Example: "btcusdt@depth@100ms" -> "BTCUSDT"
func extractSymbolFromStream(stream string) string {
	idx := strings.Index(stream, "@")
	if idx > 0 {
		return strings.ToUpper(stream[:idx])
	}
	return strings.ToUpper(stream)
}
