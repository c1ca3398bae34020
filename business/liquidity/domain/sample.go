// Package domain contains the core domain types for the liquidity metrics
// context. All arithmetic is exact decimal; values cross to float64 only at
// the anomaly-detector boundary.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a hypothetical execution.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BandDepth is the resting liquidity within one basis-point band of mid.
type BandDepth struct {
	Bps     int
	BidQty  decimal.Decimal // Base quantity within mid*(1 - bps/10000)
	AskQty  decimal.Decimal // Base quantity within mid*(1 + bps/10000)
	BidUSD  decimal.Decimal // Notional (price * qty) on the bid side
	AskUSD  decimal.Decimal // Notional on the ask side
}

// TotalUSD returns the combined two-sided notional depth.
func (b BandDepth) TotalUSD() decimal.Decimal {
	return b.BidUSD.Add(b.AskUSD)
}

// TotalQty returns the combined two-sided base depth.
func (b BandDepth) TotalQty() decimal.Decimal {
	return b.BidQty.Add(b.AskQty)
}

// SlippageEstimate is the cost of sweeping the book for one notional size.
type SlippageEstimate struct {
	NotionalUSD  decimal.Decimal
	Side         Side
	TargetQty    decimal.Decimal // NotionalUSD / mid
	FilledQty    decimal.Decimal
	AvgFill      decimal.Decimal
	SlippageAbs  decimal.Decimal // |avg_fill - mid|
	SlippageBps  decimal.Decimal
	Insufficient bool // Side exhausted before the target quantity filled
}

// Sample quantifies instantaneous liquidity for one symbol at one instant.
type Sample struct {
	Symbol       string
	Exchange     string
	Timestamp    time.Time
	LastUpdateID int64

	Mid        decimal.Decimal
	SpreadAbs  decimal.Decimal
	SpreadBps  decimal.Decimal
	BestBidQty decimal.Decimal
	BestAskQty decimal.Decimal
	BidLevels  int
	AskLevels  int

	Depth     []BandDepth
	Imbalance decimal.Decimal // In [-1, +1] over the top-N levels
	Slippage  []SlippageEstimate
}

// DepthBand returns the band for bps, or nil if not configured.
func (s *Sample) DepthBand(bps int) *BandDepth {
	for i := range s.Depth {
		if s.Depth[i].Bps == bps {
			return &s.Depth[i]
		}
	}
	return nil
}

// SlippageFor returns the estimate for (notional, side), or nil.
func (s *Sample) SlippageFor(notional decimal.Decimal, side Side) *SlippageEstimate {
	for i := range s.Slippage {
		if s.Slippage[i].Side == side && s.Slippage[i].NotionalUSD.Equal(notional) {
			return &s.Slippage[i]
		}
	}
	return nil
}
