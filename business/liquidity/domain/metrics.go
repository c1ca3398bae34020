package domain

import (
	"time"

	"github.com/shopspring/decimal"

	bookDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apperror"
)

// divPrecision is the number of digits after the decimal point kept by every
// division (DivRound rounds to decimal places), so a quotient below 1 keeps
// fewer than 28 significant digits.
const divPrecision = 28

var (
	bpsFactor = decimal.NewFromInt(10000)
	one       = decimal.NewFromInt(1)
)

// ComputeConfig parameterizes sample computation.
type ComputeConfig struct {
	Exchange     string
	BandsBps     []int             // Depth bands, e.g. 10, 50, 100
	TopN         int               // Levels per side for imbalance
	NotionalsUSD []decimal.Decimal // Slippage notional sizes
}

// Compute derives a full metrics sample from a book view. It returns an
// error when either side is empty; the caller skips the sample and counts it.
func Compute(v *bookDomain.BookView, cfg ComputeConfig, at time.Time) (*Sample, error) {
	bestBid := v.BestBid()
	bestAsk := v.BestAsk()
	if bestBid == nil || bestAsk == nil {
		return nil, apperror.New(apperror.CodeEmptyBookSide,
			apperror.WithContext(v.Symbol))
	}

	mid := v.Mid()
	if mid.IsZero() {
		return nil, apperror.New(apperror.CodeEmptyBookSide,
			apperror.WithContext(v.Symbol))
	}

	spreadAbs := bestAsk.Price.Sub(bestBid.Price)
	spreadBps := spreadAbs.DivRound(mid, divPrecision).Mul(bpsFactor)

	s := &Sample{
		Symbol:       v.Symbol,
		Exchange:     cfg.Exchange,
		Timestamp:    at,
		LastUpdateID: v.LastUpdateID,
		Mid:          mid,
		SpreadAbs:    spreadAbs,
		SpreadBps:    spreadBps,
		BestBidQty:   bestBid.Qty,
		BestAskQty:   bestAsk.Qty,
		BidLevels:    len(v.Bids),
		AskLevels:    len(v.Asks),
		Imbalance:    Imbalance(v.Bids, v.Asks, cfg.TopN),
	}

	for _, bps := range cfg.BandsBps {
		s.Depth = append(s.Depth, DepthWithin(v, mid, bps))
	}

	for _, notional := range cfg.NotionalsUSD {
		s.Slippage = append(s.Slippage,
			EstimateSlippage(v.Asks, mid, notional, SideBuy),
			EstimateSlippage(v.Bids, mid, notional, SideSell),
		)
	}

	return s, nil
}

// DepthWithin sums resting liquidity within bps of mid on both sides.
func DepthWithin(v *bookDomain.BookView, mid decimal.Decimal, bps int) BandDepth {
	band := decimal.NewFromInt(int64(bps)).DivRound(bpsFactor, divPrecision)
	bidFloor := mid.Mul(one.Sub(band))
	askCeil := mid.Mul(one.Add(band))

	d := BandDepth{
		Bps:    bps,
		BidQty: decimal.Zero, AskQty: decimal.Zero,
		BidUSD: decimal.Zero, AskUSD: decimal.Zero,
	}

	// Levels are best-first, so the first out-of-band level ends the walk.
	for _, lv := range v.Bids {
		if lv.Price.LessThan(bidFloor) {
			break
		}
		d.BidQty = d.BidQty.Add(lv.Qty)
		d.BidUSD = d.BidUSD.Add(lv.Price.Mul(lv.Qty))
	}
	for _, lv := range v.Asks {
		if lv.Price.GreaterThan(askCeil) {
			break
		}
		d.AskQty = d.AskQty.Add(lv.Qty)
		d.AskUSD = d.AskUSD.Add(lv.Price.Mul(lv.Qty))
	}

	return d
}

// Imbalance computes (bid_vol - ask_vol) / (bid_vol + ask_vol) over the top
// n levels per side. A zero denominator yields zero.
func Imbalance(bids, asks []bookDomain.Level, n int) decimal.Decimal {
	bidVol := sumQty(bids, n)
	askVol := sumQty(asks, n)

	denom := bidVol.Add(askVol)
	if denom.IsZero() {
		return decimal.Zero
	}
	return bidVol.Sub(askVol).DivRound(denom, divPrecision)
}

func sumQty(levels []bookDomain.Level, n int) decimal.Decimal {
	if n > len(levels) {
		n = len(levels)
	}
	total := decimal.Zero
	for _, lv := range levels[:n] {
		total = total.Add(lv.Qty)
	}
	return total
}

// EstimateSlippage walks levels in price priority, greedily consuming until
// the base quantity equivalent of notionalUSD is filled. levels must be the
// side the aggressor consumes: asks for a buy, bids for a sell. When the
// side is exhausted first, the estimate reports insufficient liquidity
// instead of failing the sample.
func EstimateSlippage(levels []bookDomain.Level, mid, notionalUSD decimal.Decimal, side Side) SlippageEstimate {
	est := walkLevels(levels, mid, notionalUSD.DivRound(mid, divPrecision), side)
	est.NotionalUSD = notionalUSD
	return est
}

// EstimateSlippageQty is EstimateSlippage with the target expressed directly
// in base quantity.
func EstimateSlippageQty(levels []bookDomain.Level, mid, targetQty decimal.Decimal, side Side) SlippageEstimate {
	est := walkLevels(levels, mid, targetQty, side)
	est.NotionalUSD = targetQty.Mul(mid)
	return est
}

func walkLevels(levels []bookDomain.Level, mid, targetQty decimal.Decimal, side Side) SlippageEstimate {
	est := SlippageEstimate{
		Side:        side,
		TargetQty:   targetQty,
		FilledQty:   decimal.Zero,
		AvgFill:     decimal.Zero,
		SlippageAbs: decimal.Zero,
		SlippageBps: decimal.Zero,
	}

	remaining := est.TargetQty
	cost := decimal.Zero

	for _, lv := range levels {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		take := lv.Qty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		cost = cost.Add(lv.Price.Mul(take))
		est.FilledQty = est.FilledQty.Add(take)
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() || est.FilledQty.IsZero() {
		est.Insufficient = true
		return est
	}

	est.AvgFill = cost.DivRound(est.FilledQty, divPrecision)
	est.SlippageAbs = est.AvgFill.Sub(mid).Abs()
	est.SlippageBps = est.SlippageAbs.DivRound(mid, divPrecision).Mul(bpsFactor)

	return est
}
