package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// BookView is an immutable read-only projection of a Book at one logical
// instant: the top-K levels per side plus the sequence cursor and capture
// timestamp. Views are passed by value between pipeline stages.
type BookView struct {
	Symbol       string
	Bids         []Level
	Asks         []Level
	LastUpdateID int64
	CapturedAt   time.Time
}

// BestBid returns the best (highest) bid level, or nil if the side is empty.
func (v *BookView) BestBid() *Level {
	if len(v.Bids) == 0 {
		return nil
	}
	return &v.Bids[0]
}

// BestAsk returns the best (lowest) ask level, or nil if the side is empty.
func (v *BookView) BestAsk() *Level {
	if len(v.Asks) == 0 {
		return nil
	}
	return &v.Asks[0]
}

// Mid returns the mid-market price, or zero when either side is empty.
func (v *BookView) Mid() decimal.Decimal {
	bid := v.BestBid()
	ask := v.BestAsk()
	if bid == nil || ask == nil {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(two)
}
