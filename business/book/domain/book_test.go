package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBook_ApplySnapshotThenDelta(t *testing.T) {
	b := NewBook("BTCUSDT")

	b.ApplySnapshot(&Snapshot{
		Symbol:       "BTCUSDT",
		LastUpdateID: 100,
		Bids:         []Level{lv("50000", "1"), lv("49990", "2")},
		Asks:         []Level{lv("50010", "1"), lv("50020", "2")},
	})

	if b.LastUpdateID != 100 {
		t.Fatalf("LastUpdateID = %d, want 100", b.LastUpdateID)
	}

	b.ApplyDelta(&Delta{
		Symbol:  "BTCUSDT",
		FirstID: 101,
		LastID:  103,
		Bids:    []Level{lv("50000", "0"), lv("49995", "3")},
		Asks:    []Level{lv("50010", "0.5")},
	})

	if b.LastUpdateID != 103 {
		t.Errorf("LastUpdateID = %d, want 103", b.LastUpdateID)
	}

	bid, _ := b.Bids.Best()
	if !bid.Price.Equal(decimal.RequireFromString("49995")) {
		t.Errorf("best bid = %s, want 49995 (50000 removed)", bid.Price)
	}
	ask, _ := b.Asks.Best()
	if !ask.Qty.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("best ask qty = %s, want 0.5 (absolute overwrite)", ask.Qty)
	}
	if b.Crossed() {
		t.Error("book reports crossed after consistent updates")
	}
}

func TestBook_Crossed(t *testing.T) {
	b := NewBook("BTCUSDT")
	b.ApplySnapshot(&Snapshot{
		LastUpdateID: 1,
		Bids:         []Level{lv("50010", "1")},
		Asks:         []Level{lv("50000", "1")},
	})
	if !b.Crossed() {
		t.Error("bid 50010 >= ask 50000 must report crossed")
	}

	// A one-sided book is never crossed.
	b.Asks.Clear()
	if b.Crossed() {
		t.Error("one-sided book reported crossed")
	}
}

func TestBook_View(t *testing.T) {
	b := NewBook("ETHUSDT")
	b.ApplySnapshot(&Snapshot{
		LastUpdateID: 42,
		Bids:         []Level{lv("3000", "1"), lv("2999", "2"), lv("2998", "3")},
		Asks:         []Level{lv("3001", "1"), lv("3002", "2")},
	})

	at := time.Now()
	v := b.View(2, at)

	if v.Symbol != "ETHUSDT" || v.LastUpdateID != 42 || !v.CapturedAt.Equal(at) {
		t.Errorf("view header = (%s, %d, %v)", v.Symbol, v.LastUpdateID, v.CapturedAt)
	}
	if len(v.Bids) != 2 || len(v.Asks) != 2 {
		t.Fatalf("view depth = (%d, %d), want (2, 2)", len(v.Bids), len(v.Asks))
	}
	if !v.Mid().Equal(decimal.RequireFromString("3000.5")) {
		t.Errorf("Mid = %s, want 3000.5", v.Mid())
	}

	// The view must be detached from the book.
	b.Bids.Apply(decimal.RequireFromString("3000"), decimal.Zero)
	if !v.Bids[0].Price.Equal(decimal.RequireFromString("3000")) {
		t.Error("view mutated by a later book update")
	}
}

func TestBookView_MidEmptySide(t *testing.T) {
	v := BookView{Bids: []Level{lv("100", "1")}}
	if !v.Mid().IsZero() {
		t.Errorf("Mid with empty ask side = %s, want 0", v.Mid())
	}
	if v.BestAsk() != nil {
		t.Error("BestAsk on empty side should be nil")
	}
}

func TestDelta_Bridges(t *testing.T) {
	tests := []struct {
		name    string
		firstID int64
		lastID  int64
		cursor  int64
		want    bool
	}{
		{"exact_next", 101, 101, 100, true},
		{"straddles_cursor", 98, 105, 100, true},
		{"starts_at_cursor_plus_one", 101, 110, 100, true},
		{"too_old", 90, 100, 100, false},
		{"gap_ahead", 102, 110, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Delta{FirstID: tt.firstID, LastID: tt.lastID}
			if got := d.Bridges(tt.cursor); got != tt.want {
				t.Errorf("Bridges(%d) = %v, want %v", tt.cursor, got, tt.want)
			}
		})
	}
}
