package domain

import "time"

// State is the lifecycle state of a reconstructed book.
type State int

const (
	StateUninitialized State = iota
	StateSyncing
	StateLive
	StateStale
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	case StateStale:
		return "stale"
	}
	return "unknown"
}

// Book is the locally reconstructed two-sided ladder for one symbol. It is
// exclusively owned by the book engine goroutine for that symbol; downstream
// consumers only ever see BookView projections.
type Book struct {
	Symbol       string
	Bids         *BookSide
	Asks         *BookSide
	LastUpdateID int64
	State        State
}

// NewBook creates an empty book in the Uninitialized state.
func NewBook(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		Bids:   NewBidSide(),
		Asks:   NewAskSide(),
		State:  StateUninitialized,
	}
}

// ApplySnapshot atomically replaces both ladders with the snapshot contents
// and sets the sequence cursor to the snapshot cursor.
func (b *Book) ApplySnapshot(snap *Snapshot) {
	b.Bids.Replace(snap.Bids)
	b.Asks.Replace(snap.Asks)
	b.LastUpdateID = snap.LastUpdateID
}

// ApplyDelta applies all level changes of d and advances the sequence cursor.
// Sequence validation belongs to the engine; this is the pure mutation.
func (b *Book) ApplyDelta(d *Delta) {
	for _, lv := range d.Bids {
		b.Bids.Apply(lv.Price, lv.Qty)
	}
	for _, lv := range d.Asks {
		b.Asks.Apply(lv.Price, lv.Qty)
	}
	b.LastUpdateID = d.LastID
}

// Crossed reports whether best bid >= best ask. A live book must never be
// crossed; a crossed book indicates a venue glitch or a reconstruction bug.
func (b *Book) Crossed() bool {
	bid, okBid := b.Bids.Best()
	ask, okAsk := b.Asks.Best()
	if !okBid || !okAsk {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// View captures an immutable top-depth projection of the book.
func (b *Book) View(depth int, at time.Time) BookView {
	return BookView{
		Symbol:       b.Symbol,
		Bids:         b.Bids.Top(depth),
		Asks:         b.Asks.Top(depth),
		LastUpdateID: b.LastUpdateID,
		CapturedAt:   at,
	}
}
