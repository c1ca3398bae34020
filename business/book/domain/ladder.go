// Package domain contains the core domain types for the order book context.
package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Level is a single price level: an absolute resting quantity at a price.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// BookSide is an ordered price ladder. Levels are kept best-first: descending
// by price on the bid side, ascending on the ask side. Best-price access is
// O(1); mutations are a binary search plus a slice shift.
type BookSide struct {
	levels []Level
	desc   bool
}

// NewBidSide creates the bid ladder (best = highest price).
func NewBidSide() *BookSide {
	return &BookSide{desc: true}
}

// NewAskSide creates the ask ladder (best = lowest price).
func NewAskSide() *BookSide {
	return &BookSide{desc: false}
}

// search returns the position of price in best-first order and whether an
// existing level holds exactly that price.
func (s *BookSide) search(price decimal.Decimal) (int, bool) {
	idx := sort.Search(len(s.levels), func(i int) bool {
		cmp := s.levels[i].Price.Cmp(price)
		if s.desc {
			return cmp <= 0
		}
		return cmp >= 0
	})
	found := idx < len(s.levels) && s.levels[idx].Price.Equal(price)
	return idx, found
}

// Apply upserts the level at price. A zero quantity removes the level; a
// missing-key removal is a no-op. The quantity is absolute, never aggregated
// with the existing one.
func (s *BookSide) Apply(price, qty decimal.Decimal) {
	idx, found := s.search(price)

	if qty.IsZero() {
		if found {
			s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
		}
		return
	}

	if found {
		s.levels[idx].Qty = qty
		return
	}

	s.levels = append(s.levels, Level{})
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = Level{Price: price, Qty: qty}
}

// Best returns the best level without copying the ladder.
func (s *BookSide) Best() (Level, bool) {
	if len(s.levels) == 0 {
		return Level{}, false
	}
	return s.levels[0], true
}

// Top returns a copy of the best k levels (fewer if the side is shallower).
func (s *BookSide) Top(k int) []Level {
	if k > len(s.levels) {
		k = len(s.levels)
	}
	out := make([]Level, k)
	copy(out, s.levels[:k])
	return out
}

// Len returns the number of levels on the side.
func (s *BookSide) Len() int {
	return len(s.levels)
}

// Contains reports whether the side holds a level at exactly price.
func (s *BookSide) Contains(price decimal.Decimal) bool {
	_, found := s.search(price)
	return found
}

// Replace discards the ladder and installs the given levels. Zero-quantity
// entries are skipped. Used on snapshot rebuild.
func (s *BookSide) Replace(levels []Level) {
	s.levels = s.levels[:0]
	for _, lv := range levels {
		if lv.Qty.IsZero() {
			continue
		}
		s.levels = append(s.levels, lv)
	}
	sort.Slice(s.levels, func(i, j int) bool {
		if s.desc {
			return s.levels[i].Price.GreaterThan(s.levels[j].Price)
		}
		return s.levels[i].Price.LessThan(s.levels[j].Price)
	})
}

// Clear removes all levels.
func (s *BookSide) Clear() {
	s.levels = s.levels[:0]
}
