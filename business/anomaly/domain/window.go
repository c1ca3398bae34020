// Package domain contains the core domain types for the anomaly detection
// context. Statistics run on float64; exactness is not required for moments.
package domain

import "math"

// Window is a fixed-capacity rolling sample window with O(1) running mean
// and population standard deviation. When full, pushing evicts the oldest
// sample.
type Window struct {
	buf   []float64
	head  int
	size  int
	sum   float64
	sumSq float64
}

// NewWindow creates a window holding up to capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends x, evicting the oldest sample when the window is full.
// Non-finite values are ignored.
func (w *Window) Push(x float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return
	}

	if w.size == len(w.buf) {
		old := w.buf[w.head]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.size++
	}

	w.buf[w.head] = x
	w.head = (w.head + 1) % len(w.buf)
	w.sum += x
	w.sumSq += x * x
}

// Len returns the current number of samples.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Mean returns the rolling mean, or 0 for an empty window.
func (w *Window) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	return w.sum / float64(w.size)
}

// Std returns the population standard deviation, or 0 for an empty window.
func (w *Window) Std() float64 {
	if w.size == 0 {
		return 0
	}
	mean := w.Mean()
	variance := w.sumSq/float64(w.size) - mean*mean
	// Running-sum cancellation can push the variance fractionally negative.
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// ZScore standardizes x against the window. ok is false when the standard
// deviation is zero and the score is undefined.
func (w *Window) ZScore(x float64) (float64, bool) {
	std := w.Std()
	if std == 0 {
		return 0, false
	}
	return (x - w.Mean()) / std, true
}
