package domain

import (
	"math"
	"testing"
)

func TestWindow_MeanAndStd(t *testing.T) {
	w := NewWindow(10)
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Push(x)
	}

	if got := w.Mean(); got != 5 {
		t.Errorf("Mean = %v, want 5", got)
	}
	// Known population std of this dataset is exactly 2.
	if got := w.Std(); math.Abs(got-2) > 1e-9 {
		t.Errorf("Std = %v, want 2", got)
	}
}

func TestWindow_NeverExceedsCapacity(t *testing.T) {
	w := NewWindow(5)
	for i := 0; i < 1000; i++ {
		w.Push(float64(i))
		if w.Len() > 5 {
			t.Fatalf("Len = %d exceeds capacity after %d pushes", w.Len(), i+1)
		}
	}
	if w.Len() != 5 {
		t.Errorf("Len = %d, want 5", w.Len())
	}

	// Only the newest 5 values remain: 995..999, mean 997.
	if got := w.Mean(); math.Abs(got-997) > 1e-9 {
		t.Errorf("Mean = %v, want 997 (oldest evicted)", got)
	}
}

func TestWindow_ZScore(t *testing.T) {
	w := NewWindow(300)
	// Build a baseline with mean 2 and std 1.
	for i := 0; i < 100; i++ {
		w.Push(1)
		w.Push(3)
	}

	z, ok := w.ZScore(47)
	if !ok {
		t.Fatal("ZScore reported undefined with nonzero std")
	}
	if math.Abs(z-45) > 1e-9 {
		t.Errorf("ZScore(47) = %v, want 45", z)
	}
}

func TestWindow_ZeroStdUndefined(t *testing.T) {
	w := NewWindow(10)
	for i := 0; i < 10; i++ {
		w.Push(7)
	}

	if _, ok := w.ZScore(8); ok {
		t.Error("ZScore defined with zero standard deviation")
	}
}

func TestWindow_IgnoresNonFinite(t *testing.T) {
	w := NewWindow(10)
	w.Push(1)
	w.Push(math.NaN())
	w.Push(math.Inf(1))
	w.Push(math.Inf(-1))
	w.Push(3)

	if w.Len() != 2 {
		t.Errorf("Len = %d, want 2 (non-finite dropped)", w.Len())
	}
	if got := w.Mean(); got != 2 {
		t.Errorf("Mean = %v, want 2", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		z       float64
		want    Severity
		trigger bool
	}{
		{2.99, "", false},
		{3.0, SeverityWarning, true},
		{3.99, SeverityWarning, true},
		{4.0, SeverityHigh, true},
		{4.99, SeverityHigh, true},
		{5.0, SeverityCritical, true},
		{45, SeverityCritical, true},
	}

	for _, tt := range tests {
		got, ok := Classify(tt.z)
		if ok != tt.trigger || got != tt.want {
			t.Errorf("Classify(%v) = (%q, %v), want (%q, %v)", tt.z, got, ok, tt.want, tt.trigger)
		}
	}
}

func TestSeverity_Exceeds(t *testing.T) {
	if !SeverityCritical.Exceeds(SeverityHigh) || !SeverityHigh.Exceeds(SeverityWarning) {
		t.Error("severity ordering broken")
	}
	if SeverityWarning.Exceeds(SeverityWarning) {
		t.Error("Exceeds must be strict")
	}
}
