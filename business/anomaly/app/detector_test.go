package app

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/domain"
	liqDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func newTestDetector(t *testing.T, cfg DetectorConfig) (*Detector, *queue.Queue[*liqDomain.Sample]) {
	t.Helper()
	in := queue.New[*liqDomain.Sample](64, queue.Block)
	d, err := NewDetector(cfg, in, testLogger())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d, in
}

// sample builds a sample with the given spread_bps and fixed other metrics.
func sample(at time.Time, spreadBps float64) *liqDomain.Sample {
	return &liqDomain.Sample{
		Symbol:    "BTCUSDT",
		Exchange:  "binance",
		Timestamp: at,
		Mid:       decimal.RequireFromString("50000"),
		SpreadBps: decimal.NewFromFloat(spreadBps),
		Imbalance: decimal.Zero,
		Depth: []liqDomain.BandDepth{{
			Bps:    10,
			BidUSD: decimal.RequireFromString("500000"),
			AskUSD: decimal.RequireFromString("500000"),
		}},
	}
}

// seedBaseline feeds alternating 1/3 bps spreads: mean 2, population std 1.
func seedBaseline(d *Detector, start time.Time, n int) time.Time {
	ctx := context.Background()
	at := start
	for i := 0; i < n; i++ {
		v := 1.0
		if i%2 == 1 {
			v = 3.0
		}
		d.Evaluate(ctx, sample(at, v))
		at = at.Add(time.Second)
	}
	return at
}

func TestDetector_CriticalClassification(t *testing.T) {
	// Baseline spread mean 2 bps, std 1. Incoming 47 bps -> z = 45.
	d, _ := newTestDetector(t, DefaultDetectorConfig())
	at := seedBaseline(d, time.Unix(1_700_000_000, 0), 100)

	d.Evaluate(context.Background(), sample(at, 47))

	select {
	case ev := <-d.Events().C():
		if ev.Severity != domain.SeverityCritical {
			t.Errorf("Severity = %s, want critical", ev.Severity)
		}
		if !strings.Contains(ev.Reason, "spread_bps") {
			t.Errorf("Reason = %q, must name spread_bps", ev.Reason)
		}
		z := ev.ZScores["spread_bps"]
		if z < 44 || z > 46 {
			t.Errorf("z = %v, want ~45", z)
		}
		if ev.MaxZScore < 44 {
			t.Errorf("MaxZScore = %v, want ~45", ev.MaxZScore)
		}
		if !ev.State.Mid.Equal(decimal.RequireFromString("50000")) {
			t.Errorf("State.Mid = %s", ev.State.Mid)
		}
	default:
		t.Fatal("no event emitted")
	}
}

func TestDetector_BelowMinSamplesSilent(t *testing.T) {
	cfg := DefaultDetectorConfig()
	d, _ := newTestDetector(t, cfg)

	// Fewer than min_samples observations, then an extreme value.
	at := seedBaseline(d, time.Unix(1_700_000_000, 0), cfg.MinSamples-1)
	d.Evaluate(context.Background(), sample(at, 1000))

	if d.Emitted() != 0 {
		t.Errorf("Emitted = %d, want 0 before min_samples", d.Emitted())
	}
}

func TestDetector_ZeroStdSilent(t *testing.T) {
	d, _ := newTestDetector(t, DefaultDetectorConfig())
	ctx := context.Background()

	at := time.Unix(1_700_000_000, 0)
	for i := 0; i < 100; i++ {
		d.Evaluate(ctx, sample(at, 2)) // constant: std = 0
		at = at.Add(time.Second)
	}
	// Same constant again: z undefined, no event.
	d.Evaluate(ctx, sample(at, 2))

	if d.Emitted() != 0 {
		t.Errorf("Emitted = %d, want 0 with zero std", d.Emitted())
	}
}

func TestDetector_CooldownSuppresses(t *testing.T) {
	d, _ := newTestDetector(t, DefaultDetectorConfig())
	at := seedBaseline(d, time.Unix(1_700_000_000, 0), 100)
	ctx := context.Background()

	d.Evaluate(ctx, sample(at, 47))
	if d.Emitted() != 1 {
		t.Fatalf("Emitted = %d, want 1", d.Emitted())
	}
	<-d.Events().C()

	// Second critical event one second later: inside cooldown, same
	// severity, suppressed.
	d.Evaluate(ctx, sample(at.Add(time.Second), 48))
	if d.Emitted() != 1 {
		t.Errorf("Emitted = %d, want 1 (cooldown suppression)", d.Emitted())
	}

	// After the cooldown, events flow again.
	d.Evaluate(ctx, sample(at.Add(10*time.Second), 49))
	if d.Emitted() != 2 {
		t.Errorf("Emitted = %d, want 2 after cooldown", d.Emitted())
	}
}

func TestDetector_SeverityEscalationBeatsCooldown(t *testing.T) {
	d, _ := newTestDetector(t, DefaultDetectorConfig())
	at := seedBaseline(d, time.Unix(1_700_000_000, 0), 100)
	ctx := context.Background()

	// Warning first (z ~= 3.5), then critical inside the cooldown.
	d.Evaluate(ctx, sample(at, 5.5))
	if d.Emitted() != 1 {
		t.Fatalf("Emitted = %d, want 1", d.Emitted())
	}
	ev := <-d.Events().C()
	if ev.Severity != domain.SeverityWarning {
		t.Fatalf("first severity = %s, want warning", ev.Severity)
	}

	d.Evaluate(ctx, sample(at.Add(time.Second), 60))
	if d.Emitted() != 2 {
		t.Fatalf("Emitted = %d, want 2 (strict escalation passes)", d.Emitted())
	}
	ev = <-d.Events().C()
	if ev.Severity != domain.SeverityCritical {
		t.Errorf("second severity = %s, want critical", ev.Severity)
	}
}

func TestDetector_WindowsSurviveAcrossSymbols(t *testing.T) {
	d, _ := newTestDetector(t, DefaultDetectorConfig())
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	// Two symbols build independent baselines.
	for i := 0; i < 100; i++ {
		v := 1.0
		if i%2 == 1 {
			v = 3.0
		}
		a := sample(at, v)
		b := sample(at, v*100) // very different scale
		b.Symbol = "ETHUSDT"
		d.Evaluate(ctx, a)
		d.Evaluate(ctx, b)
		at = at.Add(time.Second)
	}

	// 47 bps is anomalous for BTCUSDT but unremarkable for ETHUSDT's
	// baseline (mean 200, std 100).
	d.Evaluate(ctx, sample(at, 47))
	eth := sample(at, 250)
	eth.Symbol = "ETHUSDT"
	d.Evaluate(ctx, eth)

	if d.Emitted() != 1 {
		t.Errorf("Emitted = %d, want 1 (independent windows)", d.Emitted())
	}
}

func TestDetector_ReasonNamesWorstFirst(t *testing.T) {
	got := reason(map[string]float64{
		"imbalance":       -3.4,
		"spread_bps":      45.0,
		"depth_10bps_usd": 2.1, // below threshold: excluded
	})

	if !strings.HasPrefix(got, "anomalous spread_bps") {
		t.Errorf("reason = %q, worst offender must lead", got)
	}
	if !strings.Contains(got, "imbalance (z=-3.40)") {
		t.Errorf("reason = %q, must include imbalance with its sign", got)
	}
	if strings.Contains(got, "depth_10bps_usd") {
		t.Errorf("reason = %q, below-threshold metric must be excluded", got)
	}
}
