package pg

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	anomalyDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/domain"
	liqDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSample() *liqDomain.Sample {
	return &liqDomain.Sample{
		Symbol:    "BTCUSDT",
		Exchange:  "binance",
		Timestamp: time.Unix(1_700_000_000, 0),
		Mid:       dec("50000.123456789"),
		SpreadBps: dec("4.20005"),
		BidLevels: 50,
		AskLevels: 48,
		Imbalance: dec("0.33335"),
		Depth: []liqDomain.BandDepth{
			{Bps: 10, BidQty: dec("5"), AskQty: dec("3"), BidUSD: dec("249890.005"), AskUSD: dec("150110")},
			{Bps: 50, BidQty: dec("10"), AskQty: dec("10"), BidUSD: dec("500000"), AskUSD: dec("500000")},
			{Bps: 100, BidQty: dec("20"), AskQty: dec("20"), BidUSD: dec("1000000"), AskUSD: dec("1000000")},
		},
		Slippage: []liqDomain.SlippageEstimate{
			{NotionalUSD: dec("100000"), Side: liqDomain.SideBuy, FilledQty: dec("2"), SlippageAbs: dec("10"), SlippageBps: dec("2")},
			{NotionalUSD: dec("100000"), Side: liqDomain.SideSell, FilledQty: dec("2"), SlippageAbs: dec("21"), SlippageBps: dec("4.2")},
			{NotionalUSD: dec("500000"), Side: liqDomain.SideBuy, Insufficient: true},
			{NotionalUSD: dec("500000"), Side: liqDomain.SideSell, FilledQty: dec("10"), SlippageAbs: dec("30"), SlippageBps: dec("6")},
			{NotionalUSD: dec("1000000"), Side: liqDomain.SideBuy, Insufficient: true},
			{NotionalUSD: dec("1000000"), Side: liqDomain.SideSell, Insufficient: true},
		},
	}
}

func TestNewSnapshotRow(t *testing.T) {
	row := NewSnapshotRow(testSample())

	if row.SnapshotID == uuid.Nil {
		t.Error("SnapshotID not generated")
	}
	if row.Symbol != "BTCUSDT" || row.Exchange != "binance" {
		t.Errorf("identity = (%s, %s)", row.Symbol, row.Exchange)
	}

	// Column-scale rounding.
	if !row.MidPrice.Equal(dec("50000.12345679")) {
		t.Errorf("MidPrice = %s, want 50000.12345679", row.MidPrice)
	}
	if !row.Depth10BpsUSD.Equal(dec("400000.00")) {
		t.Errorf("Depth10BpsUSD = %s, want 400000.00", row.Depth10BpsUSD)
	}
	if !row.Depth10BpsBase.Equal(dec("8")) {
		t.Errorf("Depth10BpsBase = %s, want 8", row.Depth10BpsBase)
	}

	// Worse side wins: sell at 4.2 bps beats buy at 2 bps.
	if !row.Slippage100kBps.Valid || !row.Slippage100kBps.Decimal.Equal(dec("4.2")) {
		t.Errorf("Slippage100kBps = %+v, want 4.2", row.Slippage100kBps)
	}
	// USD cost = abs * filled = 21 * 2 = 42.
	if !row.Slippage100kUSD.Valid || !row.Slippage100kUSD.Decimal.Equal(dec("42.00")) {
		t.Errorf("Slippage100kUSD = %+v, want 42.00", row.Slippage100kUSD)
	}

	// One usable side is enough.
	if !row.Slippage500kBps.Valid || !row.Slippage500kBps.Decimal.Equal(dec("6")) {
		t.Errorf("Slippage500kBps = %+v, want 6", row.Slippage500kBps)
	}

	// Both sides insufficient persists as NULL.
	if row.Slippage1mBps.Valid || row.Slippage1mUSD.Valid {
		t.Error("Slippage1m columns must be NULL when both sides are insufficient")
	}
}

func TestNewSnapshotRow_UniqueIDs(t *testing.T) {
	a := NewSnapshotRow(testSample())
	b := NewSnapshotRow(testSample())
	if a.SnapshotID == b.SnapshotID {
		t.Error("snapshot ids must be unique per row")
	}
}

func TestNewEventRow(t *testing.T) {
	ev := &anomalyDomain.Event{
		Symbol:     "BTCUSDT",
		Exchange:   "binance",
		DetectedAt: time.Unix(1_700_000_000, 0),
		Severity:   anomalyDomain.SeverityCritical,
		Reason:     "anomalous spread_bps (z=45.00)",
		ZScores:    map[string]float64{"spread_bps": 45.0, "imbalance": -1.2},
		MaxZScore:  45.0,
		State: anomalyDomain.MarketState{
			Mid:           dec("50000"),
			SpreadBps:     dec("47"),
			Depth10BpsUSD: dec("400000"),
			Imbalance:     dec("0.1"),
		},
	}

	row := NewEventRow(ev)

	if row.EventID == uuid.Nil {
		t.Error("EventID not generated")
	}
	if row.Severity != "critical" {
		t.Errorf("Severity = %q, want critical", row.Severity)
	}
	if !row.MaxZScore.Equal(dec("45")) {
		t.Errorf("MaxZScore = %s, want 45", row.MaxZScore)
	}
	if !row.ZScoreSpreadBps.Valid || !row.ZScoreSpreadBps.Decimal.Equal(dec("45")) {
		t.Errorf("ZScoreSpreadBps = %+v", row.ZScoreSpreadBps)
	}
	if !row.ZScoreImbalance.Valid {
		t.Error("ZScoreImbalance missing")
	}
	// depth_10bps_usd was not scored this tick: NULL column.
	if row.ZScoreDepth10BpsUSD.Valid {
		t.Error("ZScoreDepth10BpsUSD must be NULL when unscored")
	}
	if !row.SpreadBps.Equal(dec("47")) {
		t.Errorf("SpreadBps = %s, want 47", row.SpreadBps)
	}
}
