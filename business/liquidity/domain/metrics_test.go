package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	bookDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
)

func lv(price, qty string) bookDomain.Level {
	return bookDomain.Level{
		Price: decimal.RequireFromString(price),
		Qty:   decimal.RequireFromString(qty),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testView() *bookDomain.BookView {
	return &bookDomain.BookView{
		Symbol:       "BTCUSDT",
		LastUpdateID: 100,
		CapturedAt:   time.Now(),
		Bids: []bookDomain.Level{
			lv("49990", "3"), lv("49980", "5"), lv("49960", "2"),
		},
		Asks: []bookDomain.Level{
			lv("50010", "3"), lv("50020", "5"), lv("50040", "2"),
		},
	}
}

func TestComputeSpread(t *testing.T) {
	v := testView()
	cfg := ComputeConfig{Exchange: "binance", BandsBps: []int{10}, TopN: 5}

	s, err := Compute(v, cfg, time.Now())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// mid = (49990 + 50010) / 2 = 50000; spread = 20; bps = 20/50000*1e4 = 4
	if !s.Mid.Equal(dec("50000")) {
		t.Errorf("Mid = %s, want 50000", s.Mid)
	}
	if !s.SpreadAbs.Equal(dec("20")) {
		t.Errorf("SpreadAbs = %s, want 20", s.SpreadAbs)
	}
	if !s.SpreadBps.Equal(dec("4")) {
		t.Errorf("SpreadBps = %s, want 4", s.SpreadBps)
	}
	if s.BidLevels != 3 || s.AskLevels != 3 {
		t.Errorf("levels = (%d, %d), want (3, 3)", s.BidLevels, s.AskLevels)
	}
}

func TestCompute_EmptySideSkipsSample(t *testing.T) {
	v := testView()
	v.Asks = nil

	if _, err := Compute(v, ComputeConfig{TopN: 5}, time.Now()); err == nil {
		t.Error("Compute accepted a one-sided book")
	}
}

func TestEstimateSlippage_SpecWalk(t *testing.T) {
	// Asks (ascending): (50010, 3), (50020, 5), (50040, 2); mid = 50000.
	// Buy of Q=10: cost = 50010*3 + 50020*5 + 50040*2 = 500210
	// avg_fill = 50021.0; slippage_bps = (21/50000)*10000 = 4.2
	asks := []bookDomain.Level{
		lv("50010", "3"), lv("50020", "5"), lv("50040", "2"),
	}
	mid := dec("50000")

	est := EstimateSlippageQty(asks, mid, dec("10"), SideBuy)

	if est.Insufficient {
		t.Fatal("walk reported insufficient liquidity")
	}
	if !est.FilledQty.Equal(dec("10")) {
		t.Errorf("FilledQty = %s, want 10", est.FilledQty)
	}
	if !est.AvgFill.Equal(dec("50021")) {
		t.Errorf("AvgFill = %s, want 50021", est.AvgFill)
	}
	if !est.SlippageAbs.Equal(dec("21")) {
		t.Errorf("SlippageAbs = %s, want 21", est.SlippageAbs)
	}
	if !est.SlippageBps.Equal(dec("4.2")) {
		t.Errorf("SlippageBps = %s, want 4.2", est.SlippageBps)
	}
}

func TestEstimateSlippage_Insufficient(t *testing.T) {
	asks := []bookDomain.Level{lv("50010", "1")}
	mid := dec("50000")

	est := EstimateSlippageQty(asks, mid, dec("5"), SideBuy)

	if !est.Insufficient {
		t.Error("exhausted side must report insufficient liquidity")
	}
	if !est.FilledQty.Equal(dec("1")) {
		t.Errorf("FilledQty = %s, want 1 (partial fill recorded)", est.FilledQty)
	}
}

func TestEstimateSlippage_SellWalksBids(t *testing.T) {
	bids := []bookDomain.Level{lv("49990", "2"), lv("49980", "2")}
	mid := dec("50000")

	est := EstimateSlippageQty(bids, mid, dec("4"), SideSell)

	// cost = 49990*2 + 49980*2 = 199940; avg = 49985; abs = 15; bps = 3
	if !est.AvgFill.Equal(dec("49985")) {
		t.Errorf("AvgFill = %s, want 49985", est.AvgFill)
	}
	if !est.SlippageBps.Equal(dec("3")) {
		t.Errorf("SlippageBps = %s, want 3", est.SlippageBps)
	}
}

func TestEstimateSlippage_Monotonicity(t *testing.T) {
	// For fixed side and book, slippage_bps is non-decreasing in size until
	// liquidity runs out.
	asks := []bookDomain.Level{
		lv("50010", "3"), lv("50020", "5"), lv("50040", "2"), lv("50100", "10"),
	}
	mid := dec("50000")

	prev := decimal.Zero
	for _, q := range []string{"1", "2", "4", "8", "12", "16", "20"} {
		est := EstimateSlippageQty(asks, mid, dec(q), SideBuy)
		if est.Insufficient {
			break
		}
		if est.SlippageBps.LessThan(prev) {
			t.Errorf("slippage_bps(%s) = %s < previous %s", q, est.SlippageBps, prev)
		}
		prev = est.SlippageBps
	}
}

func TestImbalance(t *testing.T) {
	tests := []struct {
		name string
		bids []bookDomain.Level
		asks []bookDomain.Level
		topN int
		want string
	}{
		{
			name: "empty_ask_side_is_plus_one",
			bids: []bookDomain.Level{lv("100", "100")},
			asks: nil,
			topN: 5,
			want: "1",
		},
		{
			name: "empty_bid_side_is_minus_one",
			bids: nil,
			asks: []bookDomain.Level{lv("101", "50")},
			topN: 5,
			want: "-1",
		},
		{
			name: "symmetric_book_is_zero",
			bids: []bookDomain.Level{lv("100", "5"), lv("99", "5")},
			asks: []bookDomain.Level{lv("101", "5"), lv("102", "5")},
			topN: 5,
			want: "0",
		},
		{
			name: "both_empty_is_zero",
			bids: nil,
			asks: nil,
			topN: 5,
			want: "0",
		},
		{
			name: "top_n_limits_the_window",
			bids: []bookDomain.Level{lv("100", "1"), lv("99", "100")},
			asks: []bookDomain.Level{lv("101", "1")},
			topN: 1,
			want: "0",
		},
		{
			name: "bid_heavy",
			bids: []bookDomain.Level{lv("100", "3")},
			asks: []bookDomain.Level{lv("101", "1")},
			topN: 5,
			want: "0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Imbalance(tt.bids, tt.asks, tt.topN)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Imbalance = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestImbalance_Bound(t *testing.T) {
	// Property: imbalance stays in [-1, +1] for arbitrary books.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		var bids, asks []bookDomain.Level
		for j := 0; j < rng.Intn(8); j++ {
			bids = append(bids, bookDomain.Level{
				Price: decimal.NewFromFloat(100 - float64(j)),
				Qty:   decimal.NewFromFloat(rng.Float64() * 50),
			})
		}
		for j := 0; j < rng.Intn(8); j++ {
			asks = append(asks, bookDomain.Level{
				Price: decimal.NewFromFloat(101 + float64(j)),
				Qty:   decimal.NewFromFloat(rng.Float64() * 50),
			})
		}

		im := Imbalance(bids, asks, 5)
		if im.GreaterThan(dec("1")) || im.LessThan(dec("-1")) {
			t.Fatalf("imbalance %s out of [-1, 1] for %d bids / %d asks", im, len(bids), len(asks))
		}
	}
}

func TestDepthWithin(t *testing.T) {
	// mid = 50000; 10 bps band = [49950, 50050].
	v := &bookDomain.BookView{
		Bids: []bookDomain.Level{lv("49990", "3"), lv("49960", "2"), lv("49940", "7")},
		Asks: []bookDomain.Level{lv("50010", "1"), lv("50050", "2"), lv("50060", "9")},
	}
	mid := dec("50000")

	d := DepthWithin(v, mid, 10)

	if !d.BidQty.Equal(dec("5")) {
		t.Errorf("BidQty = %s, want 5 (49940 outside the band)", d.BidQty)
	}
	if !d.AskQty.Equal(dec("3")) {
		t.Errorf("AskQty = %s, want 3 (50060 outside the band)", d.AskQty)
	}

	// USD notionals: 49990*3 + 49960*2 = 249890; 50010*1 + 50050*2 = 150110
	if !d.BidUSD.Equal(dec("249890")) {
		t.Errorf("BidUSD = %s, want 249890", d.BidUSD)
	}
	if !d.AskUSD.Equal(dec("150110")) {
		t.Errorf("AskUSD = %s, want 150110", d.AskUSD)
	}
	if !d.TotalUSD().Equal(dec("400000")) {
		t.Errorf("TotalUSD = %s, want 400000", d.TotalUSD())
	}
}

func TestDecimal_PermutationExactness(t *testing.T) {
	// Property: sum of price*qty over a book is identical under any
	// permutation of terms. This is what exact decimals buy us over floats.
	levels := []bookDomain.Level{
		lv("50010.13", "3.0007"), lv("50020.292", "5.31"),
		lv("50040.9", "2.0001"), lv("49999.999", "0.123456"),
		lv("0.00000001", "123456789"), lv("98765.4321", "0.00000009"),
	}

	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Qty))
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		perm := rng.Perm(len(levels))
		sum := decimal.Zero
		for _, idx := range perm {
			sum = sum.Add(levels[idx].Price.Mul(levels[idx].Qty))
		}
		if !sum.Equal(total) {
			t.Fatalf("permuted sum %s != %s", sum, total)
		}
	}
}

func TestCompute_FullSample(t *testing.T) {
	v := testView()
	cfg := ComputeConfig{
		Exchange:     "binance",
		BandsBps:     []int{10, 50, 100},
		TopN:         5,
		NotionalsUSD: []decimal.Decimal{dec("100000"), dec("500000")},
	}

	s, err := Compute(v, cfg, time.Now())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(s.Depth) != 3 {
		t.Errorf("len(Depth) = %d, want 3", len(s.Depth))
	}
	if s.DepthBand(50) == nil || s.DepthBand(25) != nil {
		t.Error("DepthBand lookup mismatch")
	}

	// One buy and one sell estimate per notional.
	if len(s.Slippage) != 4 {
		t.Fatalf("len(Slippage) = %d, want 4", len(s.Slippage))
	}
	buy := s.SlippageFor(dec("100000"), SideBuy)
	if buy == nil {
		t.Fatal("missing buy estimate for 100000")
	}
	// 100000/50000 = 2 base units, filled within the best ask level.
	if !buy.TargetQty.Equal(dec("2")) || buy.Insufficient {
		t.Errorf("buy estimate = %+v", buy)
	}
	if !buy.AvgFill.Equal(dec("50010")) {
		t.Errorf("AvgFill = %s, want 50010", buy.AvgFill)
	}

	sell := s.SlippageFor(dec("500000"), SideSell)
	if sell == nil {
		t.Fatal("missing sell estimate for 500000")
	}
	// 10 base units vs 10 available on the bid side: exactly consumable.
	if sell.Insufficient {
		t.Error("sell of 10 against 10 resting must fill")
	}
}
