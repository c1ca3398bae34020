package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	bookDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func view(cursor int64, bidPrice string) bookDomain.BookView {
	return bookDomain.BookView{
		Symbol:       "BTCUSDT",
		LastUpdateID: cursor,
		CapturedAt:   time.Now(),
		Bids: []bookDomain.Level{{
			Price: decimal.RequireFromString(bidPrice),
			Qty:   decimal.RequireFromString("1"),
		}},
		Asks: []bookDomain.Level{{
			Price: decimal.RequireFromString("50010"),
			Qty:   decimal.RequireFromString("1"),
		}},
	}
}

func newTestEngine(t *testing.T, period time.Duration) (*Engine, *queue.Queue[bookDomain.BookView], *queue.Queue[*domain.Sample], *queue.Queue[*domain.Sample]) {
	t.Helper()

	views := queue.New[bookDomain.BookView](16, queue.DropOldest)
	samples := queue.New[*domain.Sample](64, queue.Block)
	persist := queue.New[*domain.Sample](256, queue.Block)

	cfg := EngineConfig{
		Symbol: "BTCUSDT",
		Period: period,
		Compute: domain.ComputeConfig{
			Exchange: "binance",
			BandsBps: []int{10},
			TopN:     5,
		},
	}

	e, err := NewEngine(cfg, views, samples, persist, testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e, views, samples, persist
}

func TestEngine_CoalescesToNewestView(t *testing.T) {
	e, views, samples, persist := newTestEngine(t, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue several views before the first tick; only the newest counts.
	for i := int64(1); i <= 5; i++ {
		views.Push(ctx, view(i, "49990"))
	}

	go e.Run(ctx)

	select {
	case s := <-samples.C():
		if s.LastUpdateID != 5 {
			t.Errorf("sample cursor = %d, want 5 (newest wins)", s.LastUpdateID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sample published")
	}

	select {
	case s := <-persist.C():
		if s.LastUpdateID != 5 {
			t.Errorf("persisted cursor = %d, want 5", s.LastUpdateID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sample forwarded to persistence")
	}
}

func TestEngine_NoViewNoSample(t *testing.T) {
	e, _, samples, _ := newTestEngine(t, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)

	select {
	case <-samples.C():
		t.Fatal("sample published with no views")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngine_UnusableBookSkippedAndCounted(t *testing.T) {
	e, views, samples, _ := newTestEngine(t, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-sided view: sample must be skipped, not fatal.
	v := view(1, "49990")
	v.Asks = nil
	views.Push(ctx, v)

	go e.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Skipped() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := e.Skipped(); got != 1 {
		t.Fatalf("Skipped = %d, want 1", got)
	}

	select {
	case <-samples.C():
		t.Fatal("sample published for a one-sided book")
	default:
	}

	// The engine keeps running: a good view still produces a sample.
	views.Push(ctx, view(2, "49990"))
	select {
	case s := <-samples.C():
		if s.LastUpdateID != 2 {
			t.Errorf("sample cursor = %d, want 2", s.LastUpdateID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine stopped after a skipped sample")
	}
}

func TestEngine_TimestampsMonotone(t *testing.T) {
	e, views, samples, _ := newTestEngine(t, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)

	go func() {
		for i := int64(1); i <= 20; i++ {
			views.Push(ctx, view(i, "49990"))
			time.Sleep(2 * time.Millisecond)
		}
	}()

	var lastTS time.Time
	var lastCursor int64
	for i := 0; i < 3; i++ {
		select {
		case s := <-samples.C():
			if s.Timestamp.Before(lastTS) {
				t.Error("sample timestamps not monotone")
			}
			if s.LastUpdateID < lastCursor {
				t.Error("sample cursors not monotone")
			}
			lastTS = s.Timestamp
			lastCursor = s.LastUpdateID
		case <-time.After(2 * time.Second):
			t.Fatal("samples stopped")
		}
	}
}
