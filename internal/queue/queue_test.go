package queue

import (
	"context"
	"testing"
	"time"
)

func TestPush_DropOldest_NewestWins(t *testing.T) {
	q := New[int](16, DropOldest)
	ctx := context.Background()

	// Push far more than capacity without a consumer.
	const total = 10000
	for i := 1; i <= total; i++ {
		if err := q.Push(ctx, i); err != nil {
			t.Fatalf("Push(%d) failed: %v", i, err)
		}
	}

	if got := q.Len(); got != 16 {
		t.Fatalf("Len = %d, want 16", got)
	}

	// The queue must hold the 16 newest elements in order.
	want := total - 16 + 1
	for v := range q.C() {
		if v != want {
			t.Fatalf("got %d, want %d", v, want)
		}
		want++
		if want > total {
			break
		}
	}

	if got := q.Dropped(); got != total-16 {
		t.Errorf("Dropped = %d, want %d", got, total-16)
	}
}

func TestPush_Block_AppliesBackpressure(t *testing.T) {
	q := New[int](1, Block)
	ctx := context.Background()

	if err := q.Push(ctx, 1); err != nil {
		t.Fatalf("first Push failed: %v", err)
	}

	// Queue is full: a second push must wait for the consumer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := q.Push(ctx, 2); err != nil {
			t.Errorf("second Push failed: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatal("Push returned before consumer freed a slot")
	case <-time.After(50 * time.Millisecond):
	}

	if got := <-q.C(); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push did not complete after consume")
	}

	if got := q.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

func TestPush_Block_ContextCancelled(t *testing.T) {
	q := New[int](1, Block)
	ctx, cancel := context.WithCancel(context.Background())

	if err := q.Push(ctx, 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Push(ctx, 2)
	}()

	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not return after cancel")
	}
}

func TestPushWait_DropsAfterGrace(t *testing.T) {
	q := New[int](1, DropOldest)
	ctx := context.Background()

	if err := q.Push(ctx, 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	start := time.Now()
	if err := q.PushWait(ctx, 2, 20*time.Millisecond); err != nil {
		t.Fatalf("PushWait failed: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("PushWait returned before the grace period elapsed")
	}

	if got := q.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
	if got := <-q.C(); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestDrain_ReturnsNewest(t *testing.T) {
	q := New[string](8, DropOldest)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, s); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	newest, drained, ok := q.Drain()
	if !ok || newest != "c" || drained != 3 {
		t.Fatalf("Drain = (%q, %d, %v), want (c, 3, true)", newest, drained, ok)
	}

	if _, _, ok := q.Drain(); ok {
		t.Error("second Drain should report empty")
	}
}

func TestClose_StopsConsumer(t *testing.T) {
	q := New[int](4, DropOldest)
	ctx := context.Background()

	if err := q.Push(ctx, 42); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	q.Close()

	v, open := <-q.C()
	if !open || v != 42 {
		t.Fatalf("got (%d, %v), want (42, true)", v, open)
	}
	if _, open := <-q.C(); open {
		t.Error("channel should be closed after draining")
	}

	// Push after close is discarded, not a panic.
	if err := q.Push(ctx, 1); err != nil {
		t.Errorf("Push after Close returned error: %v", err)
	}
}
