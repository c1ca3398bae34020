package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apperror"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

const (
	tracerName = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/app"
	meterName  = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/app"

	// Hard bound on deltas buffered while Syncing. Past this the oldest
	// buffered delta is discarded; the bridge check will force a re-request
	// if the discarded delta turns out to have been needed.
	maxBufferedDeltas = 4096
)

// EngineConfig holds per-symbol book engine configuration.
type EngineConfig struct {
	Symbol          string
	ViewDepth       int           // Top-K levels per published view
	SnapshotDepth   int           // Levels requested from the fetcher
	SnapshotTimeout time.Duration // Deadline for one snapshot fetch
	MaxResyncs      int           // Consecutive failures before Stale
	ResyncWindow    time.Duration // Window for the repeated-resync bound
	InboxSize       int           // Parser -> engine queue capacity
	ViewBuffer      int           // Engine -> metrics queue capacity
}

// DefaultEngineConfig returns sensible defaults for symbol.
func DefaultEngineConfig(symbol string) EngineConfig {
	return EngineConfig{
		Symbol:          symbol,
		ViewDepth:       50,
		SnapshotDepth:   1000,
		SnapshotTimeout: 10 * time.Second,
		MaxResyncs:      3,
		ResyncWindow:    60 * time.Second,
		InboxSize:       1024,
		ViewBuffer:      16,
	}
}

// Stats exposes engine counters and the last error for introspection.
type Stats struct {
	DeltasApplied    atomic.Uint64
	StaleDropped     atomic.Uint64
	GapsDetected     atomic.Uint64
	Resyncs          atomic.Uint64
	SnapshotFailures atomic.Uint64
	ViewsPublished   atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

func (s *Stats) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the most recent engine error, if any.
func (s *Stats) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// engineMetrics holds OTEL metric instruments.
type engineMetrics struct {
	deltasApplied    metric.Int64Counter
	staleDropped     metric.Int64Counter
	gapsDetected     metric.Int64Counter
	resyncs          metric.Int64Counter
	snapshotFailures metric.Int64Counter
	viewsPublished   metric.Int64Counter
	bookState        metric.Int64Gauge
}

type snapResult struct {
	snap *domain.Snapshot
	err  error
}

// Engine converts the delta stream plus occasional snapshots into a
// continuously consistent local book for one symbol, re-synchronizing on
// sequence gaps. The engine goroutine exclusively owns the book; downstream
// stages only ever receive immutable BookView values.
type Engine struct {
	cfg     EngineConfig
	logger  logger.LoggerInterface
	fetcher SnapshotFetcher

	book   *domain.Book
	buffer []*domain.Delta

	in  *queue.Queue[Event]
	out *queue.Queue[domain.BookView]

	snapCh   chan snapResult
	fetching bool

	failures int         // consecutive snapshot/bridge failures
	resyncAt []time.Time // resync timestamps inside the window

	// Mirrors book.State for readers outside the engine goroutine.
	state atomic.Int32

	stats   Stats
	tracer  trace.Tracer
	metrics *engineMetrics
	attrs   metric.MeasurementOption
}

// NewEngine creates a book engine for cfg.Symbol.
func NewEngine(cfg EngineConfig, fetcher SnapshotFetcher, log logger.LoggerInterface) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		logger:  log,
		fetcher: fetcher,
		book:    domain.NewBook(cfg.Symbol),
		in:      queue.New[Event](cfg.InboxSize, queue.DropOldest),
		out:     queue.New[domain.BookView](cfg.ViewBuffer, queue.DropOldest),
		snapCh:  make(chan snapResult, 1),
		tracer:  otel.Tracer(tracerName),
		attrs:   metric.WithAttributes(attribute.String("symbol", cfg.Symbol)),
	}

	if err := e.initMetrics(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.deltasApplied, err = meter.Int64Counter(
		"book_deltas_applied_total",
		metric.WithDescription("Total depth deltas applied to the book"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		return err
	}

	e.metrics.staleDropped, err = meter.Int64Counter(
		"book_stale_deltas_dropped_total",
		metric.WithDescription("Deltas dropped because they predate the book cursor"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		return err
	}

	e.metrics.gapsDetected, err = meter.Int64Counter(
		"book_sequence_gaps_total",
		metric.WithDescription("Sequence gaps detected in the delta stream"),
		metric.WithUnit("{gap}"),
	)
	if err != nil {
		return err
	}

	e.metrics.resyncs, err = meter.Int64Counter(
		"book_resyncs_total",
		metric.WithDescription("Snapshot resynchronizations started"),
		metric.WithUnit("{resync}"),
	)
	if err != nil {
		return err
	}

	e.metrics.snapshotFailures, err = meter.Int64Counter(
		"book_snapshot_failures_total",
		metric.WithDescription("Snapshot fetch or bridge failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	e.metrics.viewsPublished, err = meter.Int64Counter(
		"book_views_published_total",
		metric.WithDescription("Book views published to the metrics stage"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return err
	}

	e.metrics.bookState, err = meter.Int64Gauge(
		"book_state",
		metric.WithDescription("Book state (0=uninitialized, 1=syncing, 2=live, 3=stale)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// In returns the engine inbox. The parser is the single producer.
func (e *Engine) In() *queue.Queue[Event] {
	return e.in
}

// Views returns the view queue. Publication is lossy: when the metrics stage
// lags, the oldest queued view is dropped so the newest always wins.
func (e *Engine) Views() *queue.Queue[domain.BookView] {
	return e.out
}

// Stats returns the engine counters.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// State returns the current book state. Safe from any goroutine.
func (e *Engine) State() domain.State {
	return domain.State(e.state.Load())
}

// Symbol returns the symbol this engine owns.
func (e *Engine) Symbol() string {
	return e.cfg.Symbol
}

// Run drives the engine until ctx is cancelled or the inbox is closed. The
// view queue is closed on return.
func (e *Engine) Run(ctx context.Context) {
	defer e.out.Close()

	e.enterSyncing(ctx, "stream start")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.in.C():
			if !ok {
				return
			}
			e.handleEvent(ctx, ev)
		case res := <-e.snapCh:
			e.handleSnapshot(ctx, res)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev Event) {
	if ev.Reset {
		// The transport reconnected; whatever we had is untrusted now. A
		// reset also clears the failure budget, it is a fresh stream.
		e.failures = 0
		e.resyncAt = e.resyncAt[:0]
		e.enterSyncing(ctx, "stream reset")
		return
	}

	d := ev.Delta
	if d == nil {
		return
	}

	switch e.book.State {
	case domain.StateSyncing:
		e.bufferDelta(d)

	case domain.StateLive:
		e.applyLive(ctx, d)

	default:
		// Uninitialized before Run, or Stale: deltas are not usable.
	}
}

func (e *Engine) bufferDelta(d *domain.Delta) {
	if len(e.buffer) >= maxBufferedDeltas {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, d)
}

func (e *Engine) applyLive(ctx context.Context, d *domain.Delta) {
	cursor := e.book.LastUpdateID

	// Stale: already reflected in the book.
	if d.LastID <= cursor {
		e.stats.StaleDropped.Add(1)
		e.metrics.staleDropped.Add(ctx, 1, e.attrs)
		return
	}

	// Gap: the stream skipped ahead of us. The offending delta is discarded;
	// the resync buffer plus bridge rule will recover it.
	if d.FirstID > cursor+1 {
		e.stats.GapsDetected.Add(1)
		e.metrics.gapsDetected.Add(ctx, 1, e.attrs)
		e.logger.Warn(ctx, "sequence gap detected",
			"symbol", e.cfg.Symbol,
			"cursor", cursor,
			"first_id", d.FirstID,
			"last_id", d.LastID,
		)
		e.enterResync(ctx, "sequence gap")
		return
	}

	e.book.ApplyDelta(d)
	e.stats.DeltasApplied.Add(1)
	e.metrics.deltasApplied.Add(ctx, 1, e.attrs)

	e.publishView(ctx)
}

func (e *Engine) handleSnapshot(ctx context.Context, res snapResult) {
	e.fetching = false

	// A snapshot that arrives after we already recovered (or gave up) is
	// ignored; the rate limiter in the fetcher keeps these rare.
	if e.book.State != domain.StateSyncing {
		return
	}

	if res.err != nil {
		e.snapshotFailure(ctx, apperror.New(apperror.CodeSnapshotUnreachable,
			apperror.WithCause(res.err),
			apperror.WithContext(e.cfg.Symbol)))
		return
	}

	snap := res.snap
	s := snap.LastUpdateID

	// Drop buffered deltas the snapshot already covers.
	kept := e.buffer[:0]
	for _, d := range e.buffer {
		if d.LastID > s {
			kept = append(kept, d)
		}
	}
	e.buffer = kept

	// The first survivor must bridge the snapshot cursor, otherwise the
	// stream and the snapshot cannot be stitched together.
	if len(e.buffer) == 0 || !e.buffer[0].Bridges(s) {
		e.snapshotFailure(ctx, apperror.New(apperror.CodeBridgeNotFound,
			apperror.WithContext(e.cfg.Symbol)))
		return
	}

	e.book.ApplySnapshot(snap)

	// Apply the bridge and every subsequent buffered delta in order. A
	// mid-buffer discontinuity restarts the sync.
	for _, d := range e.buffer {
		if d.LastID <= e.book.LastUpdateID {
			continue
		}
		if d.FirstID > e.book.LastUpdateID+1 {
			e.enterResync(ctx, "gap in buffered deltas")
			return
		}
		e.book.ApplyDelta(d)
		e.stats.DeltasApplied.Add(1)
		e.metrics.deltasApplied.Add(ctx, 1, e.attrs)
	}

	e.buffer = nil
	e.failures = 0
	e.setState(ctx, domain.StateLive)
	e.logger.Info(ctx, "book live",
		"symbol", e.cfg.Symbol,
		"last_update_id", e.book.LastUpdateID,
		"bids", e.book.Bids.Len(),
		"asks", e.book.Asks.Len(),
	)

	e.publishView(ctx)
}

func (e *Engine) snapshotFailure(ctx context.Context, err *apperror.AppError) {
	e.failures++
	e.stats.SnapshotFailures.Add(1)
	e.metrics.snapshotFailures.Add(ctx, 1, e.attrs)
	e.stats.setLastError(err)

	if e.failures >= e.cfg.MaxResyncs {
		e.enterStale(ctx, err)
		return
	}

	e.logger.Warn(ctx, "resync attempt failed",
		"symbol", e.cfg.Symbol,
		"attempt", e.failures,
		"error", err,
	)
	e.requestSnapshot(ctx)
}

// enterResync is enterSyncing plus the repeated-resync bound. Only
// gap-triggered resyncs count toward the bound; stream start and stream
// reset are fresh streams, not failures.
func (e *Engine) enterResync(ctx context.Context, reason string) {
	now := time.Now()

	// Prune resyncs outside the window, then check the bound.
	kept := e.resyncAt[:0]
	for _, t := range e.resyncAt {
		if now.Sub(t) <= e.cfg.ResyncWindow {
			kept = append(kept, t)
		}
	}
	e.resyncAt = append(kept, now)

	if len(e.resyncAt) > e.cfg.MaxResyncs {
		e.enterStale(ctx, apperror.New(apperror.CodeBookStale,
			apperror.WithContext("persistent gap: too many resyncs"),
		))
		return
	}

	e.enterSyncing(ctx, reason)
}

// enterSyncing flushes the buffer and starts a snapshot request.
func (e *Engine) enterSyncing(ctx context.Context, reason string) {
	e.buffer = e.buffer[:0]
	e.setState(ctx, domain.StateSyncing)
	e.stats.Resyncs.Add(1)
	e.metrics.resyncs.Add(ctx, 1, e.attrs)

	e.logger.Info(ctx, "book syncing", "symbol", e.cfg.Symbol, "reason", reason)

	e.requestSnapshot(ctx)
}

func (e *Engine) enterStale(ctx context.Context, err *apperror.AppError) {
	e.buffer = nil
	e.setState(ctx, domain.StateStale)
	e.stats.setLastError(err)
	e.logger.Error(ctx, "book stale", "symbol", e.cfg.Symbol, "error", err)
}

// requestSnapshot starts an asynchronous snapshot fetch. At most one request
// is in flight per symbol.
func (e *Engine) requestSnapshot(ctx context.Context) {
	if e.fetching {
		return
	}
	e.fetching = true

	go func() {
		fctx, cancel := context.WithTimeout(ctx, e.cfg.SnapshotTimeout)
		defer cancel()

		snap, err := e.fetcher.Fetch(fctx, e.cfg.Symbol, e.cfg.SnapshotDepth)

		select {
		case e.snapCh <- snapResult{snap: snap, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) publishView(ctx context.Context) {
	v := e.book.View(e.cfg.ViewDepth, time.Now())
	// DropOldest: never blocks on a slow metrics stage.
	_ = e.out.Push(ctx, v)
	e.stats.ViewsPublished.Add(1)
	e.metrics.viewsPublished.Add(ctx, 1, e.attrs)
}

func (e *Engine) setState(ctx context.Context, st domain.State) {
	e.book.State = st
	e.state.Store(int32(st))
	e.metrics.bookState.Record(ctx, int64(st), e.attrs)
}
