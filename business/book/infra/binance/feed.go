package binance

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/app"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apperror"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/wsconn"
)

const (
	tracerName = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/infra/binance"
	meterName  = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/infra/binance"

	// Binance WebSocket endpoints
	BaseWSURL     = "wss://stream.binance.com:9443"
	DataStreamURL = "wss://data-stream.binance.vision"

	frameQueueSize = 1024

	// How long the parser waits on a full engine inbox before evicting the
	// oldest delta.
	inboxPushGrace = 20 * time.Millisecond
)

// FeedConfig holds configuration for the depth feed.
type FeedConfig struct {
	WebSocketURL   string        // WebSocket base URL (empty = default)
	Symbols        []string      // Symbols to subscribe (e.g., "BTCUSDT")
	DepthSpeedMs   int           // Diff depth speed (100 or 1000)
	InitialBackoff time.Duration // Reconnect backoff start
	MaxBackoff     time.Duration // Reconnect backoff cap
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig(symbols []string) FeedConfig {
	return FeedConfig{
		WebSocketURL:   BaseWSURL,
		Symbols:        symbols,
		DepthSpeedMs:   100,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	framesReceived metric.Int64Counter
	framesDropped  metric.Int64Counter
	parseErrors    metric.Int64Counter
	streamResets   metric.Int64Counter
}

// Feed is the frame source: it owns the WebSocket connection, validates and
// parses incoming frames, and routes deltas into the per-symbol engine
// inboxes. On reconnect every engine receives a StreamReset sentinel.
type Feed struct {
	config FeedConfig
	logger logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	// Raw frames pending parsing. Hot path: drop oldest, never stall the
	// read loop.
	frames *queue.Queue[[]byte]

	// Engine inboxes keyed by upper-case symbol.
	inboxes map[string]*queue.Queue[app.Event]

	connects    atomic.Int64
	parseErrors atomic.Uint64

	tracer  trace.Tracer
	metrics *feedMetrics

	done chan struct{}
}

// NewFeed creates a feed routing into the given engine inboxes.
func NewFeed(cfg FeedConfig, inboxes map[string]*queue.Queue[app.Event], log logger.LoggerInterface) (*Feed, error) {
	f := &Feed{
		config:  cfg,
		logger:  log,
		frames:  queue.New[[]byte](frameQueueSize, queue.DropOldest),
		inboxes: inboxes,
		tracer:  otel.Tracer(tracerName),
		done:    make(chan struct{}),
	}

	if err := f.initMetrics(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.framesReceived, err = meter.Int64Counter(
		"feed_frames_received_total",
		metric.WithDescription("Raw frames received from the depth stream"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	f.metrics.framesDropped, err = meter.Int64Counter(
		"feed_frames_dropped_total",
		metric.WithDescription("Frames dropped because the parse queue was full"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	f.metrics.parseErrors, err = meter.Int64Counter(
		"feed_parse_errors_total",
		metric.WithDescription("Frames that failed validation or parsing"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	f.metrics.streamResets, err = meter.Int64Counter(
		"feed_stream_resets_total",
		metric.WithDescription("StreamReset sentinels sent after reconnects"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Connect establishes the WebSocket connection and starts the parse loop.
func (f *Feed) Connect(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "binance.feed.connect",
		trace.WithAttributes(attribute.StringSlice("symbols", f.config.Symbols)),
	)
	defer span.End()

	wsURL, err := f.buildStreamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, "binance-depth")
	wsCfg.InitialBackoff = f.config.InitialBackoff
	wsCfg.MaxBackoff = f.config.MaxBackoff
	wsCfg.ReadTimeout = f.config.ReadTimeout
	wsCfg.WriteTimeout = f.config.WriteTimeout

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeStreamConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}

	conn.OnMessage(f.handleFrame)
	conn.OnStateChange(f.handleStateChange)

	if err := conn.ConnectWithRetry(ctx); err != nil {
		return apperror.New(apperror.CodeStreamConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect depth stream"))
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	go f.parseLoop(ctx)

	f.logger.Info(ctx, "depth feed connected",
		"url", wsURL,
		"symbols", f.config.Symbols)

	return nil
}

// buildStreamURL constructs the combined streams WebSocket URL.
func (f *Feed) buildStreamURL() (string, error) {
	if len(f.config.Symbols) == 0 {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no symbols configured"))
	}

	streams := make([]string, 0, len(f.config.Symbols))
	for _, sym := range f.config.Symbols {
		streams = append(streams, DepthStream(sym, f.config.DepthSpeedMs))
	}

	base := f.config.WebSocketURL
	if base == "" {
		base = BaseWSURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")

	return u.String(), nil
}

// handleFrame enqueues a raw frame for parsing. Runs on the wsconn read loop.
func (f *Feed) handleFrame(ctx context.Context, data []byte) {
	f.metrics.framesReceived.Add(ctx, 1)

	before := f.frames.Dropped()
	_ = f.frames.Push(ctx, data)
	if dropped := f.frames.Dropped() - before; dropped > 0 {
		f.metrics.framesDropped.Add(ctx, int64(dropped))
	}
}

// handleStateChange propagates reconnects as StreamReset sentinels.
func (f *Feed) handleStateChange(state wsconn.State, err error) {
	if state != wsconn.StateConnected {
		return
	}
	if f.connects.Add(1) == 1 {
		return // first connect, the engines start in Syncing anyway
	}

	ctx := context.Background()
	f.metrics.streamResets.Add(ctx, int64(len(f.inboxes)))
	f.logger.Warn(ctx, "depth stream reconnected, resetting books")

	for _, inbox := range f.inboxes {
		_ = inbox.Push(ctx, app.ResetEvent())
	}
}

// parseLoop drains the frame queue, validating and routing each frame.
func (f *Feed) parseLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case data, ok := <-f.frames.C():
			if !ok {
				return
			}
			f.parseFrame(ctx, data)
		}
	}
}

func (f *Feed) parseFrame(ctx context.Context, data []byte) {
	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Stream == "" {
		// Might be a subscription response; those are silently ignored.
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
			return
		}
		f.countParseError(ctx)
		return
	}

	if !strings.Contains(event.Stream, "@depth") {
		return
	}

	var update DepthUpdateEvent
	if err := json.Unmarshal(event.Data, &update); err != nil {
		f.countParseError(ctx)
		f.logger.Debug(ctx, "failed to parse depth update", "error", err)
		return
	}
	if update.Symbol == "" {
		update.Symbol = extractSymbolFromStream(event.Stream)
	}

	delta, err := update.ToDelta()
	if err != nil {
		f.countParseError(ctx)
		f.logger.Debug(ctx, "malformed depth update dropped", "error", err)
		return
	}

	inbox, ok := f.inboxes[delta.Symbol]
	if !ok {
		return
	}

	// Block briefly, then let the queue evict its oldest delta. The engine
	// recovers any loss through the resync protocol.
	_ = inbox.PushWait(ctx, app.DeltaEvent(delta), inboxPushGrace)
}

func (f *Feed) countParseError(ctx context.Context) {
	f.parseErrors.Add(1)
	f.metrics.parseErrors.Add(ctx, 1)
}

// ParseErrors returns the number of malformed frames dropped.
func (f *Feed) ParseErrors() uint64 {
	return f.parseErrors.Load()
}

// IsConnected returns whether the underlying stream is connected.
func (f *Feed) IsConnected() bool {
	f.connMu.RLock()
	defer f.connMu.RUnlock()
	return f.conn != nil && f.conn.IsConnected()
}

// Close shuts down the feed.
func (f *Feed) Close() error {
	close(f.done)

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
