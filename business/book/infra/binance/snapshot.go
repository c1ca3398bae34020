package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/app"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apperror"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/circuitbreaker"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/httpclient"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/ratelimit"
)

const (
	// Binance REST API endpoints
	BaseAPIURL = "https://api.binance.com"

	depthEndpoint = "/api/v3/depth"

	httpTimeout = 10 * time.Second
)

// Ensure interface compliance.
var _ app.SnapshotFetcher = (*SnapshotFetcher)(nil)

// FetcherConfig holds configuration for the snapshot fetcher.
type FetcherConfig struct {
	BaseURL string        // REST base URL (empty = default)
	Timeout time.Duration // Per-request timeout
}

// SnapshotFetcher fetches full depth snapshots over REST. Fetches are rate
// limited per symbol and guarded by a circuit breaker shared across symbols.
type SnapshotFetcher struct {
	client  httpclient.Client
	config  FetcherConfig
	logger  logger.LoggerInterface
	breaker *circuitbreaker.Breaker[*domain.Snapshot]

	limitersMu sync.Mutex
	limiters   map[string]*ratelimit.Limiter

	tracer trace.Tracer
}

// NewSnapshotFetcher creates a snapshot fetcher.
func NewSnapshotFetcher(cfg FetcherConfig, log logger.LoggerInterface) (*SnapshotFetcher, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseAPIURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	tracer := otel.Tracer(tracerName)

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest),
		httpclient.WithHeaders(map[string]string{
			"Accept": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	f := &SnapshotFetcher{
		client:   client,
		config:   cfg,
		logger:   log,
		limiters: make(map[string]*ratelimit.Limiter),
		tracer:   tracer,
	}

	cbCfg := circuitbreaker.DefaultConfig("binance-depth-rest")
	f.breaker = circuitbreaker.New[*domain.Snapshot](cbCfg)

	return f, nil
}

// limiter returns the per-symbol rate limiter, creating it on first use. One
// request per two seconds with a burst of one keeps resync storms off the
// REST endpoint.
func (f *SnapshotFetcher) limiter(symbol string) *ratelimit.Limiter {
	f.limitersMu.Lock()
	defer f.limitersMu.Unlock()

	l, ok := f.limiters[symbol]
	if !ok {
		l = ratelimit.NewWithBurst(0.5, 1)
		f.limiters[symbol] = l
	}
	return l
}

// Fetch retrieves a depth snapshot for symbol with up to depth levels per
// side. Safe to call concurrently with delta reception.
func (f *SnapshotFetcher) Fetch(ctx context.Context, symbol string, depth int) (*domain.Snapshot, error) {
	ctx, span := f.tracer.Start(ctx, "binance.snapshot.fetch",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.Int("depth", depth),
		),
	)
	defer span.End()

	if err := f.limiter(symbol).Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeSnapshotUnreachable,
			apperror.WithCause(err),
			apperror.WithContext("rate limit wait cancelled"))
	}

	snap, err := f.breaker.Execute(func() (*domain.Snapshot, error) {
		return f.fetch(ctx, symbol, depth)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("last_update_id", snap.LastUpdateID),
		attribute.Int("bids", len(snap.Bids)),
		attribute.Int("asks", len(snap.Asks)),
	)

	return snap, nil
}

func (f *SnapshotFetcher) fetch(ctx context.Context, symbol string, depth int) (*domain.Snapshot, error) {
	// Binance accepts: 5, 10, 20, 50, 100, 500, 1000, 5000
	validLimits := map[int]bool{5: true, 10: true, 20: true, 50: true, 100: true, 500: true, 1000: true, 5000: true}
	if !validLimits[depth] {
		depth = 1000
	}

	var result DepthResponse
	resp, err := f.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "depth"),
			httpclient.NewLabel("symbol", symbol),
		),
		httpclient.WithResponseErrorHandler(binanceErrorHandler),
	).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", strconv.Itoa(depth)).
		SetResult(&result).
		Get(ctx, depthEndpoint)

	if err != nil {
		return nil, apperror.New(apperror.CodeSnapshotUnreachable,
			apperror.WithCause(err),
			apperror.WithContext("depth request failed"))
	}
	if resp.IsError() {
		return nil, apperror.New(apperror.CodeSnapshotUnreachable,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	snap, err := result.ToSnapshot(symbol)
	if err != nil {
		return nil, err
	}

	f.logger.Debug(ctx, "snapshot fetched",
		"symbol", symbol,
		"last_update_id", snap.LastUpdateID,
		"bids", len(snap.Bids),
		"asks", len(snap.Asks))

	return snap, nil
}

// binanceErrorHandler parses Binance API error responses.
func binanceErrorHandler(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	return apperror.New(apperror.CodeSnapshotUnreachable,
		apperror.WithContext(fmt.Sprintf("HTTP %d: %s", statusCode, string(body))))
}
