// Package app contains the application service for the liquidity metrics
// context.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	bookDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

const (
	tracerName = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/app"
	meterName  = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/app"
)

// EngineConfig holds per-symbol metrics engine configuration.
type EngineConfig struct {
	Symbol  string
	Period  time.Duration // Minimum interval between published samples
	Compute domain.ComputeConfig
}

// engineMetrics holds OTEL metric instruments.
type engineMetrics struct {
	samplesPublished metric.Int64Counter
	samplesSkipped   metric.Int64Counter
	viewsCoalesced   metric.Int64Counter
}

// Engine turns book views into metrics samples at a rate-controlled cadence.
// Views arriving between ticks are coalesced; the newest wins. Samples flow
// to both the anomaly detector and the snapshot sink over blocking queues:
// losing metrics is unacceptable, so the cold path applies backpressure.
type Engine struct {
	cfg    EngineConfig
	logger logger.LoggerInterface

	views   *queue.Queue[bookDomain.BookView]
	samples *queue.Queue[*domain.Sample] // Shared with the anomaly detector
	persist *queue.Queue[*domain.Sample] // Shared with the snapshot sink

	skipped atomic.Uint64

	tracer  trace.Tracer
	metrics *engineMetrics
	attrs   metric.MeasurementOption
}

// NewEngine creates a metrics engine consuming views and producing into the
// shared samples and persist queues.
func NewEngine(
	cfg EngineConfig,
	views *queue.Queue[bookDomain.BookView],
	samples *queue.Queue[*domain.Sample],
	persist *queue.Queue[*domain.Sample],
	log logger.LoggerInterface,
) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		logger:  log,
		views:   views,
		samples: samples,
		persist: persist,
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

	e.metrics.samplesPublished, err = meter.Int64Counter(
		"liquidity_samples_published_total",
		metric.WithDescription("Metrics samples published"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return err
	}

	e.metrics.samplesSkipped, err = meter.Int64Counter(
		"liquidity_samples_skipped_total",
		metric.WithDescription("Samples skipped because the book was unusable"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return err
	}

	e.metrics.viewsCoalesced, err = meter.Int64Counter(
		"liquidity_views_coalesced_total",
		metric.WithDescription("Intermediate views discarded between ticks"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Skipped returns the number of samples skipped due to unusable books.
func (e *Engine) Skipped() uint64 {
	return e.skipped.Load()
}

// Run drives the engine until ctx is cancelled. A closed view queue does not
// end it; its ticks then find no view and publish nothing.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick coalesces pending views and publishes one sample for the newest.
func (e *Engine) tick(ctx context.Context) {
	view, drained, ok := e.views.Drain()
	if !ok {
		return // no view since the last tick
	}
	if drained > 1 {
		e.metrics.viewsCoalesced.Add(ctx, int64(drained-1), e.attrs)
	}

	sample, err := domain.Compute(&view, e.cfg.Compute, time.Now())
	if err != nil {
		e.skipped.Add(1)
		e.metrics.samplesSkipped.Add(ctx, 1, e.attrs)
		e.logger.Debug(ctx, "sample skipped", "symbol", e.cfg.Symbol, "error", err)
		return
	}

	// Blocking pushes: the cold path prefers backpressure over loss.
	if err := e.samples.Push(ctx, sample); err != nil {
		return
	}
	if err := e.persist.Push(ctx, sample); err != nil {
		return
	}

	e.metrics.samplesPublished.Add(ctx, 1, e.attrs)
}
