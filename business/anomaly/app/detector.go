// Package app contains the application service for the anomaly detection
// context.
package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/domain"
	liqDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

const (
	tracerName = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/app"
	meterName  = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/app"
)

// DetectorConfig holds anomaly detector configuration.
type DetectorConfig struct {
	WindowSize       int
	MinSamples       int
	Cooldown         time.Duration
	MonitoredMetrics []string
	EventBuffer      int // Detector -> event sink queue capacity
}

// DefaultDetectorConfig returns the documented defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		WindowSize:       300,
		MinSamples:       30,
		Cooldown:         5 * time.Second,
		MonitoredMetrics: []string{"spread_bps", "depth_10bps_usd", "imbalance"},
		EventBuffer:      64,
	}
}

// detectorMetrics holds OTEL metric instruments.
type detectorMetrics struct {
	samplesEvaluated metric.Int64Counter
	eventsEmitted    metric.Int64Counter
	eventsSuppressed metric.Int64Counter
}

type lastEvent struct {
	at       time.Time
	severity domain.Severity
}

// Detector maintains rolling statistical baselines per (exchange, symbol,
// metric) and emits severity-classified events when z-scores cross the
// thresholds. Baselines are never reset: a reconnect does not erase the
// statistical history.
type Detector struct {
	cfg    DetectorConfig
	logger logger.LoggerInterface

	in  *queue.Queue[*liqDomain.Sample]
	out *queue.Queue[*domain.Event]

	// windows[bookKey][metric]
	windows map[string]map[string]*domain.Window
	last    map[string]lastEvent

	emitted    atomic.Uint64
	suppressed atomic.Uint64

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewDetector creates a detector consuming the given sample queue.
func NewDetector(cfg DetectorConfig, in *queue.Queue[*liqDomain.Sample], log logger.LoggerInterface) (*Detector, error) {
	d := &Detector{
		cfg:     cfg,
		logger:  log,
		in:      in,
		out:     queue.New[*domain.Event](cfg.EventBuffer, queue.Block),
		windows: make(map[string]map[string]*domain.Window),
		last:    make(map[string]lastEvent),
		tracer:  otel.Tracer(tracerName),
	}

	if err := d.initMetrics(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.samplesEvaluated, err = meter.Int64Counter(
		"anomaly_samples_evaluated_total",
		metric.WithDescription("Metrics samples evaluated by the detector"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return err
	}

	d.metrics.eventsEmitted, err = meter.Int64Counter(
		"anomaly_events_emitted_total",
		metric.WithDescription("Anomaly events emitted"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	d.metrics.eventsSuppressed, err = meter.Int64Counter(
		"anomaly_events_suppressed_total",
		metric.WithDescription("Events suppressed by the cooldown debounce"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Events returns the event queue consumed by the event sink.
func (d *Detector) Events() *queue.Queue[*domain.Event] {
	return d.out
}

// Emitted returns the number of events emitted.
func (d *Detector) Emitted() uint64 {
	return d.emitted.Load()
}

// Run drives the detector until ctx is cancelled or the sample queue closes.
// The event queue is closed on return.
func (d *Detector) Run(ctx context.Context) {
	defer d.out.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-d.in.C():
			if !ok {
				return
			}
			d.Evaluate(ctx, s)
		}
	}
}

// Evaluate scores one sample against the rolling baselines and emits at most
// one event.
func (d *Detector) Evaluate(ctx context.Context, s *liqDomain.Sample) {
	d.metrics.samplesEvaluated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("symbol", s.Symbol)))

	key := s.Exchange + ":" + s.Symbol
	byMetric, ok := d.windows[key]
	if !ok {
		byMetric = make(map[string]*domain.Window, len(d.cfg.MonitoredMetrics))
		d.windows[key] = byMetric
	}

	zScores := make(map[string]float64, len(d.cfg.MonitoredMetrics))
	zMax := 0.0

	for _, name := range d.cfg.MonitoredMetrics {
		x, ok := metricValue(s, name)
		if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
			continue // non-finite inputs are dropped silently
		}

		w, ok := byMetric[name]
		if !ok {
			w = domain.NewWindow(d.cfg.WindowSize)
			byMetric[name] = w
		}

		// Score against the baseline, then fold x into it. Scoring after
		// the append would dilute the very deviation being measured.
		if w.Len() >= d.cfg.MinSamples {
			if z, defined := w.ZScore(x); defined {
				zScores[name] = z
				if math.Abs(z) > zMax {
					zMax = math.Abs(z)
				}
			}
		}
		w.Push(x)
	}

	severity, triggered := domain.Classify(zMax)
	if !triggered {
		return
	}

	now := s.Timestamp

	// Debounce: inside the cooldown only a strict severity increase passes.
	if prev, ok := d.last[key]; ok {
		if now.Sub(prev.at) < d.cfg.Cooldown && !severity.Exceeds(prev.severity) {
			d.suppressed.Add(1)
			d.metrics.eventsSuppressed.Add(ctx, 1,
				metric.WithAttributes(attribute.String("symbol", s.Symbol)))
			return
		}
	}

	ev := &domain.Event{
		Symbol:     s.Symbol,
		Exchange:   s.Exchange,
		DetectedAt: now,
		Severity:   severity,
		Reason:     reason(zScores),
		ZScores:    zScores,
		MaxZScore:  zMax,
		State:      marketState(s),
	}

	if err := d.out.Push(ctx, ev); err != nil {
		return
	}

	d.last[key] = lastEvent{at: now, severity: severity}
	d.emitted.Add(1)
	d.metrics.eventsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", s.Symbol),
		attribute.String("severity", string(severity)),
	))

	d.logger.Warn(ctx, "anomaly detected",
		"symbol", s.Symbol,
		"severity", string(severity),
		"max_zscore", zMax,
		"reason", ev.Reason,
	)
}

// reason names every metric whose |z| crossed the warning threshold, worst
// first.
func reason(zScores map[string]float64) string {
	type offender struct {
		name string
		absZ float64
		z    float64
	}

	var offenders []offender
	for name, z := range zScores {
		if math.Abs(z) >= domain.ThresholdWarning {
			offenders = append(offenders, offender{name: name, absZ: math.Abs(z), z: z})
		}
	}
	sort.Slice(offenders, func(i, j int) bool {
		return offenders[i].absZ > offenders[j].absZ
	})

	var b strings.Builder
	b.WriteString("anomalous ")
	for i, o := range offenders {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (z=%.2f)", o.name, o.z)
	}
	return b.String()
}

func marketState(s *liqDomain.Sample) domain.MarketState {
	st := domain.MarketState{
		Mid:       s.Mid,
		SpreadBps: s.SpreadBps,
		Imbalance: s.Imbalance,
	}
	if band := s.DepthBand(10); band != nil {
		st.Depth10BpsUSD = band.TotalUSD()
	}
	return st
}

// metricValue extracts a monitored metric from a sample. ok is false for
// unknown names or metrics absent from the sample.
func metricValue(s *liqDomain.Sample, name string) (float64, bool) {
	switch name {
	case "spread_bps":
		return s.SpreadBps.InexactFloat64(), true
	case "depth_10bps_usd":
		band := s.DepthBand(10)
		if band == nil {
			return 0, false
		}
		return band.TotalUSD().InexactFloat64(), true
	case "imbalance":
		return s.Imbalance.InexactFloat64(), true
	case "mid":
		return s.Mid.InexactFloat64(), true
	}
	return 0, false
}
