package pg

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	anomalyDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/domain"
	liqDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/apperror"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/circuitbreaker"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

const (
	meterName = "github.com/JudyChang-TW/liquidity-crunch-monitor/business/storage/infra/pg"

	flushInterval = time.Second
	drainTimeout  = 5 * time.Second
)

// SinkConfig holds writer configuration.
type SinkConfig struct {
	BatchSize int
}

// sinkMetrics holds OTEL metric instruments shared by both sinks.
type sinkMetrics struct {
	rowsWritten metric.Int64Counter
	writeErrors metric.Int64Counter
}

func newSinkMetrics() (*sinkMetrics, error) {
	meter := otel.Meter(meterName)
	m := &sinkMetrics{}
	var err error

	m.rowsWritten, err = meter.Int64Counter(
		"sink_rows_written_total",
		metric.WithDescription("Rows written to the store"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	m.writeErrors, err = meter.Int64Counter(
		"sink_write_errors_total",
		metric.WithDescription("Failed store writes"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SnapshotSink batches metrics samples into liquidity_snapshots. Writes are
// idempotent: the snapshot_id unique index plus ON CONFLICT DO NOTHING makes
// replays harmless.
type SnapshotSink struct {
	db      *gorm.DB
	in      *queue.Queue[*liqDomain.Sample]
	cfg     SinkConfig
	logger  logger.LoggerInterface
	breaker *circuitbreaker.Breaker[int64]

	batch   []*LiquiditySnapshotRow
	written atomic.Uint64
	failed  atomic.Uint64

	metrics *sinkMetrics
}

// NewSnapshotSink creates the snapshot writer.
func NewSnapshotSink(db *gorm.DB, in *queue.Queue[*liqDomain.Sample], cfg SinkConfig, log logger.LoggerInterface) (*SnapshotSink, error) {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}

	m, err := newSinkMetrics()
	if err != nil {
		return nil, err
	}

	return &SnapshotSink{
		db:      db,
		in:      in,
		cfg:     cfg,
		logger:  log,
		breaker: circuitbreaker.New[int64](circuitbreaker.DefaultConfig("pg-snapshots")),
		metrics: m,
	}, nil
}

// Migrate creates or updates the backing table.
func (s *SnapshotSink) Migrate() error {
	return s.db.AutoMigrate(&LiquiditySnapshotRow{})
}

// Healthy reports whether the sink circuit is closed.
func (s *SnapshotSink) Healthy() bool {
	return !s.breaker.IsOpen()
}

// Written returns the number of rows persisted.
func (s *SnapshotSink) Written() uint64 {
	return s.written.Load()
}

// Run consumes the persist queue until ctx is cancelled or the queue closes,
// then drains and flushes synchronously.
func (s *SnapshotSink) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainAndFlush()
			return
		case sample, ok := <-s.in.C():
			if !ok {
				s.flush(context.Background())
				return
			}
			s.batch = append(s.batch, NewSnapshotRow(sample))
			if len(s.batch) >= s.cfg.BatchSize {
				s.flush(ctx)
			}
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// drainAndFlush empties the queue and writes what remains, bounded by the
// drain deadline. Called on shutdown.
func (s *SnapshotSink) drainAndFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case sample, ok := <-s.in.C():
			if !ok {
				s.flush(ctx)
				return
			}
			s.batch = append(s.batch, NewSnapshotRow(sample))
		default:
			s.flush(ctx)
			return
		}
	}
}

func (s *SnapshotSink) flush(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}

	rows := s.batch
	s.batch = nil

	_, err := s.breaker.Execute(func() (int64, error) {
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "snapshot_id"}},
				DoNothing: true,
			}).
			Create(&rows)
		return res.RowsAffected, res.Error
	})
	if err != nil {
		s.failed.Add(uint64(len(rows)))
		s.metrics.writeErrors.Add(ctx, int64(len(rows)))
		s.logger.Error(ctx, "snapshot batch write failed",
			"rows", len(rows), "error", apperror.Wrap(err, apperror.CodeSinkWriteFailed, "liquidity_snapshots"))
		return
	}

	s.written.Add(uint64(len(rows)))
	s.metrics.rowsWritten.Add(ctx, int64(len(rows)))
}

// EventSink writes anomaly events to anomaly_events, idempotent on event_id.
// Events are rare; each is written as it arrives.
type EventSink struct {
	db      *gorm.DB
	in      *queue.Queue[*anomalyDomain.Event]
	logger  logger.LoggerInterface
	breaker *circuitbreaker.Breaker[int64]

	written atomic.Uint64
	failed  atomic.Uint64

	metrics *sinkMetrics
}

// NewEventSink creates the event writer.
func NewEventSink(db *gorm.DB, in *queue.Queue[*anomalyDomain.Event], log logger.LoggerInterface) (*EventSink, error) {
	m, err := newSinkMetrics()
	if err != nil {
		return nil, err
	}

	return &EventSink{
		db:      db,
		in:      in,
		logger:  log,
		breaker: circuitbreaker.New[int64](circuitbreaker.DefaultConfig("pg-events")),
		metrics: m,
	}, nil
}

// Migrate creates or updates the backing table.
func (s *EventSink) Migrate() error {
	return s.db.AutoMigrate(&AnomalyEventRow{})
}

// Healthy reports whether the sink circuit is closed.
func (s *EventSink) Healthy() bool {
	return !s.breaker.IsOpen()
}

// Written returns the number of rows persisted.
func (s *EventSink) Written() uint64 {
	return s.written.Load()
}

// Run consumes the event queue until ctx is cancelled or the queue closes.
func (s *EventSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case ev, ok := <-s.in.C():
			if !ok {
				return
			}
			s.write(ctx, ev)
		}
	}
}

func (s *EventSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev, ok := <-s.in.C():
			if !ok {
				return
			}
			s.write(ctx, ev)
		default:
			return
		}
	}
}

func (s *EventSink) write(ctx context.Context, ev *anomalyDomain.Event) {
	row := NewEventRow(ev)

	_, err := s.breaker.Execute(func() (int64, error) {
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).
			Create(row)
		return res.RowsAffected, res.Error
	})
	if err != nil {
		s.failed.Add(1)
		s.metrics.writeErrors.Add(ctx, 1)
		s.logger.Error(ctx, "event write failed",
			"symbol", ev.Symbol, "error", apperror.Wrap(err, apperror.CodeSinkWriteFailed, "anomaly_events"))
		return
	}

	s.written.Add(1)
	s.metrics.rowsWritten.Add(ctx, 1)
}
