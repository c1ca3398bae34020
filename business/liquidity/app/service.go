package app

import (
	"context"

	bookDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

// Queue capacities from the pipeline matrix: samples to the detector block
// at 64, samples to the snapshot sink block at 256.
const (
	sampleQueueSize  = 64
	persistQueueSize = 256
)

// Service owns the per-symbol metrics engines plus the shared outbound
// queues.
type Service struct {
	engines []*Engine
	samples *queue.Queue[*domain.Sample]
	persist *queue.Queue[*domain.Sample]
	logger  logger.LoggerInterface
}

// NewService creates the shared queues; engines are attached per symbol with
// Attach before Start.
func NewService(log logger.LoggerInterface) *Service {
	return &Service{
		samples: queue.New[*domain.Sample](sampleQueueSize, queue.Block),
		persist: queue.New[*domain.Sample](persistQueueSize, queue.Block),
		logger:  log,
	}
}

// Attach creates an engine for cfg consuming the given view queue.
func (s *Service) Attach(cfg EngineConfig, views *queue.Queue[bookDomain.BookView], log logger.LoggerInterface) error {
	e, err := NewEngine(cfg, views, s.samples, s.persist, log)
	if err != nil {
		return err
	}
	s.engines = append(s.engines, e)
	return nil
}

// Start launches every engine goroutine.
func (s *Service) Start(ctx context.Context) {
	for _, e := range s.engines {
		go e.Run(ctx)
	}
}

// Samples returns the queue consumed by the anomaly detector.
func (s *Service) Samples() *queue.Queue[*domain.Sample] {
	return s.samples
}

// Persist returns the queue consumed by the snapshot sink.
func (s *Service) Persist() *queue.Queue[*domain.Sample] {
	return s.persist
}
