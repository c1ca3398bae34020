package app

import (
	"context"

	"github.com/JudyChang-TW/liquidity-crunch-monitor/business/book/domain"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/logger"
	"github.com/JudyChang-TW/liquidity-crunch-monitor/internal/queue"
)

// Service owns the per-symbol book engines. Symbols are share-nothing: each
// engine runs on its own goroutine and no book state crosses between them.
type Service struct {
	engines map[string]*Engine
	logger  logger.LoggerInterface
}

// NewService creates engines for every symbol.
func NewService(cfgs []EngineConfig, fetcher SnapshotFetcher, log logger.LoggerInterface) (*Service, error) {
	engines := make(map[string]*Engine, len(cfgs))
	for _, cfg := range cfgs {
		e, err := NewEngine(cfg, fetcher, log)
		if err != nil {
			return nil, err
		}
		engines[cfg.Symbol] = e
	}
	return &Service{engines: engines, logger: log}, nil
}

// Start launches every engine goroutine.
func (s *Service) Start(ctx context.Context) {
	for _, e := range s.engines {
		go e.Run(ctx)
	}
}

// Engine returns the engine for symbol, or nil.
func (s *Service) Engine(symbol string) *Engine {
	return s.engines[symbol]
}

// Symbols returns the managed symbols.
func (s *Service) Symbols() []string {
	out := make([]string, 0, len(s.engines))
	for sym := range s.engines {
		out = append(out, sym)
	}
	return out
}

// Inboxes returns the per-symbol event inboxes for the frame source.
func (s *Service) Inboxes() map[string]*queue.Queue[Event] {
	out := make(map[string]*queue.Queue[Event], len(s.engines))
	for sym, e := range s.engines {
		out[sym] = e.In()
	}
	return out
}

// Views returns the view queue for symbol, or nil.
func (s *Service) Views(symbol string) *queue.Queue[domain.BookView] {
	e := s.engines[symbol]
	if e == nil {
		return nil
	}
	return e.Views()
}

// AnyStale reports whether any book is in the Stale state.
func (s *Service) AnyStale() bool {
	for _, e := range s.engines {
		if e.State() == domain.StateStale {
			return true
		}
	}
	return false
}

// States returns the current state per symbol.
func (s *Service) States() map[string]domain.State {
	out := make(map[string]domain.State, len(s.engines))
	for sym, e := range s.engines {
		out[sym] = e.State()
	}
	return out
}
