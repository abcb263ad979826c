package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 24 * time.Hour
	sweepTimeout         = 5 * time.Minute
)

type SweepConfig struct {
	Interval time.Duration
	// IdleAfter is how long a memory must go unaccessed before it weakens.
	IdleAfter time.Duration
	// Factor multiplies strength on each sweep; strength never drops below domain.MinStrength.
	Factor float64
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:  defaultSweepInterval,
		IdleAfter: 30 * 24 * time.Hour,
		Factor:    0.9,
	}
}

// SweepService periodically weakens memories that have sat idle, so strength
// falls over long idle periods as well as rising on recall.
type SweepService struct {
	memories domain.MemoryStore
	cfg      SweepConfig
	clock    Clock
	recorder Recorder
	logger   *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweepService(ms domain.MemoryStore, cfg SweepConfig, logger *zap.Logger) *SweepService {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	return &SweepService{
		memories: ms,
		cfg:      cfg,
		clock:    SystemClock,
		recorder: nopRecorder{},
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *SweepService) SetClock(c Clock) {
	s.clock = c
}

func (s *SweepService) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *SweepService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.logger.Info("idle sweep worker started",
			zap.Duration("interval", s.cfg.Interval),
			zap.Duration("idle_after", s.cfg.IdleAfter))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("idle sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("idle sweep worker stopped")
				return
			}
		}
	}()
}

// Stop halts the worker and waits for an in-flight sweep. Safe to call twice.
func (s *SweepService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce weakens every live memory idle longer than IdleAfter and returns
// how many were touched.
func (s *SweepService) RunOnce(ctx context.Context) (int64, error) {
	if s.cfg.Factor <= 0 || s.cfg.Factor >= 1 {
		return 0, domain.NewValidationError("idle_strength_factor", "must be within (0, 1)")
	}

	cutoff := s.clock().Add(-s.cfg.IdleAfter)
	n, err := s.memories.WeakenIdle(ctx, cutoff, s.cfg.Factor)
	if err != nil {
		return 0, fmt.Errorf("weaken idle memories: %w", err)
	}

	s.recorder.ObserveSweep(n)
	if n > 0 {
		s.logger.Info("idle sweep complete",
			zap.Int64("weakened", n),
			zap.Time("idle_since", cutoff))
	}
	return n, nil
}
