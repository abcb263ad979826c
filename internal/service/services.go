package service

import (
	"github.com/Voork1144/just-memory/internal/domain"
	"go.uber.org/zap"
)

// Config gathers the tunables of every service.
type Config struct {
	DefaultProject string
	Decay          DecayParams
	Activation     domain.ActivationParams
	Sweep          SweepConfig
}

func DefaultConfig() Config {
	return Config{
		DefaultProject: domain.DefaultProject,
		Decay:          DefaultDecayParams(),
		Activation:     domain.DefaultActivationParams(),
		Sweep:          DefaultSweepConfig(),
	}
}

// Services is the full set of services over one backend.
type Services struct {
	Memories   *MemoryService
	Edges      *EdgeService
	Activation *ActivationService
	Sweep      *SweepService
}

func New(ms domain.MemoryStore, es domain.EdgeStore, ec domain.EmbeddingClient, cfg Config, logger *zap.Logger) *Services {
	s := &Services{
		Memories:   NewMemoryService(ms, es, ec, cfg.Decay, logger),
		Edges:      NewEdgeService(es, logger),
		Activation: NewActivationService(ms, es, cfg.Activation, logger),
		Sweep:      NewSweepService(ms, cfg.Sweep, logger),
	}
	s.Memories.SetDefaultProject(cfg.DefaultProject)
	s.Edges.SetDefaultProject(cfg.DefaultProject)
	return s
}

func (s *Services) SetRecorder(r Recorder) {
	s.Memories.SetRecorder(r)
	s.Edges.SetRecorder(r)
	s.Activation.SetRecorder(r)
	s.Sweep.SetRecorder(r)
}

func (s *Services) SetClock(c Clock) {
	s.Memories.SetClock(c)
	s.Edges.SetClock(c)
	s.Sweep.SetClock(c)
}
