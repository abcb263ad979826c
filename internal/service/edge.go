package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EdgeService struct {
	edges          domain.EdgeStore
	defaultProject string
	clock          Clock
	recorder       Recorder
	validate       *validator.Validate
	logger         *zap.Logger
}

func NewEdgeService(es domain.EdgeStore, logger *zap.Logger) *EdgeService {
	return &EdgeService{
		edges:          es,
		defaultProject: domain.DefaultProject,
		clock:          SystemClock,
		recorder:       nopRecorder{},
		validate:       newValidator(),
		logger:         logger,
	}
}

func (s *EdgeService) SetClock(c Clock) {
	s.clock = c
}

func (s *EdgeService) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *EdgeService) SetDefaultProject(p string) {
	if p != "" {
		s.defaultProject = p
	}
}

// Create links two live memories. ValidFrom defaults to now and confidence to 1.
func (s *EdgeService) Create(ctx context.Context, req domain.EdgeRequest) (e *domain.Edge, err error) {
	defer func() { s.recorder.ObserveOperation("create_edge", err) }()

	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.FromID == req.ToID {
		return nil, domain.NewValidationError("to_id", "must differ from from_id")
	}

	now := s.clock()
	e = &domain.Edge{
		ProjectID:    req.ProjectID,
		FromID:       req.FromID,
		ToID:         req.ToID,
		RelationType: req.RelationType,
		Confidence:   1,
		Metadata:     req.Metadata,
		ValidFrom:    now,
		CreatedAt:    now,
	}
	if e.ProjectID == "" {
		e.ProjectID = s.defaultProject
	}
	if req.Confidence != nil {
		e.Confidence = domain.Clamp01(*req.Confidence)
	}
	if req.ValidFrom != nil {
		e.ValidFrom = instant(*req.ValidFrom)
	}
	if req.ValidTo != nil {
		closed, err := e.Validity().Close(instant(*req.ValidTo))
		if err != nil {
			return nil, err
		}
		e.ValidTo = closed.To
	}

	if err := s.edges.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create edge: %w", err)
	}
	s.logger.Debug("edge created",
		zap.String("edge_id", e.ID.String()),
		zap.String("relation_type", e.RelationType))
	return e, nil
}

func (s *EdgeService) Get(ctx context.Context, id uuid.UUID) (*domain.Edge, error) {
	e, err := s.edges.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	return e, nil
}

// Query lists edges touching q.MemoryID, most recent ValidFrom first.
// Direction defaults to both.
func (s *EdgeService) Query(ctx context.Context, q domain.EdgeQuery) ([]domain.Edge, error) {
	if q.MemoryID == uuid.Nil {
		return nil, domain.NewValidationError("memory_id", "is required")
	}
	if q.Direction == "" {
		q.Direction = domain.DirectionBoth
	}
	if !domain.ValidDirection(string(q.Direction)) {
		return nil, domain.NewValidationError("direction", "must be one of outgoing, incoming, both")
	}
	if q.AsOf != nil {
		at := instant(*q.AsOf)
		q.AsOf = &at
	}

	edges, err := s.edges.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	if edges == nil {
		edges = []domain.Edge{}
	}
	return edges, nil
}

// Invalidate closes an edge at validTo (default now). It is one-shot: a second
// call fails with ErrAlreadyInvalidated and changes nothing.
func (s *EdgeService) Invalidate(ctx context.Context, id uuid.UUID, validTo *time.Time) (e *domain.Edge, err error) {
	defer func() { s.recorder.ObserveOperation("invalidate_edge", err) }()

	at := s.clock()
	if validTo != nil {
		at = instant(*validTo)
	}
	e, err = s.edges.Invalidate(ctx, id, at)
	if err != nil {
		return nil, fmt.Errorf("invalidate edge: %w", err)
	}
	return e, nil
}
