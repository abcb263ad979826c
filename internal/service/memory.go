package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	listBatchSize    = 200
)

type MemoryService struct {
	memories       domain.MemoryStore
	edges          domain.EdgeStore
	embedder       domain.EmbeddingClient
	params         DecayParams
	defaultProject string
	clock          Clock
	recorder       Recorder
	validate       *validator.Validate
	logger         *zap.Logger
}

// NewMemoryService wires the memory operations. ec may be nil, in which case
// memories are stored without embeddings.
func NewMemoryService(ms domain.MemoryStore, es domain.EdgeStore, ec domain.EmbeddingClient, params DecayParams, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		memories:       ms,
		edges:          es,
		embedder:       ec,
		params:         params,
		defaultProject: domain.DefaultProject,
		clock:          SystemClock,
		recorder:       nopRecorder{},
		validate:       newValidator(),
		logger:         logger,
	}
}

func (s *MemoryService) SetClock(c Clock) {
	s.clock = c
}

func (s *MemoryService) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *MemoryService) SetDefaultProject(p string) {
	if p != "" {
		s.defaultProject = p
	}
}

func (s *MemoryService) Params() DecayParams {
	return s.params
}

func (s *MemoryService) Store(ctx context.Context, req domain.StoreRequest) (m *domain.Memory, err error) {
	defer func() { s.recorder.ObserveOperation("store", err) }()

	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if err := requireContent("content", req.Content); err != nil {
		return nil, err
	}

	now := s.clock()
	m = &domain.Memory{
		ProjectID:      req.ProjectID,
		Content:        req.Content,
		Type:           req.Type,
		Tags:           req.Tags,
		Importance:     domain.DefaultImportance,
		Strength:       domain.InitialStrength,
		Confidence:     domain.DefaultConfidence,
		SourceCount:    1,
		ValidFrom:      now,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if m.ProjectID == "" {
		m.ProjectID = s.defaultProject
	}
	if m.Type == "" {
		m.Type = domain.MemoryTypeFact
	}
	if req.Importance != nil {
		m.Importance = *req.Importance
	}
	if req.Confidence != nil {
		m.Confidence = *req.Confidence
	}
	m.Normalize()

	if err := s.memories.Create(ctx, m); err != nil {
		s.logger.Error("failed to store memory", zap.Error(err))
		return nil, fmt.Errorf("store memory: %w", err)
	}

	s.attachEmbedding(ctx, m)
	return m, nil
}

// attachEmbedding never fails the caller: a missing vector only degrades
// semantic lookup.
func (s *MemoryService) attachEmbedding(ctx context.Context, m *domain.Memory) {
	if s.embedder == nil {
		return
	}

	vec, err := s.embedder.Embed(ctx, m.Content)
	s.recorder.ObserveEmbedding(err)
	if err != nil {
		s.logger.Warn("embedding failed, memory kept without vector",
			zap.String("memory_id", m.ID.String()),
			zap.Error(err))
		return
	}
	if len(vec) == 0 {
		return
	}

	ref := s.embedder.Model()
	if err := s.memories.AttachEmbedding(ctx, m.ID, ref, vec); err != nil {
		s.logger.Warn("failed to attach embedding",
			zap.String("memory_id", m.ID.String()),
			zap.Error(err))
		return
	}
	m.EmbeddingRef = ref
}

// Get reads a live memory without counting it as an access.
func (s *MemoryService) Get(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m, err := s.memories.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// Recall reads a memory and records the access.
func (s *MemoryService) Recall(ctx context.Context, id uuid.UUID) (m *domain.Memory, err error) {
	defer func() { s.recorder.ObserveOperation("recall", err) }()

	now := s.clock()
	m, err = s.memories.Modify(ctx, id, func(m *domain.Memory) error {
		m.ApplyRecall(now, s.params.RecentAccessBoost)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recall memory: %w", err)
	}
	return m, nil
}

func (s *MemoryService) Update(ctx context.Context, id uuid.UUID, req domain.UpdateRequest) (m *domain.Memory, err error) {
	defer func() { s.recorder.ObserveOperation("update", err) }()

	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.Content == nil && req.Type == nil && req.Tags == nil && req.Importance == nil {
		return nil, domain.NewValidationError("request", "must change at least one field")
	}
	if req.Content != nil {
		if err := requireContent("content", *req.Content); err != nil {
			return nil, err
		}
	}

	contentChanged := false
	m, err = s.memories.Modify(ctx, id, func(m *domain.Memory) error {
		if req.Content != nil && *req.Content != m.Content {
			m.Content = *req.Content
			contentChanged = true
		}
		if req.Type != nil {
			m.Type = *req.Type
		}
		if req.Tags != nil {
			m.Tags = *req.Tags
		}
		if req.Importance != nil {
			m.Importance = *req.Importance
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}

	if contentChanged {
		s.attachEmbedding(ctx, m)
	}
	return m, nil
}

// List returns memories with their derived scores, dropping any whose
// retention falls below the floor or whose tier was not asked for.
func (s *MemoryService) List(ctx context.Context, opts domain.ListOpts) ([]domain.ScoredMemory, error) {
	if opts.ProjectID == "" {
		opts.ProjectID = s.defaultProject
	}
	if opts.AsOf != nil {
		at := instant(*opts.AsOf)
		opts.AsOf = &at
	}
	floor := s.params.RetentionFloor
	if opts.MinRetention != nil {
		floor = *opts.MinRetention
	}

	// Retention and tier depend on the clock, so they are filtered here and
	// limit/offset count filtered results, not stored rows.
	limit, skip := opts.Limit, opts.Offset
	if limit <= 0 {
		limit = defaultListLimit
	}
	page := opts
	page.Limit = listBatchSize
	page.Offset = 0

	now := s.clock()
	out := make([]domain.ScoredMemory, 0, limit)
	for len(out) < limit {
		mems, err := s.memories.List(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list memories: %w", err)
		}
		for _, m := range mems {
			sm := Score(m, now, s.params)
			if sm.Retention < floor {
				continue
			}
			if opts.Tier != nil && sm.Tier != *opts.Tier {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			out = append(out, sm)
			if len(out) == limit {
				break
			}
		}
		if len(mems) < listBatchSize {
			break
		}
		page.Offset += listBatchSize
	}
	return out, nil
}

func (s *MemoryService) Scores(ctx context.Context, id uuid.UUID) (*domain.ScoredMemory, error) {
	m, err := s.memories.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("score memory: %w", err)
	}
	sm := Score(*m, s.clock(), s.params)
	return &sm, nil
}

// Confirm records an independent confirmation. With a source, a "confirms"
// edge source -> id is created after the counters are updated.
func (s *MemoryService) Confirm(ctx context.Context, id uuid.UUID, sourceID *uuid.UUID) (res *domain.ConfirmResult, err error) {
	defer func() { s.recorder.ObserveOperation("confirm", err) }()

	if err := s.checkEvidence(ctx, id, sourceID, "source_id"); err != nil {
		return nil, err
	}

	m, err := s.memories.Modify(ctx, id, func(m *domain.Memory) error {
		m.ApplyConfirm(s.params.ConfirmationBoost)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm memory: %w", err)
	}

	res = &domain.ConfirmResult{ID: id, NewConfidence: m.Confidence, NewSourceCount: m.SourceCount}
	if sourceID != nil {
		edgeID, err := s.link(ctx, *sourceID, id, domain.RelationConfirms, m.ProjectID, s.clock())
		if err != nil {
			return nil, fmt.Errorf("record confirmation edge: %w", err)
		}
		res.EdgeID = &edgeID
	}
	return res, nil
}

// Contradict is the penalty counterpart of Confirm.
func (s *MemoryService) Contradict(ctx context.Context, id uuid.UUID, contradictingID *uuid.UUID) (res *domain.ContradictResult, err error) {
	defer func() { s.recorder.ObserveOperation("contradict", err) }()

	if err := s.checkEvidence(ctx, id, contradictingID, "contradicting_id"); err != nil {
		return nil, err
	}

	m, err := s.memories.Modify(ctx, id, func(m *domain.Memory) error {
		m.ApplyContradict(s.params.ContradictionPenalty)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("contradict memory: %w", err)
	}

	res = &domain.ContradictResult{ID: id, NewConfidence: m.Confidence, NewContradictionCount: m.ContradictionCount}
	if contradictingID != nil {
		edgeID, err := s.link(ctx, *contradictingID, id, domain.RelationContradicts, m.ProjectID, s.clock())
		if err != nil {
			return nil, fmt.Errorf("record contradiction edge: %w", err)
		}
		res.EdgeID = &edgeID
	}
	return res, nil
}

// checkEvidence rejects an evidence source that could not become an edge,
// before any counter is touched.
func (s *MemoryService) checkEvidence(ctx context.Context, id uuid.UUID, sourceID *uuid.UUID, field string) error {
	if sourceID == nil {
		return nil
	}
	if *sourceID == id {
		return domain.NewValidationError(field, "must differ from the memory id")
	}
	if _, err := s.memories.GetByID(ctx, *sourceID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: evidence memory %s is missing or deleted", domain.ErrReferential, *sourceID)
		}
		return err
	}
	return nil
}

func (s *MemoryService) link(ctx context.Context, from, to uuid.UUID, relation, project string, at time.Time) (uuid.UUID, error) {
	e := &domain.Edge{
		ProjectID:    project,
		FromID:       from,
		ToID:         to,
		RelationType: relation,
		Confidence:   1,
		ValidFrom:    at,
		CreatedAt:    s.clock(),
	}
	if err := s.edges.Create(ctx, e); err != nil {
		return uuid.Nil, err
	}
	return e.ID, nil
}

// Delete tombstones a memory, or with permanent removes it together with
// every edge touching it.
func (s *MemoryService) Delete(ctx context.Context, id uuid.UUID, permanent bool) (res *domain.DeleteResult, err error) {
	defer func() { s.recorder.ObserveOperation("delete", err) }()

	res = &domain.DeleteResult{ID: id, Permanent: permanent}
	if permanent {
		n, err := s.memories.HardDelete(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("delete memory: %w", err)
		}
		res.EdgesRemoved = n
		s.logger.Info("memory permanently deleted",
			zap.String("memory_id", id.String()),
			zap.Int64("edges_removed", n))
	} else if err := s.memories.SoftDelete(ctx, id, s.clock()); err != nil {
		return nil, fmt.Errorf("delete memory: %w", err)
	}
	res.Deleted = true
	return res, nil
}

// Supersede makes newID the current version of oldID's fact from validFrom
// (default now) and records a "supersedes" edge new -> old, all in one store
// transaction.
func (s *MemoryService) Supersede(ctx context.Context, oldID, newID uuid.UUID, validFrom *time.Time) (res *domain.SupersedeResult, err error) {
	defer func() { s.recorder.ObserveOperation("supersede", err) }()

	at := s.clock()
	if validFrom != nil {
		at = instant(*validFrom)
	}

	edge, err := s.memories.Supersede(ctx, oldID, newID, at)
	if err != nil {
		return nil, fmt.Errorf("supersede memory: %w", err)
	}
	return &domain.SupersedeResult{OldID: oldID, NewID: newID, ValidFrom: at, EdgeID: &edge.ID}, nil
}
