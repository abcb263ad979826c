package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivationService retrieves the neighborhood of seed memories by spreading
// activation over the edge graph. It only reads.
//
// Each hop issues its own edge query, so under concurrent writes a traversal
// sees each query's committed state but not one snapshot of the whole graph.
type ActivationService struct {
	memories domain.MemoryStore
	edges    domain.EdgeStore
	defaults domain.ActivationParams
	recorder Recorder
	validate *validator.Validate
	logger   *zap.Logger
}

func NewActivationService(ms domain.MemoryStore, es domain.EdgeStore, defaults domain.ActivationParams, logger *zap.Logger) *ActivationService {
	return &ActivationService{
		memories: ms,
		edges:    es,
		defaults: defaults,
		recorder: nopRecorder{},
		validate: newValidator(),
		logger:   logger,
	}
}

func (s *ActivationService) SetRecorder(r Recorder) {
	s.recorder = r
}

type activationState struct {
	activation float64
	depth      int
	path       []uuid.UUID
	edgeTypes  []string
}

type frontierItem struct {
	id         uuid.UUID
	depth      int
	activation float64
	path       []uuid.UUID
	edgeTypes  []string
}

// Activate runs a bounded breadth-first diffusion from req.SeedIDs.
//
// Seeds are pinned at activation 1.0 and depth 0. An expanding node splits
// activation*decay evenly across its traversable edges (edges whose other
// endpoint is live), weighted by edge confidence. Shares below MinActivation
// are dropped, a node never re-enters its own path, and accumulated activation
// is capped at InhibitionThreshold. At most MaxNodes nodes are expanded.
func (s *ActivationService) Activate(ctx context.Context, req domain.ActivationRequest) (*domain.ActivationResult, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	p := s.defaults.Resolve(req)
	if err := checkParams(p); err != nil {
		return nil, err
	}
	var asOf *time.Time
	if req.AsOf != nil {
		at := instant(*req.AsOf)
		asOf = &at
	}

	start := time.Now()
	seeds := uniqueIDs(req.SeedIDs)

	live, err := s.memories.GetMany(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("load seeds: %w", err)
	}
	for _, id := range seeds {
		if _, ok := live[id]; !ok {
			return nil, fmt.Errorf("%w: seed memory %s", domain.ErrNotFound, id)
		}
	}

	state := make(map[uuid.UUID]*activationState, len(seeds))
	isSeed := make(map[uuid.UUID]bool, len(seeds))
	queue := make([]frontierItem, 0, len(seeds))
	for _, id := range seeds {
		isSeed[id] = true
		state[id] = &activationState{activation: 1.0, path: []uuid.UUID{id}, edgeTypes: []string{}}
		queue = append(queue, frontierItem{id: id, activation: 1.0, path: []uuid.UUID{id}})
	}

	expanded := 0
	truncated := false

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := queue[0]
		queue = queue[1:]

		if item.depth >= p.MaxHops || item.activation < p.MinActivation {
			continue
		}
		if expanded >= p.MaxNodes {
			truncated = true
			break
		}
		expanded++

		edges, err := s.edges.Query(ctx, domain.EdgeQuery{
			MemoryID:  item.id,
			Direction: domain.DirectionBoth,
			AsOf:      asOf,
		})
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", item.id, err)
		}

		traversable, err := s.traversable(ctx, item.id, edges, live)
		if err != nil {
			return nil, err
		}

		fanOut := float64(max(1, len(traversable)))
		for _, e := range traversable {
			share := item.activation * p.DecayFactor * e.Confidence / fanOut
			if share < p.MinActivation {
				continue
			}
			next := e.Other(item.id)
			if isSeed[next] || slices.Contains(item.path, next) {
				continue
			}

			prev := state[next]
			existing := 0.0
			if prev != nil {
				existing = prev.activation
			}
			updated := min(p.InhibitionThreshold, existing+share)
			if updated <= existing {
				continue
			}

			depth := item.depth + 1
			if prev != nil && prev.depth < depth {
				depth = prev.depth
			}
			path := append(slices.Clone(item.path), next)
			trail := append(slices.Clone(item.edgeTypes), e.RelationType)

			state[next] = &activationState{activation: updated, depth: depth, path: path, edgeTypes: trail}
			queue = append(queue, frontierItem{
				id:         next,
				depth:      item.depth + 1,
				activation: updated,
				path:       path,
				edgeTypes:  trail,
			})
		}
	}

	result := &domain.ActivationResult{
		Nodes:     make([]domain.ActivatedNode, 0, len(state)),
		Visited:   expanded,
		Truncated: truncated,
	}
	for id, st := range state {
		node := domain.ActivatedNode{
			ID:         id,
			Activation: st.activation,
			Depth:      st.depth,
			Path:       st.path,
			EdgeTypes:  st.edgeTypes,
		}
		if req.IncludeMemories {
			node.Memory = live[id]
		}
		result.Nodes = append(result.Nodes, node)
	}
	sortActivated(result.Nodes)

	elapsed := time.Since(start)
	s.recorder.ObserveActivation(elapsed, expanded, len(result.Nodes), truncated)
	s.logger.Debug("spreading activation complete",
		zap.Int("seeds", len(seeds)),
		zap.Int("visited", expanded),
		zap.Int("results", len(result.Nodes)),
		zap.Bool("truncated", truncated),
		zap.Duration("duration", elapsed))

	return result, nil
}

// traversable keeps the edges whose other endpoint is a live memory, loading
// unseen endpoints into live.
func (s *ActivationService) traversable(ctx context.Context, from uuid.UUID, edges []domain.Edge, live map[uuid.UUID]*domain.Memory) ([]domain.Edge, error) {
	var unknown []uuid.UUID
	for i := range edges {
		other := edges[i].Other(from)
		if _, ok := live[other]; !ok && other != from {
			unknown = append(unknown, other)
		}
	}
	if len(unknown) > 0 {
		found, err := s.memories.GetMany(ctx, uniqueIDs(unknown))
		if err != nil {
			return nil, fmt.Errorf("load neighbors of %s: %w", from, err)
		}
		for id, m := range found {
			live[id] = m
		}
	}

	out := make([]domain.Edge, 0, len(edges))
	for _, e := range edges {
		other := e.Other(from)
		if other == from {
			continue
		}
		if _, ok := live[other]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func checkParams(p domain.ActivationParams) error {
	switch {
	case p.MaxHops < 0:
		return domain.NewValidationError("max_hops", "must be at least 0")
	case p.DecayFactor < 0 || p.DecayFactor > 1:
		return domain.NewValidationError("decay_factor", "must be within [0, 1]")
	case p.InhibitionThreshold < 1:
		return domain.NewValidationError("inhibition_threshold", "must be at least 1")
	case p.MinActivation < 0:
		return domain.NewValidationError("min_activation", "must be at least 0")
	case p.MaxNodes < 1:
		return domain.NewValidationError("max_nodes", "must be at least 1")
	}
	return nil
}

// sortActivated orders by activation desc, then depth asc, then id for
// deterministic output.
func sortActivated(nodes []domain.ActivatedNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Activation != nodes[j].Activation {
			return nodes[i].Activation > nodes[j].Activation
		}
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		return nodes[i].ID.String() < nodes[j].ID.String()
	})
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
