package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivationRequest is the caller-facing input; nil parameters fall back to
// the configured ActivationParams.
type ActivationRequest struct {
	SeedIDs             []uuid.UUID `json:"seed_ids" validate:"required,min=1"`
	MaxHops             *int        `json:"max_hops,omitempty" validate:"omitempty,gte=0"`
	DecayFactor         *float64    `json:"decay_factor,omitempty" validate:"omitempty,gte=0,lte=1"`
	InhibitionThreshold *float64    `json:"inhibition_threshold,omitempty" validate:"omitempty,gte=1"`
	MinActivation       *float64    `json:"min_activation,omitempty" validate:"omitempty,gte=0"`
	MaxNodes            *int        `json:"max_nodes,omitempty" validate:"omitempty,gte=1"`
	AsOf                *time.Time  `json:"as_of,omitempty"`
	IncludeMemories     bool        `json:"include_memories,omitempty"`
}

type ActivationParams struct {
	MaxHops             int
	DecayFactor         float64
	InhibitionThreshold float64
	MinActivation       float64
	MaxNodes            int
}

func DefaultActivationParams() ActivationParams {
	return ActivationParams{
		MaxHops:             2,
		DecayFactor:         0.5,
		InhibitionThreshold: 1.0,
		MinActivation:       0.1,
		MaxNodes:            1000,
	}
}

// Resolve overlays the request's explicit parameters on p.
func (p ActivationParams) Resolve(req ActivationRequest) ActivationParams {
	if req.MaxHops != nil {
		p.MaxHops = *req.MaxHops
	}
	if req.DecayFactor != nil {
		p.DecayFactor = *req.DecayFactor
	}
	if req.InhibitionThreshold != nil {
		p.InhibitionThreshold = *req.InhibitionThreshold
	}
	if req.MinActivation != nil {
		p.MinActivation = *req.MinActivation
	}
	if req.MaxNodes != nil {
		p.MaxNodes = *req.MaxNodes
	}
	return p
}

type ActivatedNode struct {
	ID         uuid.UUID   `json:"id"`
	Activation float64     `json:"activation"`
	Depth      int         `json:"depth"`
	Path       []uuid.UUID `json:"path"`
	EdgeTypes  []string    `json:"edge_types_traversed"`
	Memory     *Memory     `json:"memory,omitempty"`
}

// ActivationResult is computed per traversal and never persisted.
type ActivationResult struct {
	Nodes     []ActivatedNode `json:"nodes"`
	Visited   int             `json:"visited"`
	Truncated bool            `json:"truncated"`
}

func (r *ActivationResult) ByID() map[uuid.UUID]ActivatedNode {
	out := make(map[uuid.UUID]ActivatedNode, len(r.Nodes))
	for _, n := range r.Nodes {
		out[n.ID] = n
	}
	return out
}
