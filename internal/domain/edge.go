package domain

import (
	"time"

	"github.com/google/uuid"
)

// Relation labels produced by the services themselves. Callers may use any label.
const (
	RelationConfirms    = "confirms"
	RelationContradicts = "contradicts"
	RelationSupersedes  = "supersedes"
)

const MaxRelationTypeLength = 64

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

func ValidDirection(d string) bool {
	switch Direction(d) {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return true
	}
	return false
}

// Edge is a directed, typed relationship. ValidFrom/ValidTo is fact time,
// CreatedAt is system time.
type Edge struct {
	ID           uuid.UUID      `json:"id"`
	ProjectID    string         `json:"project_id"`
	FromID       uuid.UUID      `json:"from_id"`
	ToID         uuid.UUID      `json:"to_id"`
	RelationType string         `json:"relation_type"`
	Confidence   float64        `json:"confidence"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ValidFrom    time.Time      `json:"valid_from"`
	ValidTo      *time.Time     `json:"valid_to,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (e *Edge) Validity() Interval {
	return Interval{From: e.ValidFrom, To: e.ValidTo}
}

// Other returns the endpoint opposite to id.
func (e *Edge) Other(id uuid.UUID) uuid.UUID {
	if e.FromID == id {
		return e.ToID
	}
	return e.FromID
}

type EdgeRequest struct {
	ProjectID    string         `json:"project_id,omitempty" validate:"omitempty,max=128"`
	FromID       uuid.UUID      `json:"from_id" validate:"required"`
	ToID         uuid.UUID      `json:"to_id" validate:"required"`
	RelationType string         `json:"relation_type" validate:"required,max=64"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ValidFrom    *time.Time     `json:"valid_from,omitempty"`
	ValidTo      *time.Time     `json:"valid_to,omitempty"`
}

// EdgeQuery selects edges touching MemoryID. AsOf takes precedence over
// IncludeExpired.
type EdgeQuery struct {
	MemoryID       uuid.UUID
	Direction      Direction
	RelationType   string
	AsOf           *time.Time
	IncludeExpired bool
}

// SupersessionEdge builds the "supersedes" edge newID -> old that is written
// together with a supersede at instant at.
func SupersessionEdge(old *Memory, newID uuid.UUID, at, now time.Time) *Edge {
	return &Edge{
		ID:           uuid.New(),
		ProjectID:    old.ProjectID,
		FromID:       newID,
		ToID:         old.ID,
		RelationType: RelationSupersedes,
		Confidence:   1,
		ValidFrom:    at,
		CreatedAt:    now,
	}
}
