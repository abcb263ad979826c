package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type MemoryType string

const (
	MemoryTypeFact        MemoryType = "fact"
	MemoryTypeEvent       MemoryType = "event"
	MemoryTypeObservation MemoryType = "observation"
	MemoryTypePreference  MemoryType = "preference"
	MemoryTypeNote        MemoryType = "note"
	MemoryTypeDecision    MemoryType = "decision"
)

func ValidMemoryType(t string) bool {
	switch MemoryType(t) {
	case MemoryTypeFact, MemoryTypeEvent, MemoryTypeObservation,
		MemoryTypePreference, MemoryTypeNote, MemoryTypeDecision:
		return true
	}
	return false
}

const (
	DefaultProject = "global"

	MinStrength     = 0.1
	MaxStrength     = 10.0
	InitialStrength = 1.0

	DefaultImportance = 0.5
	DefaultConfidence = 0.5

	MaxContentLength = 100000
	MaxTags          = 20
	MaxTagLength     = 64
)

type Memory struct {
	ID                 uuid.UUID  `json:"id"`
	ProjectID          string     `json:"project_id"`
	Content            string     `json:"content"`
	Type               MemoryType `json:"type"`
	Tags               []string   `json:"tags"`
	Importance         float64    `json:"importance"`
	Strength           float64    `json:"strength"`
	AccessCount        int        `json:"access_count"`
	Confidence         float64    `json:"confidence"`
	SourceCount        int        `json:"source_count"`
	ContradictionCount int        `json:"contradiction_count"`
	Supersedes         *uuid.UUID `json:"supersedes,omitempty"`
	SupersededBy       *uuid.UUID `json:"superseded_by,omitempty"`
	ValidFrom          time.Time  `json:"valid_from"`
	ValidTo            *time.Time `json:"valid_to,omitempty"`
	EmbeddingRef       string     `json:"embedding_ref,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastAccessedAt     time.Time  `json:"last_accessed_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// Validity returns the interval during which m is the current version of its fact.
func (m *Memory) Validity() Interval {
	return Interval{From: m.ValidFrom, To: m.ValidTo}
}

func (m *Memory) Deleted() bool {
	return m.DeletedAt != nil
}

// Normalize clamps every bounded numeric field. Stores call it before each write.
func (m *Memory) Normalize() {
	m.Confidence = Clamp01(m.Confidence)
	m.Importance = Clamp01(m.Importance)
	m.Strength = ClampStrength(m.Strength)
	if m.AccessCount < 0 {
		m.AccessCount = 0
	}
	if m.SourceCount < 1 {
		m.SourceCount = 1
	}
	if m.ContradictionCount < 0 {
		m.ContradictionCount = 0
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.ProjectID == "" {
		m.ProjectID = DefaultProject
	}
}

// ApplyRecall records one access: logarithmic strengthening plus a small confidence boost.
func (m *Memory) ApplyRecall(now time.Time, boost float64) {
	m.AccessCount++
	m.Strength = math.Min(MaxStrength, m.Strength+0.2*math.Log(float64(m.AccessCount)+1))
	m.Confidence = math.Min(1, m.Confidence+boost)
	m.LastAccessedAt = now
}

func (m *Memory) ApplyConfirm(boost float64) {
	m.SourceCount++
	m.Confidence = math.Min(1, m.Confidence+boost)
}

func (m *Memory) ApplyContradict(penalty float64) {
	m.ContradictionCount++
	m.Confidence = math.Max(0, m.Confidence-penalty)
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func ClampStrength(v float64) float64 {
	if math.IsNaN(v) {
		return MinStrength
	}
	return math.Max(MinStrength, math.Min(MaxStrength, v))
}

// StoreRequest is the input to storing a new memory.
type StoreRequest struct {
	ProjectID  string     `json:"project_id,omitempty" validate:"omitempty,max=128"`
	Content    string     `json:"content" validate:"required,max=100000"`
	Type       MemoryType `json:"type,omitempty" validate:"omitempty,memorytype"`
	Tags       []string   `json:"tags,omitempty" validate:"max=20,dive,required,max=64"`
	Importance *float64   `json:"importance,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// UpdateRequest carries the editable fields; nil means unchanged.
type UpdateRequest struct {
	Content    *string     `json:"content,omitempty" validate:"omitempty,max=100000"`
	Type       *MemoryType `json:"type,omitempty" validate:"omitempty,memorytype"`
	Tags       *[]string   `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=64"`
	Importance *float64    `json:"importance,omitempty"`
}

// ListOpts filters a listing. MinRetention and Tier are applied by the
// service after the store returns a page; stores ignore them.
type ListOpts struct {
	ProjectID         string
	Type              *MemoryType
	Tag               string
	AsOf              *time.Time
	IncludeSuperseded bool
	IncludeDeleted    bool
	MinRetention      *float64
	Tier              *MemoryTier
	Limit             int
	Offset            int
}

// ScoredMemory is a memory annotated with its derived scores at a given instant.
type ScoredMemory struct {
	Memory
	Retention           float64    `json:"retention"`
	EffectiveConfidence float64    `json:"effective_confidence"`
	Tier                MemoryTier `json:"tier"`
}

type ConfirmResult struct {
	ID             uuid.UUID  `json:"id"`
	NewConfidence  float64    `json:"new_confidence"`
	NewSourceCount int        `json:"new_source_count"`
	EdgeID         *uuid.UUID `json:"edge_id,omitempty"`
}

type ContradictResult struct {
	ID                    uuid.UUID  `json:"id"`
	NewConfidence         float64    `json:"new_confidence"`
	NewContradictionCount int        `json:"new_contradiction_count"`
	EdgeID                *uuid.UUID `json:"edge_id,omitempty"`
}

type DeleteResult struct {
	ID           uuid.UUID `json:"id"`
	Deleted      bool      `json:"deleted"`
	Permanent    bool      `json:"permanent"`
	EdgesRemoved int64     `json:"edges_removed"`
}

type SupersedeResult struct {
	OldID     uuid.UUID  `json:"old_id"`
	NewID     uuid.UUID  `json:"new_id"`
	ValidFrom time.Time  `json:"valid_from"`
	EdgeID    *uuid.UUID `json:"edge_id,omitempty"`
}
