package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryStore persists memory nodes. Every method that returns a memory
// returns live (non-tombstoned) nodes only, unless noted.
type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	// GetMany returns the live memories among ids, keyed by id. Missing ids are absent.
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Memory, error)
	List(ctx context.Context, opts ListOpts) ([]Memory, error)
	// Modify loads a live memory, applies fn and writes it back atomically.
	Modify(ctx context.Context, id uuid.UUID, fn func(m *Memory) error) (*Memory, error)
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	// HardDelete removes the node (tombstoned or not) and every edge touching it
	// in one transaction, returning the number of edges removed. A predecessor
	// the node superseded becomes the current version again.
	HardDelete(ctx context.Context, id uuid.UUID) (int64, error)
	// Supersede links old -> new at t and writes the "supersedes" edge
	// new -> old in the same transaction. A node whose validity is already
	// closed fails with ErrAlreadySuperseded.
	Supersede(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (*Edge, error)
	AttachEmbedding(ctx context.Context, id uuid.UUID, ref string, vector []float32) error
	GetEmbedding(ctx context.Context, id uuid.UUID) ([]float32, error)
	// WeakenIdle multiplies strength by factor for live memories not accessed since idleSince.
	WeakenIdle(ctx context.Context, idleSince time.Time, factor float64) (int64, error)
}

type EdgeStore interface {
	// Create fails with ErrReferential if either endpoint is missing or tombstoned.
	Create(ctx context.Context, e *Edge) error
	GetByID(ctx context.Context, id uuid.UUID) (*Edge, error)
	// Query returns matching edges, most recent ValidFrom first.
	Query(ctx context.Context, q EdgeQuery) ([]Edge, error)
	// Invalidate closes the edge's validity at t; ErrAlreadyInvalidated if already closed.
	Invalidate(ctx context.Context, id uuid.UUID, at time.Time) (*Edge, error)
	DeleteByEndpoint(ctx context.Context, memoryID uuid.UUID) (int64, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the vector space; it becomes the memory's embedding ref.
	Model() string
}
