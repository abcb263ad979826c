package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
)

// fakeMemoryStore implements domain.MemoryStore in memory.
type fakeMemoryStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*domain.Memory
	vectors  map[uuid.UUID][]float32
	edges    *fakeEdgeStore
}

// fakeEdgeStore implements domain.EdgeStore in memory.
type fakeEdgeStore struct {
	mu      sync.Mutex
	edges   map[uuid.UUID]*domain.Edge
	mems    *fakeMemoryStore
	queries int
	failOn  error
}

func newFakeStores() (*fakeMemoryStore, *fakeEdgeStore) {
	ms := &fakeMemoryStore{
		memories: make(map[uuid.UUID]*domain.Memory),
		vectors:  make(map[uuid.UUID][]float32),
	}
	es := &fakeEdgeStore{edges: make(map[uuid.UUID]*domain.Edge), mems: ms}
	ms.edges = es
	return ms, es
}

func (f *fakeMemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.Normalize()
	cp := *m
	f.memories[m.ID] = &cp
	return nil
}

func (f *fakeMemoryStore) live(id uuid.UUID) (*domain.Memory, bool) {
	m, ok := f.memories[id]
	if !ok || m.Deleted() {
		return nil, false
	}
	return m, true
}

func (f *fakeMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.live(id)
	if !ok {
		return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemoryStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*domain.Memory)
	for _, id := range ids {
		if m, ok := f.live(id); ok {
			cp := *m
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeMemoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Memory
	for _, m := range f.memories {
		if opts.ProjectID != "" && m.ProjectID != opts.ProjectID {
			continue
		}
		if m.Deleted() && !opts.IncludeDeleted {
			continue
		}
		if opts.AsOf != nil {
			if !m.Validity().Contains(*opts.AsOf) {
				continue
			}
		} else if m.ValidTo != nil && !opts.IncludeSuperseded {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessedAt.Equal(out[j].LastAccessedAt) {
			return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeMemoryStore) Modify(ctx context.Context, id uuid.UUID, fn func(m *domain.Memory) error) (*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.live(id)
	if !ok {
		return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	cp := *m
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.Normalize()
	f.memories[id] = &cp
	out := cp
	return &out, nil
}

func (f *fakeMemoryStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.live(id)
	if !ok {
		return fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	m.DeletedAt = &at
	return nil
}

func (f *fakeMemoryStore) HardDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memories[id]; !ok {
		return 0, fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}
	n, _ := f.edges.DeleteByEndpoint(ctx, id)
	for _, m := range f.memories {
		if m.SupersededBy != nil && *m.SupersededBy == id {
			m.SupersededBy = nil
			m.ValidTo = nil
		}
		if m.Supersedes != nil && *m.Supersedes == id {
			m.Supersedes = nil
		}
	}
	delete(f.memories, id)
	delete(f.vectors, id)
	return n, nil
}

func (f *fakeMemoryStore) Supersede(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (*domain.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.live(oldID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	next, ok := f.live(newID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if old.SupersededBy != nil || old.ValidTo != nil {
		return nil, domain.ErrAlreadySuperseded
	}
	for cur := &oldID; cur != nil; {
		if *cur == newID {
			return nil, domain.ErrCycleDetected
		}
		m, ok := f.memories[*cur]
		if !ok {
			break
		}
		cur = m.Supersedes
	}
	if next.Supersedes != nil || next.SupersededBy != nil {
		return nil, domain.NewValidationError("new_id", "is already part of another supersession chain")
	}
	closed, err := old.Validity().Close(at)
	if err != nil {
		return nil, err
	}
	old.ValidTo = closed.To
	old.SupersededBy = &newID
	next.ValidFrom = at
	next.Supersedes = &oldID

	edge := domain.SupersessionEdge(old, newID, at, at)
	f.edges.mu.Lock()
	cp := *edge
	f.edges.edges[edge.ID] = &cp
	f.edges.mu.Unlock()
	return edge, nil
}

func (f *fakeMemoryStore) AttachEmbedding(ctx context.Context, id uuid.UUID, ref string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.live(id)
	if !ok {
		return domain.ErrNotFound
	}
	m.EmbeddingRef = ref
	f.vectors[id] = vector
	return nil
}

func (f *fakeMemoryStore) GetEmbedding(ctx context.Context, id uuid.UUID) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vectors[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeMemoryStore) WeakenIdle(ctx context.Context, idleSince time.Time, factor float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.memories {
		if m.Deleted() || !m.LastAccessedAt.Before(idleSince) || m.Strength <= domain.MinStrength {
			continue
		}
		m.Strength = max(domain.MinStrength, m.Strength*factor)
		n++
	}
	return n, nil
}

func (f *fakeEdgeStore) Create(ctx context.Context, e *domain.Edge) error {
	if f.failOn != nil {
		return f.failOn
	}
	if _, err := f.mems.GetByID(ctx, e.FromID); err != nil {
		return domain.ErrReferential
	}
	if _, err := f.mems.GetByID(ctx, e.ToID); err != nil {
		return domain.ErrReferential
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	f.edges[e.ID] = &cp
	return nil
}

func (f *fakeEdgeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.edges[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEdgeStore) Query(ctx context.Context, q domain.EdgeQuery) ([]domain.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	var out []domain.Edge
	for _, e := range f.edges {
		switch q.Direction {
		case domain.DirectionOutgoing:
			if e.FromID != q.MemoryID {
				continue
			}
		case domain.DirectionIncoming:
			if e.ToID != q.MemoryID {
				continue
			}
		default:
			if e.FromID != q.MemoryID && e.ToID != q.MemoryID {
				continue
			}
		}
		if q.RelationType != "" && e.RelationType != q.RelationType {
			continue
		}
		if q.AsOf != nil {
			if !e.Validity().Contains(*q.AsOf) {
				continue
			}
		} else if !q.IncludeExpired && e.ValidTo != nil {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ValidFrom.After(out[j].ValidFrom)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (f *fakeEdgeStore) Invalidate(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.edges[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	closed, err := e.Validity().Close(at)
	if err != nil {
		return nil, err
	}
	e.ValidTo = closed.To
	cp := *e
	return &cp, nil
}

func (f *fakeEdgeStore) DeleteByEndpoint(ctx context.Context, memoryID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.edges {
		if e.FromID == memoryID || e.ToID == memoryID {
			delete(f.edges, id)
			n++
		}
	}
	return n, nil
}

// fakeEmbedder returns a fixed vector or a fixed error.
type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

var errEmbedDown = errors.New("embedding provider unavailable")

// fixedClock returns a settable clock.
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
