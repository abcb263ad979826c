package service

import (
	"context"
	"testing"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEdgeFixture(t *testing.T) (*EdgeService, *memoryFixture) {
	t.Helper()
	mf := newMemoryFixture(t)
	svc := NewEdgeService(mf.es, zap.NewNop())
	svc.SetClock(mf.clock.Now)
	return svc, mf
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestEdgeService_CreateDefaults(t *testing.T) {
	svc, mf := newEdgeFixture(t)
	a, b := mf.store(t, "a"), mf.store(t, "b")

	e, err := svc.Create(context.Background(), domain.EdgeRequest{
		FromID:       a.ID,
		ToID:         b.ID,
		RelationType: "depends_on",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Confidence)
	assert.Equal(t, domain.DefaultProject, e.ProjectID)
	assert.True(t, e.ValidFrom.Equal(mf.clock.now))
	assert.Nil(t, e.ValidTo)
}

func TestEdgeService_CreateValidation(t *testing.T) {
	svc, mf := newEdgeFixture(t)
	a, b := mf.store(t, "a"), mf.store(t, "b")
	long := string(make([]byte, domain.MaxRelationTypeLength+1))

	tests := []struct {
		name string
		req  domain.EdgeRequest
		want error
	}{
		{"missing relation", domain.EdgeRequest{FromID: a.ID, ToID: b.ID}, domain.ErrValidation},
		{"relation too long", domain.EdgeRequest{FromID: a.ID, ToID: b.ID, RelationType: long}, domain.ErrValidation},
		{"missing from", domain.EdgeRequest{ToID: b.ID, RelationType: "r"}, domain.ErrValidation},
		{"self loop", domain.EdgeRequest{FromID: a.ID, ToID: a.ID, RelationType: "r"}, domain.ErrValidation},
		{"ends before it starts", domain.EdgeRequest{FromID: a.ID, ToID: b.ID, RelationType: "r",
			ValidFrom: day("2024-06-01"), ValidTo: day("2024-01-01")}, domain.ErrValidation},
		{"unknown endpoint", domain.EdgeRequest{FromID: a.ID, ToID: uuid.New(), RelationType: "r"}, domain.ErrReferential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEdgeService_CreateRejectsTombstonedEndpoint(t *testing.T) {
	svc, mf := newEdgeFixture(t)
	ctx := context.Background()
	a, b := mf.store(t, "a"), mf.store(t, "b")
	_, err := mf.svc.Delete(ctx, b.ID, false)
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.EdgeRequest{FromID: a.ID, ToID: b.ID, RelationType: "r"})
	assert.ErrorIs(t, err, domain.ErrReferential)
}

func TestEdgeService_AsOfQuery(t *testing.T) {
	svc, mf := newEdgeFixture(t)
	ctx := context.Background()
	a, b := mf.store(t, "a"), mf.store(t, "b")

	e, err := svc.Create(ctx, domain.EdgeRequest{FromID: a.ID, ToID: b.ID, RelationType: "works_at", ValidFrom: day("2024-01-01")})
	require.NoError(t, err)
	_, err = svc.Invalidate(ctx, e.ID, day("2024-06-01"))
	require.NoError(t, err)

	tests := []struct {
		asOf string
		want int
	}{
		{"2024-03-01", 1},
		{"2024-06-01", 0},
		{"2023-12-31", 0},
	}
	for _, tt := range tests {
		t.Run(tt.asOf, func(t *testing.T) {
			got, err := svc.Query(ctx, domain.EdgeQuery{MemoryID: a.ID, AsOf: day(tt.asOf)})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	current, err := svc.Query(ctx, domain.EdgeQuery{MemoryID: a.ID})
	require.NoError(t, err)
	assert.NotNil(t, current)
	assert.Empty(t, current)

	history, err := svc.Query(ctx, domain.EdgeQuery{MemoryID: a.ID, IncludeExpired: true})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEdgeService_QueryValidation(t *testing.T) {
	svc, _ := newEdgeFixture(t)

	_, err := svc.Query(context.Background(), domain.EdgeQuery{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Query(context.Background(), domain.EdgeQuery{MemoryID: uuid.New(), Direction: "sideways"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEdgeService_InvalidateOnce(t *testing.T) {
	svc, mf := newEdgeFixture(t)
	ctx := context.Background()
	a, b := mf.store(t, "a"), mf.store(t, "b")

	e, err := svc.Create(ctx, domain.EdgeRequest{FromID: a.ID, ToID: b.ID, RelationType: "r"})
	require.NoError(t, err)

	mf.clock.Advance(time.Hour)
	closed, err := svc.Invalidate(ctx, e.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, closed.ValidTo)
	assert.True(t, closed.ValidTo.Equal(mf.clock.now), "defaults to now")

	mf.clock.Advance(time.Hour)
	_, err = svc.Invalidate(ctx, e.ID, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyInvalidated)

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.ValidTo.Equal(*closed.ValidTo), "valid_to unchanged")

	_, err = svc.Invalidate(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
