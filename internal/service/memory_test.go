package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryFixture struct {
	svc   *MemoryService
	ms    *fakeMemoryStore
	es    *fakeEdgeStore
	emb   *fakeEmbedder
	clock *fixedClock
}

func newMemoryFixture(t *testing.T) *memoryFixture {
	t.Helper()
	ms, es := newFakeStores()
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	clock := &fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	svc := NewMemoryService(ms, es, emb, DefaultDecayParams(), zap.NewNop())
	svc.SetClock(clock.Now)
	return &memoryFixture{svc: svc, ms: ms, es: es, emb: emb, clock: clock}
}

func (f *memoryFixture) store(t *testing.T, content string) *domain.Memory {
	t.Helper()
	m, err := f.svc.Store(context.Background(), domain.StoreRequest{Content: content})
	require.NoError(t, err)
	return m
}

func ptr[T any](v T) *T { return &v }

func TestMemoryService_StoreDefaults(t *testing.T) {
	f := newMemoryFixture(t)

	m, err := f.svc.Store(context.Background(), domain.StoreRequest{
		Content:    "Go was released in 2009",
		Tags:       []string{"go"},
		Importance: ptr(1.8),
		Confidence: ptr(-0.3),
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, domain.DefaultProject, m.ProjectID)
	assert.Equal(t, domain.MemoryTypeFact, m.Type)
	assert.Equal(t, 0, m.AccessCount)
	assert.Equal(t, 1.0, m.Strength)
	assert.Equal(t, 1, m.SourceCount)
	assert.Equal(t, 1.0, m.Importance, "importance clamped")
	assert.Equal(t, 0.0, m.Confidence, "confidence clamped")
	assert.True(t, m.CreatedAt.Equal(f.clock.now))
	assert.True(t, m.ValidFrom.Equal(f.clock.now))
	assert.Equal(t, "fake-embed", m.EmbeddingRef)

	vec, err := f.ms.GetEmbedding(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestMemoryService_StoreUsesDefaultProject(t *testing.T) {
	f := newMemoryFixture(t)
	f.svc.SetDefaultProject("research")

	m := f.store(t, "scoped")
	assert.Equal(t, "research", m.ProjectID)

	m, err := f.svc.Store(context.Background(), domain.StoreRequest{Content: "explicit", ProjectID: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "ops", m.ProjectID)
}

func TestMemoryService_StoreValidation(t *testing.T) {
	f := newMemoryFixture(t)

	longTags := make([]string, domain.MaxTags+1)
	for i := range longTags {
		longTags[i] = "t"
	}

	tests := []struct {
		name  string
		req   domain.StoreRequest
		field string
	}{
		{"empty content", domain.StoreRequest{}, "content"},
		{"blank content", domain.StoreRequest{Content: "   \n"}, "content"},
		{"unknown type", domain.StoreRequest{Content: "x", Type: "rumor"}, "type"},
		{"too many tags", domain.StoreRequest{Content: "x", Tags: longTags}, "tags"},
		{"tag too long", domain.StoreRequest{Content: "x", Tags: []string{string(make([]byte, 65))}}, "tags[0]"},
		{"empty tag", domain.StoreRequest{Content: "x", Tags: []string{""}}, "tags[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Store(context.Background(), tt.req)
			require.ErrorIs(t, err, domain.ErrValidation)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
	assert.Empty(t, f.ms.memories, "nothing stored on validation failure")
}

func TestMemoryService_StoreSurvivesEmbeddingFailure(t *testing.T) {
	f := newMemoryFixture(t)
	f.emb.err = errEmbedDown

	m := f.store(t, "no vector for me")
	assert.Empty(t, m.EmbeddingRef)
	assert.Equal(t, 1, f.emb.calls)

	got, err := f.svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "no vector for me", got.Content)
}

func TestMemoryService_StoreWithoutEmbedder(t *testing.T) {
	ms, es := newFakeStores()
	svc := NewMemoryService(ms, es, nil, DefaultDecayParams(), zap.NewNop())

	m, err := svc.Store(context.Background(), domain.StoreRequest{Content: "plain"})
	require.NoError(t, err)
	assert.Empty(t, m.EmbeddingRef)
}

func TestMemoryService_Recall(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	m := f.store(t, "recall me")

	f.clock.Advance(time.Hour)
	got, err := f.svc.Recall(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.Greater(t, got.Strength, 1.0)
	assert.InDelta(t, 0.55, got.Confidence, 1e-9)
	assert.True(t, got.LastAccessedAt.Equal(f.clock.now))

	again, err := f.svc.Recall(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.AccessCount)
	assert.GreaterOrEqual(t, again.Strength, got.Strength)

	_, err = f.svc.Delete(ctx, m.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Recall(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryService_GetDoesNotCountAccess(t *testing.T) {
	f := newMemoryFixture(t)
	m := f.store(t, "peek")

	got, err := f.svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AccessCount)

	_, err = f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryService_Update(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	m := f.store(t, "draft")
	require.Equal(t, 1, f.emb.calls)

	got, err := f.svc.Update(ctx, m.ID, domain.UpdateRequest{
		Content:    ptr("final"),
		Type:       ptr(domain.MemoryTypeDecision),
		Tags:       &[]string{"adr"},
		Importance: ptr(7.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "final", got.Content)
	assert.Equal(t, domain.MemoryTypeDecision, got.Type)
	assert.Equal(t, []string{"adr"}, got.Tags)
	assert.Equal(t, 1.0, got.Importance)
	assert.Equal(t, 2, f.emb.calls, "content change re-embeds")

	_, err = f.svc.Update(ctx, m.ID, domain.UpdateRequest{Importance: ptr(0.2)})
	require.NoError(t, err)
	assert.Equal(t, 2, f.emb.calls, "no re-embed without content change")

	_, err = f.svc.Update(ctx, m.ID, domain.UpdateRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Update(ctx, m.ID, domain.UpdateRequest{Type: ptr(domain.MemoryType("gossip"))})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Update(ctx, uuid.New(), domain.UpdateRequest{Content: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryService_ListAppliesRetentionFloor(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	stale := f.store(t, "stale")
	f.clock.Advance(30 * 24 * time.Hour)
	fresh := f.store(t, "fresh")

	got, err := f.svc.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)
	assert.Equal(t, 1.0, got[0].Retention)
	assert.InDelta(t, 0.5, got[0].EffectiveConfidence, 1e-9)

	all, err := f.svc.List(ctx, domain.ListOpts{MinRetention: ptr(0.0)})
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []uuid.UUID{all[0].ID, all[1].ID}
	assert.Contains(t, ids, stale.ID)
}

func TestMemoryService_ListFiltersByTier(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	m := f.store(t, "lukewarm")

	cold, err := f.svc.List(ctx, domain.ListOpts{Tier: ptr(domain.TierCold)})
	require.NoError(t, err)
	require.Len(t, cold, 1)
	assert.Equal(t, m.ID, cold[0].ID)
	assert.Equal(t, domain.TierCold, cold[0].Tier)

	hot, err := f.svc.List(ctx, domain.ListOpts{Tier: ptr(domain.TierHot)})
	require.NoError(t, err)
	assert.Empty(t, hot)
}

func TestMemoryService_ListPagesFilteredResults(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	// Hot and cold memories alternate in recency order, across more than
	// one store batch.
	var hot []uuid.UUID
	for i := 0; i < 2*listBatchSize+20; i++ {
		m := &domain.Memory{
			Content:        "m",
			Type:           domain.MemoryTypeFact,
			Strength:       1,
			Confidence:     0.5,
			SourceCount:    1,
			LastAccessedAt: f.clock.now.Add(-time.Duration(i) * time.Minute),
			ValidFrom:      f.clock.now.Add(-time.Hour),
		}
		if i%2 == 0 {
			m.Confidence = 0.95
		}
		require.NoError(t, f.ms.Create(ctx, m))
		if i%2 == 0 {
			hot = append(hot, m.ID)
		}
	}

	page, err := f.svc.List(ctx, domain.ListOpts{Tier: ptr(domain.TierHot), Limit: 3, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 3)
	for i, sm := range page {
		assert.Equal(t, hot[i+1], sm.ID)
	}

	tail, err := f.svc.List(ctx, domain.ListOpts{Tier: ptr(domain.TierHot), Limit: 10, Offset: len(hot) - 4})
	require.NoError(t, err)
	require.Len(t, tail, 4)
	assert.Equal(t, hot[len(hot)-1], tail[3].ID)

	all, err := f.svc.List(ctx, domain.ListOpts{Tier: ptr(domain.TierHot), Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, all, len(hot))
}

func TestMemoryService_Scores(t *testing.T) {
	f := newMemoryFixture(t)
	m := f.store(t, "scored")
	f.clock.Advance(24 * time.Hour)

	sc, err := f.svc.Scores(context.Background(), m.ID)
	require.NoError(t, err)
	assert.InDelta(t, Retention(m, f.clock.now, DefaultDecayParams()), sc.Retention, 1e-12)
	assert.InDelta(t, 0.49, sc.EffectiveConfidence, 1e-9)
}

func TestMemoryService_ConfirmWithSource(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	target := f.store(t, "claim")
	source := f.store(t, "evidence")

	res, err := f.svc.Confirm(ctx, target.ID, &source.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewSourceCount)
	assert.InDelta(t, 0.65, res.NewConfidence, 1e-9)
	require.NotNil(t, res.EdgeID)

	e, err := f.es.GetByID(ctx, *res.EdgeID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationConfirms, e.RelationType)
	assert.Equal(t, source.ID, e.FromID)
	assert.Equal(t, target.ID, e.ToID)
}

func TestMemoryService_ConfirmRejectsBadSource(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	target := f.store(t, "claim")

	_, err := f.svc.Confirm(ctx, target.ID, &target.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	missing := uuid.New()
	_, err = f.svc.Confirm(ctx, target.ID, &missing)
	assert.ErrorIs(t, err, domain.ErrReferential)

	got, err := f.svc.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SourceCount, "counters untouched on rejected source")

	res, err := f.svc.Confirm(ctx, target.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, res.EdgeID)
	assert.Equal(t, 2, res.NewSourceCount)
}

func TestMemoryService_Contradict(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	target := f.store(t, "claim")
	rebuttal := f.store(t, "rebuttal")

	res, err := f.svc.Contradict(ctx, target.ID, &rebuttal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewContradictionCount)
	assert.InDelta(t, 0.3, res.NewConfidence, 1e-9)
	require.NotNil(t, res.EdgeID)

	for i := 0; i < 5; i++ {
		res, err = f.svc.Contradict(ctx, target.ID, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 0.0, res.NewConfidence, "confidence floors at 0")
	assert.Equal(t, 6, res.NewContradictionCount)
}

func TestMemoryService_Delete(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	a := f.store(t, "a")
	b := f.store(t, "b")
	c := f.store(t, "c")
	_, err := f.svc.Confirm(ctx, a.ID, &b.ID)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, c.ID, &a.ID)
	require.NoError(t, err)

	soft, err := f.svc.Delete(ctx, b.ID, false)
	require.NoError(t, err)
	assert.True(t, soft.Deleted)
	assert.False(t, soft.Permanent)
	edges, err := f.es.Query(ctx, domain.EdgeQuery{MemoryID: b.ID, IncludeExpired: true})
	require.NoError(t, err)
	assert.Len(t, edges, 1, "soft delete leaves edges")

	hard, err := f.svc.Delete(ctx, a.ID, true)
	require.NoError(t, err)
	assert.True(t, hard.Permanent)
	assert.Equal(t, int64(2), hard.EdgesRemoved)
	assert.Empty(t, f.es.edges)

	_, err = f.svc.Delete(ctx, a.ID, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryService_Supersede(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	old := f.store(t, "lives in Paris")
	f.clock.Advance(time.Hour)
	next := f.store(t, "lives in Berlin")

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err := f.svc.Supersede(ctx, old.ID, next.ID, &at)
	require.NoError(t, err)
	assert.True(t, res.ValidFrom.Equal(at))
	require.NotNil(t, res.EdgeID)

	gotOld, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	gotNew, err := f.svc.Get(ctx, next.ID)
	require.NoError(t, err)

	require.NotNil(t, gotOld.ValidTo)
	assert.True(t, gotOld.ValidTo.Equal(at))
	assert.True(t, gotNew.ValidFrom.Equal(at))
	assert.Equal(t, next.ID, *gotOld.SupersededBy)
	assert.Equal(t, old.ID, *gotNew.Supersedes)

	e, err := f.es.GetByID(ctx, *res.EdgeID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationSupersedes, e.RelationType)
	assert.Equal(t, next.ID, e.FromID)
	assert.Equal(t, old.ID, e.ToID)
	assert.True(t, e.ValidFrom.Equal(at))

	_, err = f.svc.Supersede(ctx, old.ID, next.ID, &at)
	assert.ErrorIs(t, err, domain.ErrAlreadySuperseded)

	_, err = f.svc.Supersede(ctx, next.ID, old.ID, nil)
	assert.ErrorIs(t, err, domain.ErrCycleDetected)
}

func TestMemoryService_SupersedeEdgeIsPartOfTheStoreCall(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	old := f.store(t, "v1")
	next := f.store(t, "v2")
	f.es.failOn = errors.New("edge store down")

	res, err := f.svc.Supersede(ctx, old.ID, next.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, res.EdgeID)
	assert.Contains(t, f.es.edges, *res.EdgeID)
}

func TestMemoryService_SupersedeAfterSuccessorDeleted(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	a := f.store(t, "v1")
	b := f.store(t, "v2")
	c := f.store(t, "v3")

	_, err := f.svc.Supersede(ctx, a.ID, b.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, b.ID, true)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ValidTo)
	assert.Nil(t, got.SupersededBy)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Supersede(ctx, a.ID, c.ID, nil)
	require.NoError(t, err)
}
