package service

import (
	"context"
	"testing"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweep_WeakensIdleMemories(t *testing.T) {
	ms, _ := newFakeStores()
	ctx := context.Background()

	idle := &domain.Memory{Content: "idle", Strength: 2, LastAccessedAt: testNow.Add(-40 * 24 * time.Hour)}
	active := &domain.Memory{Content: "active", Strength: 2, LastAccessedAt: testNow.Add(-24 * time.Hour)}
	floor := &domain.Memory{Content: "floor", Strength: 0.105, LastAccessedAt: testNow.Add(-90 * 24 * time.Hour)}
	for _, m := range []*domain.Memory{idle, active, floor} {
		require.NoError(t, ms.Create(ctx, m))
	}

	svc := NewSweepService(ms, DefaultSweepConfig(), zap.NewNop())
	svc.SetClock(func() time.Time { return testNow })

	n, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.InDelta(t, 1.8, ms.memories[idle.ID].Strength, 1e-9)
	assert.Equal(t, 2.0, ms.memories[active.ID].Strength)
	assert.Equal(t, domain.MinStrength, ms.memories[floor.ID].Strength)

	n, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "memories at the floor are left alone")
}

func TestSweep_RejectsBadFactor(t *testing.T) {
	ms, _ := newFakeStores()
	cfg := DefaultSweepConfig()
	cfg.Factor = 1.2

	_, err := NewSweepService(ms, cfg, zap.NewNop()).RunOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSweep_StartStop(t *testing.T) {
	ms, _ := newFakeStores()
	require.NoError(t, ms.Create(context.Background(), &domain.Memory{
		Content:        "old",
		Strength:       5,
		LastAccessedAt: time.Now().Add(-365 * 24 * time.Hour),
	}))

	cfg := DefaultSweepConfig()
	cfg.Interval = 5 * time.Millisecond
	svc := NewSweepService(ms, cfg, zap.NewNop())

	svc.Start()
	assert.Eventually(t, func() bool {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		for _, m := range ms.memories {
			if m.Strength < 5 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	svc.Stop()
	svc.Stop()
}
