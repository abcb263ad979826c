package service

import (
	"math"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
)

// HighImportanceThreshold is the importance above which a memory earns
// HighImportanceBoost in its effective confidence.
const HighImportanceThreshold = 0.7

// DecayParams tunes the two forgetting processes. Retention acts on strength,
// effective confidence acts on the stored confidence; they never feed each other.
type DecayParams struct {
	DecayConstant        float64
	RecentAccessBoost    float64
	DecayPerDay          float64
	ConfirmationBoost    float64
	ContradictionPenalty float64
	HighImportanceBoost  float64
	RetentionFloor       float64
}

func DefaultDecayParams() DecayParams {
	return DecayParams{
		DecayConstant:        0.5,
		RecentAccessBoost:    0.05,
		DecayPerDay:          0.01,
		ConfirmationBoost:    0.15,
		ContradictionPenalty: 0.2,
		HighImportanceBoost:  0.1,
		RetentionFloor:       0.1,
	}
}

// Retention is exp(-hours * DecayConstant / (strength * 24)). It is pure:
// it reads the node and the clock and never writes.
func Retention(m *domain.Memory, now time.Time, p DecayParams) float64 {
	hours := idle(m, now).Hours()
	strength := domain.ClampStrength(m.Strength)
	return math.Exp(-hours * p.DecayConstant / (strength * 24))
}

// EffectiveConfidence derives the time-decayed trust score. The result is
// always in [0,1] and is never stored.
func EffectiveConfidence(m *domain.Memory, now time.Time, p DecayParams) float64 {
	days := idle(m, now).Hours() / 24

	c := m.Confidence - days*p.DecayPerDay
	c += float64(max(m.SourceCount-1, 0)) * p.ConfirmationBoost
	c -= float64(max(m.ContradictionCount, 0)) * p.ContradictionPenalty
	if m.Importance > HighImportanceThreshold {
		c += p.HighImportanceBoost
	}
	return domain.Clamp01(c)
}

// Score annotates m with both derived values at now.
func Score(m domain.Memory, now time.Time, p DecayParams) domain.ScoredMemory {
	ec := EffectiveConfidence(&m, now, p)
	return domain.ScoredMemory{
		Memory:              m,
		Retention:           Retention(&m, now, p),
		EffectiveConfidence: ec,
		Tier:                domain.ComputeTier(ec),
	}
}

// idle never goes negative, so a clock behind lastAccessedAt reads as "just accessed".
func idle(m *domain.Memory, now time.Time) time.Duration {
	d := now.Sub(m.LastAccessedAt)
	if d < 0 {
		return 0
	}
	return d
}
