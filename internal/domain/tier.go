package domain

// MemoryTier buckets a memory by how much it can currently be trusted.
type MemoryTier string

const (
	TierHot     MemoryTier = "hot"
	TierWarm    MemoryTier = "warm"
	TierCold    MemoryTier = "cold"
	TierArchive MemoryTier = "archive"
)

// ComputeTier maps an effective confidence onto a tier. Bounds are
// exclusive below: 0.85 itself is warm.
func ComputeTier(effectiveConfidence float64) MemoryTier {
	switch {
	case effectiveConfidence > 0.85:
		return TierHot
	case effectiveConfidence > 0.70:
		return TierWarm
	case effectiveConfidence > 0.40:
		return TierCold
	default:
		return TierArchive
	}
}

func ValidTier(t string) bool {
	switch MemoryTier(t) {
	case TierHot, TierWarm, TierCold, TierArchive:
		return true
	}
	return false
}
