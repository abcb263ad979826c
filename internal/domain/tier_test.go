package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTier(t *testing.T) {
	tests := []struct {
		confidence float64
		want       MemoryTier
	}{
		{1.0, TierHot},
		{0.86, TierHot},
		{0.85, TierWarm},
		{0.71, TierWarm},
		{0.70, TierCold},
		{0.41, TierCold},
		{0.40, TierArchive},
		{0, TierArchive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeTier(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestValidTier(t *testing.T) {
	assert.True(t, ValidTier("hot"))
	assert.True(t, ValidTier("archive"))
	assert.False(t, ValidTier("lukewarm"))
	assert.False(t, ValidTier(""))
}
