package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier(" Elite ")
	assert.True(t, ok)
	assert.Equal(t, TierElite, tier)

	_, ok = ParseTier("platinum")
	assert.False(t, ok)
	assert.False(t, Tier("platinum").Valid())
}
