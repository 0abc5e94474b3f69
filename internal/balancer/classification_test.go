package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationCanonical(t *testing.T) {
	assert.Equal(t, "$10.00", Balance(10).Canonical())
	assert.Equal(t, "$0.50", Balance(0.5).Canonical())
	assert.Equal(t, "$12.35", Balance(12.345).Canonical())
	assert.Equal(t, "invalid_key", Invalid().Canonical())
	assert.Equal(t, "leaked_key", Leaked().Canonical())
	assert.Equal(t, "Free Tier", Free("Free Tier").Canonical())
	assert.Equal(t, "Free Key", Free("").Canonical())
	assert.Equal(t, "Has Credits", Paid("Has Credits").Canonical())
	assert.Equal(t, "Paid Key", Paid("").Canonical())
	assert.Equal(t, "Rate Limited", RateLimited().Canonical())
	assert.Equal(t, "Unknown", Unknown("").Canonical())
	assert.Equal(t, "Unknown Tier", Unknown("Unknown Tier").Canonical())
}

func TestClassificationUsable(t *testing.T) {
	assert.False(t, Invalid().Usable())
	assert.False(t, Leaked().Usable())
	assert.True(t, Free("Free Key").Usable())
	assert.True(t, Paid("Paid Key").Usable())
	assert.True(t, Balance(3).Usable())
	assert.True(t, RateLimited().Usable())
	assert.True(t, Unknown("").Usable())
}

func TestClassificationTransient(t *testing.T) {
	assert.True(t, RateLimited().Transient())
	assert.False(t, Balance(1).Transient())
	assert.False(t, Invalid().Transient())
	assert.False(t, Unknown("").Transient())
}
