package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindowLimiterPerClient(t *testing.T) {
	rl := NewFixedWindowLimiter(2, time.Hour)

	allowed, _ := rl.Allow("1.2.3.4")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("1.2.3.4")
	assert.True(t, allowed)

	allowed, retryAfter := rl.Allow("1.2.3.4")
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	// Other clients are unaffected.
	allowed, _ = rl.Allow("5.6.7.8")
	assert.True(t, allowed)
}

func TestFixedWindowLimiterResets(t *testing.T) {
	rl := NewFixedWindowLimiter(1, 10*time.Millisecond)

	allowed, _ := rl.Allow("1.2.3.4")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("1.2.3.4")
	assert.False(t, allowed)

	time.Sleep(15 * time.Millisecond)

	allowed, _ = rl.Allow("1.2.3.4")
	assert.True(t, allowed)
}
