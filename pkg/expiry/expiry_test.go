package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsExpiredBoundary(t *testing.T) {
	stored := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour

	assert.False(t, IsExpired(stored, stored, ttl))
	assert.False(t, IsExpired(stored, stored.Add(ttl-time.Millisecond), ttl))
	assert.True(t, IsExpired(stored, stored.Add(ttl), ttl), "expiry is inclusive at exactly TTL")
	assert.True(t, IsExpired(stored, stored.Add(48*time.Hour), ttl))
}

func TestPolicyUsesClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p := WithClock(time.Hour, func() time.Time { return now })

	assert.Equal(t, now, p.Now())
	assert.False(t, p.Expired(now.Add(-59*time.Minute)))
	assert.True(t, p.Expired(now.Add(-time.Hour)))
}

func TestPolicyCutoff(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p := WithClock(time.Hour, func() time.Time { return now })

	cutoff := p.Cutoff()
	assert.Equal(t, now.Add(-time.Hour), cutoff)
	assert.True(t, p.Expired(cutoff))
	assert.False(t, p.Expired(cutoff.Add(time.Millisecond)))

	var zero Policy
	assert.WithinDuration(t, time.Now().Add(-DefaultTTL), zero.Cutoff(), time.Second)
}

func TestPolicyDefaults(t *testing.T) {
	p := New(0)
	assert.Equal(t, DefaultTTL, p.TTL)

	var zero Policy
	assert.False(t, zero.Expired(time.Now().Add(-23*time.Hour)))
	assert.True(t, zero.Expired(time.Now().Add(-25*time.Hour)))
}
