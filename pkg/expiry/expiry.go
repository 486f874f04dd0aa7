// Package expiry decides whether a cached response is still fresh.
package expiry

import "time"

// DefaultTTL is how long a cached response stays valid.
const DefaultTTL = 24 * time.Hour

// IsExpired reports whether an entry stored at storedAt is no longer valid at now.
func IsExpired(storedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(storedAt) >= ttl
}

// Policy binds a TTL to a clock.
type Policy struct {
	TTL time.Duration
	now func() time.Time
}

// New returns a Policy using the wall clock. A non-positive ttl means DefaultTTL.
func New(ttl time.Duration) Policy {
	return WithClock(ttl, time.Now)
}

// WithClock returns a Policy that reads the current time from now.
func WithClock(ttl time.Duration, now func() time.Time) Policy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return Policy{TTL: ttl, now: now}
}

// Now returns the policy's current time.
func (p Policy) Now() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// Cutoff returns the latest storedAt that is expired right now.
func (p Policy) Cutoff() time.Time {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return p.Now().Add(-ttl)
}

// Expired reports whether an entry stored at storedAt is expired right now.
func (p Policy) Expired(storedAt time.Time) bool {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return IsExpired(storedAt, p.Now(), ttl)
}
