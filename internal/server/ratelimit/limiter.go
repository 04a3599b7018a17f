// Package ratelimit throttles attempts per identifier.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Keyed keeps one token bucket per key. Buckets idle for longer than idleTTL
// are dropped on the next Allow call that sweeps.
type Keyed struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewPerMinute allows n attempts per minute per key with a burst of n.
func NewPerMinute(n int) *Keyed {
	if n <= 0 {
		n = 1
	}
	return &Keyed{
		limit:   rate.Every(time.Minute / time.Duration(n)),
		burst:   n,
		idleTTL: 10 * time.Minute,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) > k.idleTTL {
		for name, b := range k.buckets {
			if now.Sub(b.seen) > k.idleTTL {
				delete(k.buckets, name)
			}
		}
		k.lastSweep = now
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
