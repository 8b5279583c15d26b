package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRatePerSecond = 1.0
	defaultRateBurst     = 5
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiters keeps one token bucket per client key.
type ClientRateLimiters struct {
	mutex         sync.Mutex
	limiters      map[string]*clientLimiter
	ratePerSecond rate.Limit
	burst         int
	now           func() time.Time
}

// NewClientRateLimiters builds a pool; non-positive settings fall back to 1 req/s with a
// burst of 5. A nil pool allows everything.
func NewClientRateLimiters(ratePerSecond float64, burst int) *ClientRateLimiters {
	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}
	return &ClientRateLimiters{
		limiters:      make(map[string]*clientLimiter),
		ratePerSecond: rate.Limit(ratePerSecond),
		burst:         burst,
		now:           time.Now,
	}
}

// Allow spends one token from the client's bucket, creating the bucket on first use.
func (pool *ClientRateLimiters) Allow(clientKey string) bool {
	if pool == nil {
		return true
	}
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	now := pool.now()
	entry, found := pool.limiters[clientKey]
	if !found {
		entry = &clientLimiter{limiter: rate.NewLimiter(pool.ratePerSecond, pool.burst)}
		pool.limiters[clientKey] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Prune forgets limiters unused since cutoff and reports how many were dropped.
func (pool *ClientRateLimiters) Prune(cutoff time.Time) int {
	if pool == nil {
		return 0
	}
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	pruned := 0
	for clientKey, entry := range pool.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(pool.limiters, clientKey)
			pruned++
		}
	}
	return pruned
}

func (pool *ClientRateLimiters) size() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	return len(pool.limiters)
}
