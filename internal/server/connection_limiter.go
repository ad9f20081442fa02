package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason describes why a connection attempt was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// globalLimiter caps total concurrent connections per instance using
// lock-free atomic counting.
type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

// ipLimiter caps concurrent connections per client IP.
type ipLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	maxPer int
}

func (l *ipLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[ip] >= l.maxPer {
		return false
	}
	l.counts[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.counts[ip]; count > 0 {
		l.counts[ip] = count - 1
		if l.counts[ip] == 0 {
			delete(l.counts, ip)
		}
	}
}

// attemptLimiter rate-limits new connection attempts per IP with a token
// bucket (golang.org/x/time/rate). Inactive buckets are swept periodically.
type attemptLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*attemptEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type attemptEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const attemptCleanupInterval = 5 * time.Minute

func (l *attemptLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-2 * attemptCleanupInterval)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.cleanupAt = now.Add(attemptCleanupInterval)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &attemptEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// ConnectionLimits combines the global, per-IP and attempt-rate limiters
// behind a single Acquire/Release pair.
type ConnectionLimits struct {
	global  *globalLimiter
	perIP   *ipLimiter
	attempt *attemptLimiter
}

// NewConnectionLimits creates a combined limiter.
func NewConnectionLimits(globalMax int64, perIPMax int, attemptsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		global: &globalLimiter{max: globalMax},
		perIP:  &ipLimiter{counts: make(map[string]int), maxPer: perIPMax},
		attempt: &attemptLimiter{
			limiters:  make(map[string]*attemptEntry),
			rate:      rate.Limit(attemptsPerSecond),
			burst:     burst,
			cleanupAt: time.Now().Add(attemptCleanupInterval),
		},
	}
}

// Acquire attempts to claim a slot across all three limits for the given IP.
// Returns false and the first limit hit on rejection; partial claims are
// rolled back.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.attempt.allow(ip) {
		return false, LimitReasonRate
	}
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release returns the slots claimed by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}

// Current returns the number of connections currently held.
func (l *ConnectionLimits) Current() int64 {
	return l.global.current.Load()
}
