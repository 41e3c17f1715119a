package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleEviction = 10 * time.Minute

// limitReason describes why a connection was rejected at admission.
type limitReason string

const (
	limitReasonGlobal limitReason = "global_limit"
	limitReasonPerIP  limitReason = "per_ip_limit"
	limitReasonRate   limitReason = "rate_limit"
)

// connectionLimits gates new WebSocket connections: a global concurrent
// cap, a per-IP concurrent cap, and a per-IP token bucket on connection
// attempts.
type connectionLimits struct {
	current atomic.Int64
	max     int64

	mu        sync.Mutex
	perIP     map[string]int
	maxPerIP  int
	buckets   map[string]*bucketEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newConnectionLimits(globalMax int64, maxPerIP int, connectionsPerSecond float64, burst int) *connectionLimits {
	return &connectionLimits{
		max:       globalMax,
		perIP:     make(map[string]int),
		maxPerIP:  maxPerIP,
		buckets:   make(map[string]*bucketEntry),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(limiterIdleEviction),
	}
}

// Acquire attempts to admit a connection from ip. Returns false with the
// first limit that rejected it.
func (l *connectionLimits) Acquire(ip string) (bool, limitReason) {
	if !l.allowRate(ip) {
		return false, limitReasonRate
	}

	for {
		current := l.current.Load()
		if current >= l.max {
			return false, limitReasonGlobal
		}
		if l.current.CompareAndSwap(current, current+1) {
			break
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= l.maxPerIP {
		l.current.Add(-1)
		return false, limitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

// Release frees the slots held by a connection from ip.
func (l *connectionLimits) Release(ip string) {
	l.current.Add(-1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if count := l.perIP[ip]; count > 0 {
		l.perIP[ip] = count - 1
		if l.perIP[ip] == 0 {
			delete(l.perIP, ip)
		}
	}
}

// Current returns the number of admitted connections.
func (l *connectionLimits) Current() int64 {
	return l.current.Load()
}

func (l *connectionLimits) allowRate(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-limiterIdleEviction)
		for addr, entry := range l.buckets {
			if entry.lastSeen.Before(cutoff) {
				delete(l.buckets, addr)
			}
		}
		l.cleanupAt = now.Add(limiterIdleEviction)
	}

	entry, exists := l.buckets[ip]
	if !exists {
		entry = &bucketEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}
