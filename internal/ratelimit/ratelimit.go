// Package ratelimit gates high-frequency client events with a fixed
// per-connection cooldown. Rejection is the common case under rapid UI
// interaction, so the reject path is a single map lookup with no
// allocation and no state change.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Class identifies an event class with its own cooldown bookkeeping.
type Class string

const (
	// ClassCanvas covers canvas:update events.
	ClassCanvas Class = "canvas"
	// ClassTrigger covers chord:trigger events.
	ClassTrigger Class = "trigger"
)

// Limiter admits at most one event per (class, connection) within the
// class's cooldown window. Safe for concurrent use.
type Limiter struct {
	clock     clockwork.Clock
	cooldowns map[Class]time.Duration

	mu   sync.Mutex
	last map[Class]map[uuid.UUID]time.Time
}

// New creates a limiter with the given per-class cooldowns. Classes not
// present in cooldowns are always admitted.
func New(clock clockwork.Clock, cooldowns map[Class]time.Duration) *Limiter {
	last := make(map[Class]map[uuid.UUID]time.Time, len(cooldowns))
	for class := range cooldowns {
		last[class] = make(map[uuid.UUID]time.Time)
	}
	return &Limiter{
		clock:     clock,
		cooldowns: cooldowns,
		last:      last,
	}
}

// Admit returns true and records the event time iff the connection's last
// admitted event of this class is at least one cooldown in the past. On
// rejection nothing is recorded; the caller drops the event silently.
func (l *Limiter) Admit(class Class, id uuid.UUID) bool {
	cooldown, limited := l.cooldowns[class]
	if !limited {
		return true
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[class][id]; ok && now.Sub(last) < cooldown {
		return false
	}
	l.last[class][id] = now
	return true
}

// Forget drops all bookkeeping for a connection. Called on disconnect so
// the timestamp maps do not grow without bound.
func (l *Limiter) Forget(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, byID := range l.last {
		delete(byID, id)
	}
}

// Tracked returns the number of connections with bookkeeping in the given
// class. Used by tests and the readiness probe.
func (l *Limiter) Tracked(class Class) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last[class])
}
