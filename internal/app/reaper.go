// Package app hosts the background jobs that run alongside the event
// path. Currently that is the inactivity reaper.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/digitorchestra/server/internal/broadcast"
	"github.com/digitorchestra/server/internal/dispatch"
	"github.com/digitorchestra/server/internal/metrics"
	"github.com/digitorchestra/server/internal/show"
)

// snapshotBroadcaster is the slice of the hub the reaper needs.
type snapshotBroadcaster interface {
	Broadcast(room string, event string, data any)
}

// Reaper periodically evicts participants that have been idle longer than
// the inactivity timeout and broadcasts a fresh snapshot whenever it
// removed someone. Each tick is isolated: a panic inside one tick never
// stops the loop.
type Reaper struct {
	state    *show.State
	emitter  snapshotBroadcaster
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
}

// NewReaper creates a reaper scanning every interval for participants
// idle longer than timeout.
func NewReaper(state *show.State, emitter snapshotBroadcaster, clock clockwork.Clock, interval, timeout time.Duration) *Reaper {
	return &Reaper{
		state:    state,
		emitter:  emitter,
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Run starts the eviction loop. It blocks until Stop is called or ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.tick()
		case <-r.stopCh:
			slog.Info("Inactivity reaper stopped")
			return
		case <-ctx.Done():
			slog.Info("Inactivity reaper context cancelled")
			return
		}
	}
}

// Stop gracefully stops the loop.
func (r *Reaper) Stop() {
	close(r.stopCh)
}

func (r *Reaper) tick() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Reaper tick panic recovered", "panic", rec)
		}
	}()

	cutoff := r.clock.Now().Add(-r.timeout)
	removed := r.state.EvictOlderThan(cutoff)
	if removed == 0 {
		return
	}

	metrics.ReaperEvictionsTotal.Add(float64(removed))
	slog.Info("Removed inactive participants", "count", removed)

	snap := r.state.Snapshot()
	metrics.ShowParticipants.Set(float64(snap.ParticipantCount))
	r.emitter.Broadcast(broadcast.RoomCrowd, dispatch.EventCrowdSnapshot, snap)
}
