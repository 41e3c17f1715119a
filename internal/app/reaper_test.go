package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorchestra/server/internal/dispatch"
	"github.com/digitorchestra/server/internal/show"
)

const (
	testInterval = 10 * time.Second
	testTimeout  = 120 * time.Second
)

type recordingBroadcaster struct {
	mu         sync.Mutex
	broadcasts []string
}

func (b *recordingBroadcaster) Broadcast(_ string, event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, event)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.broadcasts)
}

func TestReaper_EvictsStaleParticipantAndBroadcasts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	state := show.NewState(clock)
	emitter := &recordingBroadcaster{}
	reaper := NewReaper(state, emitter, clock, testInterval, testTimeout)

	stale := uuid.New()
	state.JoinParticipant(stale, "pad", "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)
	defer reaper.Stop()

	// Wait for the loop to install its ticker before advancing
	clock.BlockUntil(1)

	clock.Advance(testTimeout + testInterval)

	assert.Eventually(t, func() bool {
		return state.ParticipantCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return emitter.count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	assert.Equal(t, dispatch.EventCrowdSnapshot, emitter.broadcasts[0])
}

func TestReaper_RetainsActiveParticipant(t *testing.T) {
	clock := clockwork.NewFakeClock()
	state := show.NewState(clock)
	emitter := &recordingBroadcaster{}
	reaper := NewReaper(state, emitter, clock, testInterval, testTimeout)

	stale := uuid.New()
	state.JoinParticipant(stale, "pad", "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)
	defer reaper.Stop()

	clock.BlockUntil(1)
	clock.Advance(testTimeout - time.Second)

	fresh := uuid.New()
	state.JoinParticipant(fresh, "pad", "new")

	clock.Advance(testInterval * 2)

	assert.Eventually(t, func() bool {
		return state.ParticipantCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := state.Participant(fresh)
	assert.True(t, ok)
}

func TestReaper_NoBroadcastWhenNothingEvicted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	state := show.NewState(clock)
	emitter := &recordingBroadcaster{}
	reaper := NewReaper(state, emitter, clock, testInterval, testTimeout)

	active := uuid.New()
	state.JoinParticipant(active, "pad", "live")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)
	defer reaper.Stop()

	clock.BlockUntil(1)
	clock.Advance(testInterval * 3)

	require.Never(t, func() bool {
		return emitter.count() > 0
	}, 500*time.Millisecond, 50*time.Millisecond)
}

func TestReaper_SurvivesPanickingBroadcast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	state := show.NewState(clock)
	emitter := &panickyBroadcaster{}
	reaper := NewReaper(state, emitter, clock, testInterval, testTimeout)

	state.JoinParticipant(uuid.New(), "pad", "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)
	defer reaper.Stop()

	clock.BlockUntil(1)

	// First tick evicts and panics inside Broadcast; loop must keep going
	clock.Advance(testTimeout + testInterval)
	assert.Eventually(t, func() bool {
		return state.ParticipantCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// A later eviction cycle still works
	state.JoinParticipant(uuid.New(), "pad", "b")
	clock.Advance(testTimeout + testInterval)
	assert.Eventually(t, func() bool {
		return state.ParticipantCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

type panickyBroadcaster struct{}

func (b *panickyBroadcaster) Broadcast(string, string, any) {
	panic("broadcast failed")
}
