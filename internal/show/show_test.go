package show

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestStore_JoinDefaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	id := uuid.New()

	store.Join(id, "", "   ")

	p, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, DefaultInstrument, p.Instrument)
	assert.Equal(t, DefaultUsername, p.Username)
	assert.Empty(t, p.Canvas)
	assert.Nil(t, p.Output)
	assert.Equal(t, clock.Now(), p.LastSeen)
}

func TestStore_RejoinResetsCanvasAndOutput(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	id := uuid.New()

	store.Join(id, "synth", "Ann")
	require.True(t, store.Update(id, Update{
		Canvas: strPtr("data:image/png;base64,xyz"),
		Output: []float64{1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}))

	store.Join(id, "synth", "Ann")

	p, ok := store.Get(id)
	require.True(t, ok)
	assert.Empty(t, p.Canvas)
	assert.Nil(t, p.Output)
}

func TestStore_UpdateAppliesOnlyProvidedFields(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	id := uuid.New()
	store.Join(id, "synth", "Ann")

	require.True(t, store.Update(id, Update{Canvas: strPtr("canvas-1")}))

	p, _ := store.Get(id)
	assert.Equal(t, "canvas-1", p.Canvas)
	assert.Equal(t, "synth", p.Instrument)
	assert.Nil(t, p.Output)

	output := []float64{0, 0, 0, 0.9, 0, 0, 0, 0, 0, 0}
	require.True(t, store.Update(id, Update{Output: output, Instrument: strPtr("bass")}))

	p, _ = store.Get(id)
	assert.Equal(t, "canvas-1", p.Canvas)
	assert.Equal(t, output, p.Output)
	assert.Equal(t, "bass", p.Instrument)
}

func TestStore_UpdateUnknownIDFailsSoft(t *testing.T) {
	store := NewStore(clockwork.NewFakeClock())
	assert.False(t, store.Update(uuid.New(), Update{Canvas: strPtr("c")}))
}

func TestStore_UpdateRefreshesLastSeen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	id := uuid.New()
	store.Join(id, "pad", "Ann")

	clock.Advance(30 * time.Second)
	require.True(t, store.Update(id, Update{Canvas: strPtr("c")}))

	p, _ := store.Get(id)
	assert.Equal(t, clock.Now(), p.LastSeen)
}

func TestStore_NeverMoreEntriesThanLiveJoins(t *testing.T) {
	store := NewStore(clockwork.NewFakeClock())
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		store.Join(id, "pad", "u")
	}
	assert.Equal(t, 3, store.Count())

	assert.True(t, store.Remove(ids[0]))
	assert.False(t, store.Remove(ids[0]))
	assert.Equal(t, 2, store.Count())

	// Re-join keeps one entry per distinct id
	store.Join(ids[1], "pad", "u")
	assert.Equal(t, 2, store.Count())
}

func TestStore_EvictOlderThan(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	old := uuid.New()
	store.Join(old, "pad", "old")

	clock.Advance(2 * time.Minute)
	fresh := uuid.New()
	store.Join(fresh, "pad", "fresh")

	cutoff := clock.Now().Add(-time.Minute)
	assert.Equal(t, 1, store.EvictOlderThan(cutoff))

	_, ok := store.Get(old)
	assert.False(t, ok)
	_, ok = store.Get(fresh)
	assert.True(t, ok)
}

func TestConductorSlot_SecondClaimRejected(t *testing.T) {
	var slot ConductorSlot
	first := uuid.New()
	second := uuid.New()

	assert.True(t, slot.Claim(first))
	assert.False(t, slot.Claim(second))
	assert.True(t, slot.IsOccupied())

	// Occupant's own repeated claim is idempotent
	assert.True(t, slot.Claim(first))
}

func TestConductorSlot_ReleaseOnlyByOccupant(t *testing.T) {
	var slot ConductorSlot
	holder := uuid.New()

	require.True(t, slot.Claim(holder))
	assert.False(t, slot.Release(uuid.New()))
	assert.True(t, slot.IsOccupied())

	assert.True(t, slot.Release(holder))
	assert.False(t, slot.IsOccupied())
	assert.False(t, slot.Release(holder))
}

func TestState_SnapshotIsIdempotentAndAggregates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	state := NewState(clock)

	a := uuid.New()
	b := uuid.New()
	state.JoinParticipant(a, "synth", "Ann")
	state.JoinParticipant(b, "synth", "Ben")
	state.JoinParticipant(uuid.New(), "pad", "Cam")
	require.True(t, state.ClaimConductor(uuid.New()))

	snap := state.Snapshot()
	assert.Equal(t, 3, snap.ParticipantCount)
	assert.Len(t, snap.Participants, 3)
	assert.True(t, snap.HasConductor)
	assert.Equal(t, map[string]int{"synth": 2, "pad": 1}, snap.InstrumentMix)

	assert.Equal(t, snap, state.Snapshot())
}

func TestState_ChordForRequiresOutput(t *testing.T) {
	state := NewState(clockwork.NewFakeClock())
	id := uuid.New()

	_, ok := state.ChordFor(id)
	assert.False(t, ok)

	state.JoinParticipant(id, "synth", "Ann")
	_, ok = state.ChordFor(id)
	assert.False(t, ok)

	output := []float64{0, 0, 0, 0.9, 0, 0, 0, 0, 0, 0}
	require.True(t, state.UpdateParticipant(id, Update{Output: output}))

	chord, ok := state.ChordFor(id)
	require.True(t, ok)
	assert.Equal(t, "synth", chord.Instrument)
	assert.Equal(t, output, chord.Output)
}

func TestState_LeaveReleasesConductorAndParticipant(t *testing.T) {
	state := NewState(clockwork.NewFakeClock())
	conductor := uuid.New()
	participant := uuid.New()

	require.True(t, state.ClaimConductor(conductor))
	state.JoinParticipant(participant, "pad", "Ann")

	assert.True(t, state.Leave(conductor))
	assert.False(t, state.HasConductor())

	assert.True(t, state.Leave(participant))
	assert.Equal(t, 0, state.ParticipantCount())

	// Leaving twice changes nothing
	assert.False(t, state.Leave(participant))
}
