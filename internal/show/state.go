package show

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// State is the single shared aggregate of the show: the participant store
// plus the conductor slot behind one mutex. Connection handlers and the
// inactivity reaper both mutate it concurrently; every method takes the
// lock for its full read-then-write.
type State struct {
	mu        sync.Mutex
	store     *Store
	conductor ConductorSlot
}

// NewState creates an empty show.
func NewState(clock clockwork.Clock) *State {
	return &State{store: NewStore(clock)}
}

// JoinParticipant adds or re-adds a participant with fresh defaults.
func (st *State) JoinParticipant(id uuid.UUID, instrument, username string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.store.Join(id, instrument, username)
}

// ClaimConductor attempts to take the conductor slot for id. Returns false
// if a different connection already holds it.
func (st *State) ClaimConductor(id uuid.UUID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.conductor.Claim(id)
}

// HasConductor reports whether the conductor slot is occupied.
func (st *State) HasConductor() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.conductor.IsOccupied()
}

// UpdateParticipant applies a partial update. Returns false if id is not a
// current participant (already left, or joined as conductor).
func (st *State) UpdateParticipant(id uuid.UUID, u Update) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.store.Update(id, u)
}

// Participant returns a copy of the participant record.
func (st *State) Participant(id uuid.UUID) (Participant, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.store.Get(id)
}

// ChordFor derives the trigger payload from the participant's current
// output and instrument. Returns false when the participant is unknown or
// has not submitted any output yet.
func (st *State) ChordFor(id uuid.UUID) (Chord, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.store.Get(id)
	if !ok || p.Output == nil {
		return Chord{}, false
	}
	return Chord{Output: p.Output, Instrument: p.Instrument}, true
}

// Leave removes id from the show entirely: its participant entry if
// present, and the conductor slot if it holds it. Reports whether show
// state changed.
func (st *State) Leave(id uuid.UUID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := st.store.Remove(id)
	released := st.conductor.Release(id)
	return removed || released
}

// EvictOlderThan removes participants idle since before cutoff.
func (st *State) EvictOlderThan(cutoff time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.store.EvictOlderThan(cutoff)
}

// ParticipantCount returns the number of current participants.
func (st *State) ParticipantCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.store.Count()
}

// Snapshot recomputes the public view of the show.
func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshot(st.store, &st.conductor)
}
