// Package show holds the shared state of a running performance: every
// connected participant plus the single conductor slot. All mutation goes
// through the mutex-guarded State aggregate; nothing in this package
// performs I/O.
package show

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultInstrument is the voice used when a client supplies none.
	DefaultInstrument = "pad"
	// DefaultUsername is the display name used when a client supplies none.
	DefaultUsername = "anonymous"
)

// Participant is the state of a single connected client drawing digits.
type Participant struct {
	ConnectionID uuid.UUID
	Instrument   string
	Username     string
	Canvas       string    // base64 PNG data URL, empty until first update
	Output       []float64 // latest classifier output layer (10 values), nil until first update
	LastSeen     time.Time
}

// Chord is an ephemeral trigger payload derived from a participant's
// current output. It is never stored.
type Chord struct {
	Output     []float64
	Instrument string
}

// Update carries the optional fields of a participant mutation. Nil fields
// are left untouched; Output replaces the whole vector when present.
type Update struct {
	Canvas     *string
	Output     []float64
	Instrument *string
}

// ParticipantView is the public projection of a participant used in
// snapshots. The raw output vector is intentionally omitted.
type ParticipantView struct {
	SocketID   string `json:"socketId"`
	Instrument string `json:"instrument"`
	Username   string `json:"username"`
	Canvas     string `json:"canvas"`
	LastSeen   string `json:"lastSeen"`
}

// Snapshot is the serialized view of the whole show broadcast to viewers.
type Snapshot struct {
	Participants     []ParticipantView `json:"participants"`
	ParticipantCount int               `json:"participantCount"`
	HasConductor     bool              `json:"hasConductor"`
	InstrumentMix    map[string]int    `json:"instrumentMix"`
}

func normalizeUsername(username string) string {
	if strings.TrimSpace(username) == "" {
		return DefaultUsername
	}
	return username
}

func normalizeInstrument(instrument string) string {
	if strings.TrimSpace(instrument) == "" {
		return DefaultInstrument
	}
	return instrument
}

// Store holds one record per connected participant, keyed by connection ID.
// It is not safe for concurrent use; State provides the serialization
// boundary around it.
type Store struct {
	clock        clockwork.Clock
	participants map[uuid.UUID]*Participant
}

// NewStore creates an empty participant store.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:        clock,
		participants: make(map[uuid.UUID]*Participant),
	}
}

// Join inserts or overwrites the record for id with fresh defaults.
// Re-joining resets canvas and output.
func (s *Store) Join(id uuid.UUID, instrument, username string) {
	s.participants[id] = &Participant{
		ConnectionID: id,
		Instrument:   normalizeInstrument(instrument),
		Username:     normalizeUsername(username),
		LastSeen:     s.clock.Now(),
	}
}

// Update applies the non-nil fields of u to the participant and refreshes
// its last-seen timestamp. Returns false if id is unknown.
func (s *Store) Update(id uuid.UUID, u Update) bool {
	p, ok := s.participants[id]
	if !ok {
		return false
	}
	if u.Canvas != nil {
		p.Canvas = *u.Canvas
	}
	if u.Output != nil {
		p.Output = u.Output
	}
	if u.Instrument != nil {
		p.Instrument = normalizeInstrument(*u.Instrument)
	}
	p.LastSeen = s.clock.Now()
	return true
}

// Remove deletes the participant and reports whether an entry existed.
func (s *Store) Remove(id uuid.UUID) bool {
	if _, ok := s.participants[id]; !ok {
		return false
	}
	delete(s.participants, id)
	return true
}

// Get returns a copy of the participant record.
func (s *Store) Get(id uuid.UUID) (Participant, bool) {
	p, ok := s.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Count returns the number of stored participants.
func (s *Store) Count() int {
	return len(s.participants)
}

// EvictOlderThan removes every participant whose last-seen timestamp is
// before cutoff and returns how many were removed.
func (s *Store) EvictOlderThan(cutoff time.Time) int {
	removed := 0
	for id, p := range s.participants {
		if p.LastSeen.Before(cutoff) {
			delete(s.participants, id)
			removed++
		}
	}
	return removed
}

// ConductorSlot is the single-writer admission gate for the conductor role.
type ConductorSlot struct {
	occupant uuid.UUID // uuid.Nil when vacant
}

// Claim grants the slot if it is vacant or already held by id.
func (c *ConductorSlot) Claim(id uuid.UUID) bool {
	if c.occupant != uuid.Nil && c.occupant != id {
		return false
	}
	c.occupant = id
	return true
}

// Release clears the slot only if id currently holds it.
func (c *ConductorSlot) Release(id uuid.UUID) bool {
	if c.occupant != id || id == uuid.Nil {
		return false
	}
	c.occupant = uuid.Nil
	return true
}

// IsOccupied reports whether a conductor is present.
func (c *ConductorSlot) IsOccupied() bool {
	return c.occupant != uuid.Nil
}

// snapshot builds the public view. O(participants), recomputed on demand.
func snapshot(s *Store, c *ConductorSlot) Snapshot {
	views := make([]ParticipantView, 0, len(s.participants))
	mix := make(map[string]int)
	for _, p := range s.participants {
		views = append(views, ParticipantView{
			SocketID:   p.ConnectionID.String(),
			Instrument: p.Instrument,
			Username:   p.Username,
			Canvas:     p.Canvas,
			LastSeen:   p.LastSeen.UTC().Format(time.RFC3339),
		})
		mix[p.Instrument]++
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SocketID < views[j].SocketID })
	return Snapshot{
		Participants:     views,
		ParticipantCount: len(views),
		HasConductor:     c.IsOccupied(),
		InstrumentMix:    mix,
	}
}
