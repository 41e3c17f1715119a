// Package dispatch turns inbound client events into show-state mutations,
// snapshot broadcasts, and outbound sound-control sends. Malformed or
// unauthorized events are dropped silently; the only private error reply
// is the conductor-slot-taken case, since that one is user-actionable.
package dispatch

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/digitorchestra/server/internal/broadcast"
	"github.com/digitorchestra/server/internal/metrics"
	"github.com/digitorchestra/server/internal/ratelimit"
	"github.com/digitorchestra/server/internal/show"
)

// RoleConductor is the only join role with special handling; every other
// role string joins as a participant.
const RoleConductor = "conductor"

// Emitter is the outbound side of the transport: private sends and room
// broadcasts. Satisfied by broadcast.Hub.
type Emitter interface {
	SendTo(id uuid.UUID, event string, data any)
	Broadcast(room string, event string, data any)
	JoinRoom(id uuid.UUID, room string)
}

// SoundSender is the fire-and-forget sound-control capability. Satisfied
// by osc.Sender. Implementations log transport failures and never
// propagate them.
type SoundSender interface {
	SendSoloActivations(hidden1, hidden2, output []float64)
	SendCrowdChord(instrument, username string, output []float64)
}

// Dispatcher routes inbound events for all connections. Safe for
// concurrent use; show-state serialization lives inside show.State.
type Dispatcher struct {
	state   *show.State
	limiter *ratelimit.Limiter
	sound   SoundSender
	emitter Emitter
}

// New creates a dispatcher.
func New(state *show.State, limiter *ratelimit.Limiter, sound SoundSender, emitter Emitter) *Dispatcher {
	return &Dispatcher{
		state:   state,
		limiter: limiter,
		sound:   sound,
		emitter: emitter,
	}
}

// HandleConnect greets a new connection with its own ID.
func (d *Dispatcher) HandleConnect(id uuid.UUID) {
	slog.Info("Socket connected", "connection_id", id.String())
	d.emitter.SendTo(id, EventSystemWelcome, welcomePayload{SocketID: id.String()})
}

// HandleMessage decodes one inbound envelope and dispatches it. Unknown
// events and undecodable payloads are dropped.
func (d *Dispatcher) HandleMessage(id uuid.UUID, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		metrics.EventsDroppedTotal.WithLabelValues("unknown", "malformed").Inc()
		slog.Debug("Dropping undecodable message", "connection_id", id.String())
		return
	}

	metrics.EventsReceivedTotal.WithLabelValues(env.Event).Inc()

	// Clients may omit the data field entirely; treat it as empty.
	if env.Data == nil {
		env.Data = json.RawMessage("{}")
	}

	switch env.Event {
	case EventSoloJoin:
		d.handleSoloJoin(id)
	case EventSoloActivation:
		d.handleSoloActivation(id, env.Data)
	case EventCrowdJoin:
		d.handleCrowdJoin(id, env.Data)
	case EventCanvasUpdate:
		d.handleCanvasUpdate(id, env.Data)
	case EventChordTrigger:
		d.handleChordTrigger(id, env.Data)
	default:
		metrics.EventsDroppedTotal.WithLabelValues(env.Event, "unknown_event").Inc()
		slog.Debug("Dropping unknown event", "event", env.Event, "connection_id", id.String())
	}
}

// HandleDisconnect removes every trace of the connection: rate-limiter
// bookkeeping, participant entry, conductor slot. Broadcasts a snapshot
// only if show state actually changed.
func (d *Dispatcher) HandleDisconnect(id uuid.UUID) {
	slog.Info("Socket disconnected", "connection_id", id.String())
	d.limiter.Forget(id)
	if d.state.Leave(id) {
		d.broadcastSnapshot()
	}
}

func (d *Dispatcher) handleSoloJoin(id uuid.UUID) {
	d.emitter.JoinRoom(id, broadcast.RoomSolo)
	d.emitter.SendTo(id, EventSoloJoined, struct{}{})
	slog.Info("Solo session joined", "connection_id", id.String())
}

// handleSoloActivation forwards the activation frame straight to the
// sound engine. This path is a continuous high-rate stream and is exempt
// from the participant rate limiter.
func (d *Dispatcher) handleSoloActivation(id uuid.UUID, data json.RawMessage) {
	var payload soloActivationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(EventSoloActivation, "malformed").Inc()
		return
	}
	if payload.Hidden1 == nil || payload.Hidden2 == nil || payload.Output == nil {
		metrics.EventsDroppedTotal.WithLabelValues(EventSoloActivation, "malformed").Inc()
		slog.Debug("Solo activation missing fields", "connection_id", id.String())
		return
	}
	d.sound.SendSoloActivations(payload.Hidden1, payload.Hidden2, payload.Output)
}

func (d *Dispatcher) handleCrowdJoin(id uuid.UUID, data json.RawMessage) {
	var payload crowdJoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(EventCrowdJoin, "malformed").Inc()
		return
	}

	role := strings.ToLower(payload.Role)
	username := payload.Username
	if username == "" {
		username = payload.Label
	}

	// Conductors watch the show too, so everyone enters the crowd room
	// before the role is decided.
	d.emitter.JoinRoom(id, broadcast.RoomCrowd)

	if role == RoleConductor {
		if !d.state.ClaimConductor(id) {
			metrics.ConductorRejectionsTotal.Inc()
			slog.Info("Conductor slot taken, rejecting join", "connection_id", id.String())
			d.emitter.SendTo(id, EventCrowdError, crowdErrorPayload{Message: "A conductor is already connected."})
			return
		}
	} else {
		role = "participant"
		d.state.JoinParticipant(id, payload.Instrument, username)
	}

	slog.Info("Crowd join", "connection_id", id.String(), "role", role, "username", username)
	d.emitter.SendTo(id, EventCrowdJoined, crowdJoinedPayload{Role: role})
	d.broadcastSnapshot()
}

func (d *Dispatcher) handleCanvasUpdate(id uuid.UUID, data json.RawMessage) {
	if !d.limiter.Admit(ratelimit.ClassCanvas, id) {
		metrics.EventsDroppedTotal.WithLabelValues(EventCanvasUpdate, "rate_limited").Inc()
		return
	}

	var payload canvasUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(EventCanvasUpdate, "malformed").Inc()
		return
	}

	ok := d.state.UpdateParticipant(id, show.Update{
		Canvas:     payload.Canvas,
		Output:     payload.Output,
		Instrument: payload.Instrument,
	})
	if !ok {
		// Not a participant: joined as conductor, never joined, or already
		// evicted. Benign race, not an error.
		metrics.EventsDroppedTotal.WithLabelValues(EventCanvasUpdate, "unknown_participant").Inc()
		return
	}

	d.broadcastSnapshot()
}

func (d *Dispatcher) handleChordTrigger(id uuid.UUID, data json.RawMessage) {
	if !d.limiter.Admit(ratelimit.ClassTrigger, id) {
		metrics.EventsDroppedTotal.WithLabelValues(EventChordTrigger, "rate_limited").Inc()
		return
	}

	var payload chordTriggerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(EventChordTrigger, "malformed").Inc()
		return
	}

	// Apply any fresh values first so the chord reflects them even when no
	// canvas:update delivered them beforehand.
	if payload.Output != nil || payload.Instrument != nil {
		d.state.UpdateParticipant(id, show.Update{
			Output:     payload.Output,
			Instrument: payload.Instrument,
		})
	}

	chord, ok := d.state.ChordFor(id)
	if !ok {
		metrics.EventsDroppedTotal.WithLabelValues(EventChordTrigger, "no_output").Inc()
		return
	}
	participant, ok := d.state.Participant(id)
	if !ok {
		metrics.EventsDroppedTotal.WithLabelValues(EventChordTrigger, "unknown_participant").Inc()
		return
	}

	d.sound.SendCrowdChord(chord.Instrument, participant.Username, chord.Output)
	d.emitter.Broadcast(broadcast.RoomCrowd, EventChordPlayed, chordPlayedPayload{
		SocketID:   id.String(),
		Instrument: chord.Instrument,
	})
}

func (d *Dispatcher) broadcastSnapshot() {
	snap := d.state.Snapshot()
	metrics.ShowParticipants.Set(float64(snap.ParticipantCount))
	if snap.HasConductor {
		metrics.ShowHasConductor.Set(1)
	} else {
		metrics.ShowHasConductor.Set(0)
	}
	d.emitter.Broadcast(broadcast.RoomCrowd, EventCrowdSnapshot, snap)
}
