package dispatch

import "encoding/json"

// Inbound event names.
const (
	EventSoloJoin       = "solo:join"
	EventSoloActivation = "solo:activation"
	EventCrowdJoin      = "crowd:join"
	EventCanvasUpdate   = "canvas:update"
	EventChordTrigger   = "chord:trigger"
)

// Outbound event names.
const (
	EventSystemWelcome = "system:welcome"
	EventSoloJoined    = "solo:joined"
	EventCrowdJoined   = "crowd:joined"
	EventCrowdError    = "crowd:error"
	EventCrowdSnapshot = "crowd:snapshot"
	EventChordPlayed   = "chord:played"
)

// envelope is the wire format of every inbound message.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// soloActivationPayload carries one frame of the solo activation stream.
type soloActivationPayload struct {
	Hidden1 []float64 `json:"hidden1"`
	Hidden2 []float64 `json:"hidden2"`
	Output  []float64 `json:"output"`
}

// crowdJoinPayload carries a show join request. Label is a legacy alias
// for Username kept for older clients.
type crowdJoinPayload struct {
	Role       string `json:"role"`
	Username   string `json:"username"`
	Label      string `json:"label"`
	Instrument string `json:"instrument"`
}

// canvasUpdatePayload carries a drawing update. All fields are optional;
// absent fields leave the participant untouched.
type canvasUpdatePayload struct {
	Canvas     *string   `json:"canvas"`
	Output     []float64 `json:"output"`
	Instrument *string   `json:"instrument"`
}

// chordTriggerPayload optionally refreshes output and instrument at the
// moment of the trigger.
type chordTriggerPayload struct {
	Output     []float64 `json:"output"`
	Instrument *string   `json:"instrument"`
}

type welcomePayload struct {
	SocketID string `json:"socketId"`
}

type crowdJoinedPayload struct {
	Role string `json:"role"`
}

type crowdErrorPayload struct {
	Message string `json:"message"`
}

type chordPlayedPayload struct {
	SocketID   string `json:"socketId"`
	Instrument string `json:"instrument"`
}
