// Package broadcast owns all outbound WebSocket traffic. A single hub
// goroutine processes commands from a channel and is the only writer of
// the connection and room maps; each connection gets its own writer
// goroutine with a buffered send channel so one slow client never blocks
// a broadcast.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/digitorchestra/server/internal/metrics"
)

const (
	commandBufferSize = 256
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
)

// Room names used by the dispatcher.
const (
	RoomCrowd = "crowd"
	RoomSolo  = "solo"
)

// Envelope is the wire format of every outbound message.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	id    uuid.UUID
	conn  *websocket.Conn
	errCh chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	id uuid.UUID
}

func (cmdUnregister) hubCmd() {}

type cmdJoinRoom struct {
	id   uuid.UUID
	room string
}

func (cmdJoinRoom) hubCmd() {}

type cmdSendTo struct {
	id   uuid.UUID
	data []byte
}

func (cmdSendTo) hubCmd() {}

type cmdBroadcast struct {
	room string
	data []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Hub ---

// Hub routes outbound events to connections, individually or per room.
type Hub struct {
	cmdCh   chan hubCmd
	clock   clockwork.Clock
	clients map[uuid.UUID]*clientWriter
	rooms   map[string]map[uuid.UUID]struct{}
	done    chan struct{}
}

// NewHub creates the hub and starts its goroutine.
func NewHub(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, commandBufferSize),
		clock:   clock,
		clients: make(map[uuid.UUID]*clientWriter),
		rooms:   make(map[string]map[uuid.UUID]struct{}),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients()
		}
	}()
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.id)
		case cmdJoinRoom:
			h.handleJoinRoom(c)
		case cmdSendTo:
			h.handleSendTo(c)
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.closeAllClients()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if _, exists := h.clients[c.id]; exists {
		c.errCh <- fmt.Errorf("connection %s already registered", c.id)
		return
	}

	h.clients[c.id] = newClientWriter(c.conn, h.clock)
	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client registered", "connection_id", c.id.String(), "total_clients", len(h.clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(id uuid.UUID) {
	cw, exists := h.clients[id]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, id)
	for room, members := range h.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}

	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client unregistered", "connection_id", id.String(), "remaining_clients", len(h.clients))
}

func (h *Hub) handleJoinRoom(c cmdJoinRoom) {
	if _, exists := h.clients[c.id]; !exists {
		return
	}
	members, exists := h.rooms[c.room]
	if !exists {
		members = make(map[uuid.UUID]struct{})
		h.rooms[c.room] = members
	}
	members[c.id] = struct{}{}
}

func (h *Hub) handleSendTo(c cmdSendTo) {
	cw, exists := h.clients[c.id]
	if !exists {
		return
	}
	if !cw.trySend(c.data) {
		slog.Warn("Disconnecting slow client", "connection_id", c.id.String())
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(c.id)
	}
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	var slow []uuid.UUID
	for id := range h.rooms[c.room] {
		cw, exists := h.clients[id]
		if !exists {
			continue
		}
		if !cw.trySend(c.data) {
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		slog.Warn("Disconnecting slow client", "connection_id", id.String(), "room", c.room)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(id)
	}
}

func (h *Hub) closeAllClients() {
	for id, cw := range h.clients {
		cw.stop()
		delete(h.clients, id)
	}
	for room := range h.rooms {
		delete(h.rooms, room)
	}
	metrics.HubConnectedClients.Set(0)
}

// --- Public API ---

// Register adds a connection under its ID. The hub takes over all writes
// to conn from this point on.
func (h *Hub) Register(id uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{id: id, conn: conn, errCh: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection and its room memberships.
func (h *Hub) Unregister(id uuid.UUID) {
	h.cmdCh <- cmdUnregister{id: id}
}

// JoinRoom adds a registered connection to a named room.
func (h *Hub) JoinRoom(id uuid.UUID, room string) {
	h.cmdCh <- cmdJoinRoom{id: id, room: room}
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(id uuid.UUID, event string, data any) {
	payload, ok := h.marshal(event, data)
	if !ok {
		return
	}
	h.cmdCh <- cmdSendTo{id: id, data: payload}
}

// Broadcast delivers an event to every member of a room.
func (h *Hub) Broadcast(room string, event string, data any) {
	payload, ok := h.marshal(event, data)
	if !ok {
		return
	}
	h.cmdCh <- cmdBroadcast{room: room, data: payload}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every client connection and shuts the hub down. Blocks
// until the hub goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) marshal(event string, data any) ([]byte, bool) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		slog.Error("Failed to marshal outbound event", "event", event, "error", err)
		return nil, false
	}
	return payload, true
}
