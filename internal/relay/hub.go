package relay

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// inbound is a message read from a client, tagged with its sender.
type inbound struct {
	client *Client
	msg    *signaling.Message
}

// Hub is the central brain of the relay.
// It manages all active rooms and clients from a single goroutine.
type Hub struct {
	// Rooms maps room codes to Room instances.
	Rooms map[roomcode.Code]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast carries messages read from clients to the hub.
	Broadcast chan *inbound

	clients map[*Client]bool
	stopped chan struct{}
	log     *slog.Logger
}

// NewHub creates a new Hub instance. A nil log uses slog.Default().
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		Rooms:      make(map[roomcode.Code]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *inbound),
		clients:    make(map[*Client]bool),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

// join hands a new client to the hub. It reports false once the hub stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) submit(in *inbound) bool {
	select {
	case h.Broadcast <- in:
		return true
	case <-h.stopped:
		return false
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.stopped)
		for c := range h.clients {
			close(c.Send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client] = true
			h.log.Info("client registered", "peer", client.ID.String(), "codec", client.Codec.Name())

		case client := <-h.Unregister:
			if !h.clients[client] {
				continue
			}
			h.log.Info("client unregistered", "peer", client.ID.String())
			h.removeFromRoom(client)
			delete(h.clients, client)
			close(client.Send)

		case in := <-h.Broadcast:
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	log := h.log.With("peer", c.ID.String(), "type", msg.Type)

	switch msg.Type {
	case signaling.MessageTypeCreateRoom:
		h.createRoom(c, msg, log)

	case signaling.MessageTypeJoinRoom:
		h.joinRoom(c, msg, log)

	case signaling.MessageTypeCallUser:
		if msg.Offer == nil {
			log.Debug("offer without description")
			return
		}
		h.toOther(c, &signaling.Message{
			Type:   signaling.MessageTypeCallMade,
			Offer:  msg.Offer,
			Socket: c.ID.String(),
		}, log)

	case signaling.MessageTypeMakeAnswer:
		room := h.roomOf(c, log)
		if room == nil || msg.Answer == nil {
			return
		}
		target := room.member(msg.To)
		if target == nil || target == c {
			log.Debug("answer target not in room", "to", msg.To)
			return
		}
		h.deliver(target, &signaling.Message{
			Type:   signaling.MessageTypeAnswerMade,
			Answer: msg.Answer,
			From:   c.ID.String(),
		})

	case signaling.MessageTypeICECandidate:
		if msg.Candidate == nil {
			return
		}
		h.toOther(c, &signaling.Message{
			Type:      signaling.MessageTypeICECandidate,
			Candidate: msg.Candidate,
			From:      c.ID.String(),
		}, log)

	case signaling.MessageTypeEndCall:
		h.toOther(c, &signaling.Message{
			Type: signaling.MessageTypeCallEnded,
			From: c.ID.String(),
		}, log)

	default:
		log.Debug("unknown message type")
	}
}

func (h *Hub) createRoom(c *Client, msg *signaling.Message, log *slog.Logger) {
	if c.RoomCode != "" {
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeError, Reason: "already in a room"})
		return
	}

	code, err := roomcode.Validate(msg.RoomCode)
	if err != nil {
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeError, RoomCode: msg.RoomCode, Reason: err.Error()})
		return
	}

	if !code.IsAlphanumeric() {
		log.Warn("room code outside the generator alphabet", "room", code)
	}

	if _, ok := h.Rooms[code]; ok {
		log.Info("room code collision", "room", code)
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeRoomTaken, RoomCode: code.String()})
		return
	}

	h.Rooms[code] = &Room{Code: code, Owner: c}
	c.RoomCode = code
	c.Username = msg.Username

	log.Info("room created", "room", code)
	h.deliver(c, &signaling.Message{Type: signaling.MessageTypeRoomCreated, RoomCode: code.String()})
}

func (h *Hub) joinRoom(c *Client, msg *signaling.Message, log *slog.Logger) {
	if c.RoomCode != "" {
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeError, Reason: "already in a room"})
		return
	}

	code, err := roomcode.Validate(msg.RoomCode)
	room := h.Rooms[code]
	if err != nil || room == nil {
		log.Info("room join failed: room not found", "room", msg.RoomCode)
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeRoomNotFound, RoomCode: msg.RoomCode})
		return
	}

	if room.Guest != nil {
		log.Info("room join failed: room is full", "room", code)
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeRoomFull, RoomCode: code.String()})
		return
	}

	room.Guest = c
	c.RoomCode = code
	c.Username = msg.Username

	log.Info("client joined room", "room", code)

	h.deliver(room.Owner, &signaling.Message{
		Type:     signaling.MessageTypeUserJoinedRoom,
		RoomCode: code.String(),
		Username: c.Username,
	})
	h.deliver(c, &signaling.Message{
		Type:     signaling.MessageTypeRoomJoined,
		RoomCode: code.String(),
		Username: room.Owner.Username,
	})
}

// removeFromRoom detaches a departing client. A departing owner ends the room.
func (h *Hub) removeFromRoom(c *Client) {
	if c.RoomCode == "" {
		return
	}
	room, ok := h.Rooms[c.RoomCode]
	if !ok {
		return
	}

	other := room.other(c)
	switch c {
	case room.Owner:
		delete(h.Rooms, room.Code)
		if other != nil {
			other.RoomCode = ""
		}
		h.log.Info("room deleted", "room", room.Code)
	case room.Guest:
		room.Guest = nil
		h.log.Info("guest left room", "room", room.Code)
	}
	c.RoomCode = ""

	if other != nil {
		h.deliver(other, &signaling.Message{Type: signaling.MessageTypePeerLeft, RoomCode: room.Code.String()})
	}
}

func (h *Hub) roomOf(c *Client, log *slog.Logger) *Room {
	if c.RoomCode == "" {
		log.Debug("signal from client outside any room")
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeError, Reason: "you must join a room first"})
		return nil
	}
	room, ok := h.Rooms[c.RoomCode]
	if !ok {
		h.deliver(c, &signaling.Message{Type: signaling.MessageTypeError, Reason: "room not found"})
		return nil
	}
	return room
}

func (h *Hub) toOther(c *Client, msg *signaling.Message, log *slog.Logger) {
	room := h.roomOf(c, log)
	if room == nil {
		return
	}
	target := room.other(c)
	if target == nil {
		log.Debug("no other peer in room", "room", room.Code)
		return
	}
	msg.RoomCode = room.Code.String()
	h.deliver(target, msg)
}

// deliver queues msg without blocking the hub on a slow peer.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("dropping message for slow peer", "peer", c.ID.String(), "type", msg.Type)
	}
}
