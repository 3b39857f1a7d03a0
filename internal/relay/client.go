package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with many candidates

	// Per-connection message budget. Trickle ICE bursts at call setup.
	messageRate  = 20
	messageBurst = 60
)

// Client is a wrapper for a single websocket connection (a peer)
type Client struct {
	// ID identifies the peer inside its room; it is what "socket" and
	// "from" carry on relayed messages.
	ID uuid.UUID

	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Codec is the wire encoding this peer asked for.
	Codec signaling.Codec

	// RoomCode is the room the client is in, empty until create/join.
	RoomCode roomcode.Code

	// Username is the display name sent with create/join.
	Username string

	// Send is a buffered channel for all outbound messages.
	// We write to this channel, and a separate goroutine (WritePump)
	// reads from it and writes to the websocket.
	Send chan *signaling.Message

	limiter *rate.Limiter
}

// NewClient wraps conn for hub.
func NewClient(hub *Hub, conn *websocket.Conn, codec signaling.Codec) *Client {
	return &Client{
		ID:      uuid.New(),
		Hub:     hub,
		Conn:    conn,
		Codec:   codec,
		Send:    make(chan *signaling.Message, 256),
		limiter: rate.NewLimiter(messageRate, messageBurst),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()

	log := c.Hub.log.With("peer", c.ID.String())

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn("read failed", "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			log.Warn("closing connection over rate limit")
			c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit"),
				time.Now().Add(writeWait))
			return
		}

		var msg signaling.Message
		if err := c.Codec.Unmarshal(data, &msg); err != nil {
			log.Debug("dropping undecodable frame", "error", err)
			continue
		}

		if !c.Hub.submit(&inbound{client: c, msg: &msg}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.Codec.Marshal(message)
			if err != nil {
				c.Hub.log.Error("failed to encode message", "type", message.Type, "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.Codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
