package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomTaken    = errors.New("room code already in use")
	ErrRoomFull     = errors.New("room is full")
	ErrInvalidState = errors.New("room session already started")
	ErrJoinPending  = errors.New("join already in progress")
	ErrClosed       = errors.New("room session closed")
	ErrPeerLeft     = errors.New("peer left the room")
)

// State is the lifecycle position of a Session.
type State int

const (
	Uncreated State = iota
	AwaitingPeer
	Paired
	Closed
)

func (s State) String() string {
	switch s {
	case Uncreated:
		return "uncreated"
	case AwaitingPeer:
		return "awaiting-peer"
	case Paired:
		return "paired"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Role tells whether this side created or joined the room.
type Role int

const (
	NoRole Role = iota
	Owner
	Joiner
)

// Events are callbacks fired from the signaling loop. Any may be nil.
type Events struct {
	// OnPaired fires once the other party is in the room.
	OnPaired func(peerName string)

	// OnFailure fires for remote-reported failures of the current attempt:
	// ErrRoomNotFound, ErrRoomTaken, ErrRoomFull.
	OnFailure func(err error)

	// OnPeerLeft fires when the relay reports the other party disconnected.
	OnPeerLeft func()
}

// Session owns one side of a two-party room.
type Session struct {
	mu       sync.Mutex
	ch       signaling.Channel
	gen      roomcode.Generator
	events   Events
	log      *slog.Logger
	state    State
	role     Role
	code     roomcode.Code
	username string
	peerName string

	// failed marks the current attempt as rejected by the relay; a new join
	// is allowed while it is set.
	failed error
	// outcome is signalled once per attempt with nil (paired) or the failure.
	outcome chan error
}

// Option configures a Session.
type Option func(*Session)

// WithGenerator replaces the room code generator.
func WithGenerator(g roomcode.Generator) Option {
	return func(s *Session) { s.gen = g }
}

// WithEvents sets the session callbacks.
func WithEvents(e Events) Option {
	return func(s *Session) { s.events = e }
}

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// New creates an Uncreated session speaking over ch.
func New(ch signaling.Channel, opts ...Option) *Session {
	s := &Session{
		ch:  ch,
		gen: roomcode.DefaultGenerator,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the session's handlers on r. Call it once.
func (s *Session) Register(r *signaling.Router) {
	r.Handle(signaling.MessageTypeRoomCreated, s.onRoomCreated)
	r.Handle(signaling.MessageTypeUserJoinedRoom, s.onUserJoined)
	r.Handle(signaling.MessageTypeRoomJoined, s.onRoomJoined)
	r.Handle(signaling.MessageTypeRoomNotFound, s.rejected(ErrRoomNotFound))
	r.Handle(signaling.MessageTypeRoomFull, s.rejected(ErrRoomFull))
	r.Handle(signaling.MessageTypeRoomTaken, s.rejected(ErrRoomTaken))
	r.Handle(signaling.MessageTypePeerLeft, s.onPeerLeft)
}

// CreateRoom generates a code, announces it to the relay and waits for a peer.
func (s *Session) CreateRoom(username string) (roomcode.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Closed:
		return "", ErrClosed
	case s.state != Uncreated:
		return "", ErrInvalidState
	}

	code := s.gen.Generate()
	if err := s.ch.Send(&signaling.Message{
		Type:     signaling.MessageTypeCreateRoom,
		RoomCode: code.String(),
		Username: username,
	}); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	s.role = Owner
	s.code = code
	s.username = username
	s.state = AwaitingPeer
	s.outcome = make(chan error, 1)
	s.log.Info("room created", "room", code)
	return code, nil
}

// JoinRoom validates code and asks the relay to join it. A malformed code
// fails with roomcode.ErrInvalidFormat before anything is sent. After a
// relay rejection the session accepts a fresh JoinRoom with another code.
func (s *Session) JoinRoom(code, username string) error {
	normalized, err := roomcode.Validate(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Closed:
		return ErrClosed
	case s.role == Owner:
		return ErrInvalidState
	case s.state == Paired:
		return ErrInvalidState
	case s.state == AwaitingPeer && s.failed == nil:
		return ErrJoinPending
	}

	if err := s.ch.Send(&signaling.Message{
		Type:     signaling.MessageTypeJoinRoom,
		RoomCode: normalized.String(),
		Username: username,
	}); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	s.role = Joiner
	s.code = normalized
	s.username = username
	s.state = AwaitingPeer
	s.failed = nil
	s.outcome = make(chan error, 1)
	s.log.Info("joining room", "room", normalized)
	return nil
}

// Wait blocks until the current attempt pairs, fails, or ctx is done. It
// returns the peer's display name on success.
func (s *Session) Wait(ctx context.Context) (string, error) {
	s.mu.Lock()
	outcome := s.outcome
	state := s.state
	s.mu.Unlock()

	if outcome == nil {
		if state == Closed {
			return "", ErrClosed
		}
		return "", ErrInvalidState
	}

	select {
	case err := <-outcome:
		// Leave the result in place for other waiters.
		outcome <- err
		if err != nil {
			return "", err
		}
		if s.State() == Closed {
			return "", ErrClosed
		}
		return s.PeerName(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close ends the session. Later relay events are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	s.state = Closed
	s.settle(ErrClosed)
}

func (s *Session) Code() roomcode.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Paired reports whether both parties are in the room.
func (s *Session) Paired() bool {
	return s.State() == Paired
}

func (s *Session) PeerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerName
}

// settle records the attempt's outcome. Callers hold s.mu.
func (s *Session) settle(err error) {
	if s.outcome == nil {
		return
	}
	select {
	case s.outcome <- err:
	default:
	}
}

// matches reports whether a relay message refers to the current room. An
// empty code on the message is taken as a match.
func (s *Session) matches(msg *signaling.Message) bool {
	if msg.RoomCode == "" {
		return true
	}
	code, err := roomcode.Validate(msg.RoomCode)
	return err == nil && code == s.code
}

func (s *Session) onRoomCreated(msg *signaling.Message) {
	s.log.Debug("relay acknowledged room", "room", msg.RoomCode)
}

func (s *Session) onUserJoined(msg *signaling.Message) {
	s.mu.Lock()
	if s.role != Owner || s.state != AwaitingPeer || !s.matches(msg) {
		s.mu.Unlock()
		s.log.Debug("ignoring userJoinedRoom", "room", msg.RoomCode)
		return
	}
	s.peerName = msg.Username
	s.state = Paired
	s.settle(nil)
	cb := s.events.OnPaired
	name := s.peerName
	s.mu.Unlock()

	s.log.Info("peer joined room", "room", msg.RoomCode, "peer", name)
	if cb != nil {
		cb(name)
	}
}

func (s *Session) onRoomJoined(msg *signaling.Message) {
	s.mu.Lock()
	if s.role != Joiner || s.state != AwaitingPeer || s.failed != nil || !s.matches(msg) {
		s.mu.Unlock()
		s.log.Debug("ignoring roomJoined", "room", msg.RoomCode)
		return
	}
	s.peerName = msg.Username
	if s.peerName == "" {
		s.peerName = "Room: " + s.code.String()
	}
	s.state = Paired
	s.settle(nil)
	cb := s.events.OnPaired
	name := s.peerName
	s.mu.Unlock()

	s.log.Info("joined room", "room", msg.RoomCode)
	if cb != nil {
		cb(name)
	}
}

// rejected handles relay refusals of the pending create or join.
func (s *Session) rejected(reason error) signaling.HandlerFunc {
	return func(msg *signaling.Message) {
		s.mu.Lock()
		if s.state != AwaitingPeer || s.failed != nil || !s.matches(msg) {
			s.mu.Unlock()
			s.log.Debug("ignoring room rejection", "reason", reason, "room", msg.RoomCode)
			return
		}
		s.failed = reason
		s.settle(reason)
		if s.role == Owner {
			// A taken code cannot be retried in place.
			s.state = Closed
		}
		cb := s.events.OnFailure
		s.mu.Unlock()

		s.log.Info("room attempt rejected", "reason", reason, "room", msg.RoomCode)
		if cb != nil {
			cb(reason)
		}
	}
}

func (s *Session) onPeerLeft(msg *signaling.Message) {
	s.mu.Lock()
	if s.state != Paired || !s.matches(msg) {
		s.mu.Unlock()
		return
	}
	if s.role == Owner {
		// The owner's room survives; wait for someone else.
		s.state = AwaitingPeer
		s.peerName = ""
		s.outcome = make(chan error, 1)
	} else {
		s.state = Closed
	}
	cb := s.events.OnPeerLeft
	s.mu.Unlock()

	s.log.Info("peer left room", "room", msg.RoomCode)
	if cb != nil {
		cb()
	}
}
