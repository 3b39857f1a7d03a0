package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

type recorder struct {
	mu   sync.Mutex
	sent []*signaling.Message
}

func (r *recorder) Send(msg *signaling.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) Incoming() <-chan *signaling.Message { return nil }

func (r *recorder) messages() []*signaling.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*signaling.Message(nil), r.sent...)
}

func newSession(t *testing.T, opts ...Option) (*Session, *recorder, *signaling.Router) {
	t.Helper()
	rec := &recorder{}
	s := New(rec, opts...)
	r := signaling.NewRouter(nil)
	s.Register(r)
	return s, rec, r
}

func fixed(code string) roomcode.Generator {
	return roomcode.GeneratorFunc(func() roomcode.Code { return roomcode.Code(code) })
}

func TestCreateRoom_PairsWhenGuestJoins(t *testing.T) {
	var paired string
	s, rec, r := newSession(t,
		WithGenerator(fixed("AB12CD")),
		WithEvents(Events{OnPaired: func(name string) { paired = name }}),
	)

	code, err := s.CreateRoom("Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if code != "AB12CD" {
		t.Fatalf("code=%q", code)
	}
	sent := rec.messages()
	if len(sent) != 1 || sent[0].Type != signaling.MessageTypeCreateRoom || sent[0].RoomCode != "AB12CD" || sent[0].Username != "Alice" {
		t.Fatalf("sent=%+v", sent)
	}
	if s.State() != AwaitingPeer {
		t.Fatalf("state=%v, want awaiting-peer", s.State())
	}

	// Events for other rooms are ignored.
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeUserJoinedRoom, RoomCode: "ZZZZZZ", Username: "Mallory"})
	if s.Paired() {
		t.Fatalf("paired on foreign room event")
	}

	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeUserJoinedRoom, RoomCode: "AB12CD", Username: "Bob"})
	if !s.Paired() || paired != "Bob" || s.PeerName() != "Bob" {
		t.Fatalf("paired=%v name=%q callback=%q", s.Paired(), s.PeerName(), paired)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	name, err := s.Wait(ctx)
	if err != nil || name != "Bob" {
		t.Fatalf("Wait=%q, %v", name, err)
	}
}

func TestCreateRoom_Twice(t *testing.T) {
	s, _, _ := newSession(t)
	if _, err := s.CreateRoom("Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := s.CreateRoom("Alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second CreateRoom err=%v, want ErrInvalidState", err)
	}
	if err := s.JoinRoom("AB12CD", "Alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("JoinRoom after create err=%v, want ErrInvalidState", err)
	}
}

func TestCreateRoom_Taken(t *testing.T) {
	var failure error
	s, _, r := newSession(t,
		WithGenerator(fixed("AAAAAA")),
		WithEvents(Events{OnFailure: func(err error) { failure = err }}),
	)
	if _, err := s.CreateRoom("Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomTaken, RoomCode: "AAAAAA"})

	if !errors.Is(failure, ErrRoomTaken) {
		t.Fatalf("failure=%v, want ErrRoomTaken", failure)
	}
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrRoomTaken) {
		t.Fatalf("Wait err=%v, want ErrRoomTaken", err)
	}
	if s.State() != Closed {
		t.Fatalf("state=%v, want closed", s.State())
	}
}

func TestJoinRoom_NormalizesCode(t *testing.T) {
	s, rec, r := newSession(t)

	if err := s.JoinRoom("ab12cd", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	sent := rec.messages()
	if len(sent) != 1 || sent[0].Type != signaling.MessageTypeJoinRoom || sent[0].RoomCode != "AB12CD" || sent[0].Username != "Bob" {
		t.Fatalf("sent=%+v", sent)
	}

	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomJoined, RoomCode: "AB12CD", Username: "Alice"})
	if !s.Paired() || s.PeerName() != "Alice" {
		t.Fatalf("paired=%v name=%q", s.Paired(), s.PeerName())
	}
	if s.Role() != Joiner {
		t.Fatalf("role=%v, want Joiner", s.Role())
	}
}

func TestJoinRoom_InvalidFormatSendsNothing(t *testing.T) {
	for _, code := range []string{"AB12", "AB12CD3", "  ab1  ", ""} {
		s, rec, _ := newSession(t)
		if err := s.JoinRoom(code, "Bob"); !errors.Is(err, roomcode.ErrInvalidFormat) {
			t.Fatalf("JoinRoom(%q) err=%v, want ErrInvalidFormat", code, err)
		}
		if n := len(rec.messages()); n != 0 {
			t.Fatalf("JoinRoom(%q) sent %d messages", code, n)
		}
		if s.State() != Uncreated {
			t.Fatalf("JoinRoom(%q) state=%v, want uncreated", code, s.State())
		}
	}
}

func TestJoinRoom_PendingRejectsSecondJoin(t *testing.T) {
	s, rec, _ := newSession(t)
	if err := s.JoinRoom("AB12CD", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := s.JoinRoom("QWERTY", "Bob"); !errors.Is(err, ErrJoinPending) {
		t.Fatalf("second JoinRoom err=%v, want ErrJoinPending", err)
	}
	if n := len(rec.messages()); n != 1 {
		t.Fatalf("sent %d messages, want 1", n)
	}
}

func TestJoinRoom_RetryAfterNotFound(t *testing.T) {
	var failures []error
	s, rec, r := newSession(t, WithEvents(Events{OnFailure: func(err error) { failures = append(failures, err) }}))

	if err := s.JoinRoom("ZZZZZZ", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomNotFound, RoomCode: "ZZZZZZ"})

	if len(failures) != 1 || !errors.Is(failures[0], ErrRoomNotFound) {
		t.Fatalf("failures=%v", failures)
	}
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Wait err=%v, want ErrRoomNotFound", err)
	}
	if s.State() != AwaitingPeer {
		t.Fatalf("state=%v, want awaiting-peer", s.State())
	}

	if err := s.JoinRoom("qwerty", "Bob"); err != nil {
		t.Fatalf("retry JoinRoom: %v", err)
	}
	if got := rec.messages(); len(got) != 2 || got[1].RoomCode != "QWERTY" {
		t.Fatalf("sent=%+v", got)
	}

	// A late roomNotFound for the old code does not fail the new attempt.
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomNotFound, RoomCode: "ZZZZZZ"})
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomJoined, RoomCode: "QWERTY"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	name, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if name != "Room: QWERTY" {
		t.Fatalf("peer name=%q, want fallback room label", name)
	}
}

func TestJoinRoom_Full(t *testing.T) {
	s, _, r := newSession(t)
	if err := s.JoinRoom("AB12CD", "Eve"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomFull, RoomCode: "AB12CD"})
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("Wait err=%v, want ErrRoomFull", err)
	}
}

func TestPeerLeft(t *testing.T) {
	left := 0
	owner, _, r := newSession(t,
		WithGenerator(fixed("AB12CD")),
		WithEvents(Events{OnPeerLeft: func() { left++ }}),
	)
	if _, err := owner.CreateRoom("Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeUserJoinedRoom, RoomCode: "AB12CD", Username: "Bob"})
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypePeerLeft, RoomCode: "AB12CD"})

	if left != 1 {
		t.Fatalf("OnPeerLeft fired %d times", left)
	}
	if owner.State() != AwaitingPeer || owner.PeerName() != "" {
		t.Fatalf("owner state=%v peer=%q", owner.State(), owner.PeerName())
	}

	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeUserJoinedRoom, RoomCode: "AB12CD", Username: "Carol"})
	if owner.PeerName() != "Carol" {
		t.Fatalf("peer=%q, want Carol", owner.PeerName())
	}
}

func TestWait_ContextAndClose(t *testing.T) {
	s, _, r := newSession(t)
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Wait before start err=%v", err)
	}
	if err := s.JoinRoom("AB12CD", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err=%v, want deadline", err)
	}

	s.Close()
	s.Close()
	if s.State() != Closed {
		t.Fatalf("state=%v, want closed", s.State())
	}
	r.Dispatch(&signaling.Message{Type: signaling.MessageTypeRoomJoined, RoomCode: "AB12CD"})
	if s.Paired() {
		t.Fatalf("closed session paired")
	}
	if err := s.JoinRoom("AB12CD", "Bob"); !errors.Is(err, ErrClosed) {
		t.Fatalf("JoinRoom after Close err=%v, want ErrClosed", err)
	}
}
