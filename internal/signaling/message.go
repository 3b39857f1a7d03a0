package signaling

// Message represents every frame exchanged between a peer and the relay.
// Only the fields relevant to Type are set.
type Message struct {
	Type      string              `json:"type" msgpack:"type"`
	RoomCode  string              `json:"roomCode,omitempty" msgpack:"roomCode,omitempty"`
	Username  string              `json:"username,omitempty" msgpack:"username,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	To        string              `json:"to,omitempty" msgpack:"to,omitempty"`
	Socket    string              `json:"socket,omitempty" msgpack:"socket,omitempty"`
	From      string              `json:"from,omitempty" msgpack:"from,omitempty"`
	Reason    string              `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// Room events.
const (
	MessageTypeCreateRoom     = "createRoom"
	MessageTypeRoomCreated    = "roomCreated"
	MessageTypeRoomTaken      = "roomTaken"
	MessageTypeJoinRoom       = "joinRoom"
	MessageTypeUserJoinedRoom = "userJoinedRoom"
	MessageTypeRoomJoined     = "roomJoined"
	MessageTypeRoomNotFound   = "roomNotFound"
	MessageTypeRoomFull       = "roomFull"
	MessageTypePeerLeft       = "peerLeft"
	MessageTypeError          = "error"
)

// Negotiation events.
const (
	MessageTypeCallUser     = "call-user"
	MessageTypeCallMade     = "call-made"
	MessageTypeMakeAnswer   = "make-answer"
	MessageTypeAnswerMade   = "answer-made"
	MessageTypeICECandidate = "ice-candidate"
	MessageTypeEndCall      = "end-call"
	MessageTypeCallEnded    = "call-ended"
)

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// Candidate is a trickled ICE candidate in its browser JSON shape.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Channel is the bidirectional relay a peer talks through. Messages are
// delivered on Incoming in the order the relay sent them.
type Channel interface {
	Send(msg *Message) error
	Incoming() <-chan *Message
}
