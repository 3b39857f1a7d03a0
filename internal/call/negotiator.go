package call

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// State is the negotiation position of a Negotiator.
type State int

const (
	Idle State = iota
	CreatingOffer
	AwaitingAnswer
	AwaitingRemoteDescription
	CreatingAnswer
	Connected
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CreatingOffer:
		return "creating-offer"
	case AwaitingAnswer:
		return "awaiting-answer"
	case AwaitingRemoteDescription:
		return "awaiting-remote-description"
	case CreatingAnswer:
		return "creating-answer"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PeerConnection is the part of *webrtc.PeerConnection a Negotiator drives.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// Factory builds peer connections.
type Factory interface {
	NewPeerConnection() (PeerConnection, error)
}

// FactoryFunc adapts a function to a Factory.
type FactoryFunc func() (PeerConnection, error)

func (f FactoryFunc) NewPeerConnection() (PeerConnection, error) {
	return f()
}

// RemoteTrack describes a track received from the peer.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Codec    string
}

// NegotiatorHooks are notifications raised outside the signaling loop.
// Any may be nil. They must not call back into the Negotiator.
type NegotiatorHooks struct {
	// OnRemoteTracks fires after each remote track with the classification
	// of everything received so far.
	OnRemoteTracks func(kind media.Kind, tracks []RemoteTrack)

	// OnConnectionFailed fires when the transport reports failure.
	OnConnectionFailed func(err error)
}

// Negotiator drives the offer/answer and candidate exchange for one call
// over one peer connection.
type Negotiator struct {
	mu      sync.Mutex
	ch      signaling.Channel
	room    roomcode.Code
	factory Factory
	hooks   NegotiatorHooks
	log     *slog.Logger

	pc        PeerConnection
	state     State
	offered   bool
	remoteSet bool
	ufrags    []string
	pending   []webrtc.ICECandidateInit
	local     []media.Track
	closed    bool

	// ended is read by pion callbacks, which never take mu.
	ended atomic.Bool

	trackMu sync.Mutex
	remote  []RemoteTrack
}

// NewNegotiator creates an uninitialized negotiator for room.
func NewNegotiator(ch signaling.Channel, room roomcode.Code, factory Factory, hooks NegotiatorHooks, log *slog.Logger) *Negotiator {
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{
		ch:      ch,
		room:    room,
		factory: factory,
		hooks:   hooks,
		log:     log.With("room", room.String()),
	}
}

// Initialize builds the peer connection and wires its callbacks. Calling it
// again is a no-op.
func (n *Negotiator) Initialize() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == Ended {
		return NewError("initialize", ErrEnded)
	}
	if n.pc != nil {
		return nil
	}

	pc, err := n.factory.NewPeerConnection()
	if err != nil {
		return NewError("create peer connection", err)
	}

	pc.OnICECandidate(n.onLocalCandidate)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n.HandleTrack(RemoteTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind(),
			Codec:    track.Codec().MimeType,
		})
		go drain(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		n.log.Info("peer connection state changed", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed && !n.ended.Load() && n.hooks.OnConnectionFailed != nil {
			n.hooks.OnConnectionFailed(ErrConnection)
		}
	})

	n.pc = pc
	n.log.Debug("negotiator initialized")
	return nil
}

// Initialized reports whether a peer connection exists.
func (n *Negotiator) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pc != nil && n.state != Ended
}

// MakeOffer attaches tracks, sets a fresh offer as the local description and
// sends it to the room. It is allowed once per negotiator: from Idle, or from
// Connected when this side answered and has not offered yet.
func (n *Negotiator) MakeOffer(tracks []media.Track) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case n.pc == nil:
		return NewError("make offer", ErrNotReady)
	case n.state == Ended:
		return NewError("make offer", ErrEnded)
	case n.offered, n.state != Idle && n.state != Connected:
		return NewError("make offer", ErrOfferPending)
	}

	prev, kept := n.state, len(n.local)
	fail := func(err error) error {
		n.state = prev
		n.local = n.local[:kept]
		return err
	}
	n.state = CreatingOffer

	if err := n.addTracks(tracks); err != nil {
		return fail(err)
	}

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return fail(NewError("create offer", err))
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return fail(NewError("set local description", err))
	}

	if err := n.ch.Send(&signaling.Message{
		Type:  signaling.MessageTypeCallUser,
		Offer: toWire(n.localOr(offer)),
		To:    n.room.String(),
	}); err != nil {
		return fail(NewError("send offer", err))
	}

	n.offered = true
	n.state = AwaitingAnswer
	n.log.Info("offer sent", "tracks", len(tracks))
	return nil
}

// HandleOffer applies a remote offer and answers it. tracks, which may be
// empty, are attached before the answer is created.
func (n *Negotiator) HandleOffer(desc signaling.SessionDescription, from string, tracks []media.Track) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pc == nil {
		return n.stray("offer", ErrNotReady)
	}
	if n.state != Idle && n.state != Connected {
		return n.stray("offer", ErrStraySignal)
	}

	prev, kept := n.state, len(n.local)
	n.state = AwaitingRemoteDescription
	if err := n.pc.SetRemoteDescription(fromWire(desc, webrtc.SDPTypeOffer)); err != nil {
		n.state = prev
		return NewError("set remote description", err)
	}

	// Past this point the offer is applied. A failure leaves the connection
	// unusable for another offer, so the negotiator cannot be reused.
	fail := func(err error) error {
		n.state = Ended
		n.ended.Store(true)
		n.local = n.local[:kept]
		n.pending = nil
		return err
	}
	n.remoteSet = true
	n.ufrags = remoteUfrags(desc.SDP)
	n.flush()

	n.state = CreatingAnswer
	if err := n.addTracks(tracks); err != nil {
		return fail(err)
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fail(NewError("create answer", err))
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fail(NewError("set local description", err))
	}

	if err := n.ch.Send(&signaling.Message{
		Type:   signaling.MessageTypeMakeAnswer,
		Answer: toWire(n.localOr(answer)),
		To:     from,
	}); err != nil {
		return fail(NewError("send answer", err))
	}

	n.state = Connected
	n.log.Info("answer sent", "to", from)
	return nil
}

// HandleAnswer applies the peer's answer to our outstanding offer. Outside
// AwaitingAnswer it is logged and dropped with ErrStraySignal.
func (n *Negotiator) HandleAnswer(desc signaling.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != AwaitingAnswer {
		return n.stray("answer", ErrStraySignal)
	}

	if err := n.pc.SetRemoteDescription(fromWire(desc, webrtc.SDPTypeAnswer)); err != nil {
		return NewError("set remote description", err)
	}
	n.remoteSet = true
	n.ufrags = remoteUfrags(desc.SDP)
	n.flush()

	n.state = Connected
	n.log.Info("answer applied")
	return nil
}

// HandleRemoteCandidate adds c, or queues it until a remote description is
// set. Queued candidates are applied in arrival order.
func (n *Negotiator) HandleRemoteCandidate(c signaling.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == Ended {
		return n.stray("candidate", ErrStraySignal)
	}

	init := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	if n.pc == nil || !n.remoteSet {
		n.pending = append(n.pending, init)
		n.log.Debug("queued remote candidate", "queued", len(n.pending))
		return nil
	}

	if !n.current(init) {
		return n.stray("candidate", ErrStraySignal)
	}
	if err := n.pc.AddICECandidate(init); err != nil {
		return NewError("add ice candidate", err)
	}
	return nil
}

// HandleTrack records a remote track and reports the stream's kind: Video
// when any remote track is video.
func (n *Negotiator) HandleTrack(t RemoteTrack) {
	if n.ended.Load() {
		return
	}

	n.trackMu.Lock()
	n.remote = append(n.remote, t)
	tracks := append([]RemoteTrack(nil), n.remote...)
	n.trackMu.Unlock()

	kind := classify(tracks)
	n.log.Info("remote track received", "track", t.ID, "kind", t.Kind.String(), "stream", kind)
	if n.hooks.OnRemoteTracks != nil {
		n.hooks.OnRemoteTracks(kind, tracks)
	}
}

// Teardown stops local tracks, closes the connection and moves to Ended.
// Before Initialize, or once torn down, it does nothing.
func (n *Negotiator) Teardown() {
	n.mu.Lock()
	if n.pc == nil || n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.state = Ended
	n.ended.Store(true)
	pc, local := n.pc, n.local
	n.local = nil
	n.pending = nil
	n.mu.Unlock()

	// Close outside the lock: pion may still be running our callbacks.
	media.StopAll(local)
	if err := pc.Close(); err != nil {
		n.log.Warn("failed to close peer connection", "error", err)
	}
	n.log.Info("negotiation torn down")
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Offered reports whether this side has sent an offer.
func (n *Negotiator) Offered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offered
}

// PendingCandidates reports how many remote candidates wait for a remote
// description.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Negotiator) LocalTracks() []media.Track {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]media.Track(nil), n.local...)
}

func (n *Negotiator) RemoteTracks() []RemoteTrack {
	n.trackMu.Lock()
	defer n.trackMu.Unlock()
	return append([]RemoteTrack(nil), n.remote...)
}

// addTracks attaches tracks to the connection. Callers hold n.mu.
func (n *Negotiator) addTracks(tracks []media.Track) error {
	for _, t := range tracks {
		sender, err := n.pc.AddTrack(t.Local())
		if err != nil {
			return WrapError("add track", err, t.ID())
		}
		n.local = append(n.local, t)
		if sender != nil {
			go readRTCP(sender)
		}
	}
	return nil
}

// flush applies queued candidates. Callers hold n.mu.
func (n *Negotiator) flush() {
	if len(n.pending) == 0 {
		return
	}
	queued := n.pending
	n.pending = nil
	stale := 0
	for _, c := range queued {
		if !n.current(c) {
			stale++
			continue
		}
		if err := n.pc.AddICECandidate(c); err != nil {
			n.log.Warn("failed to add queued candidate", "error", err)
		}
	}
	n.log.Debug("flushed queued candidates", "count", len(queued)-stale, "stale", stale)
}

// current reports whether c belongs to the applied remote description.
// Candidates without a username fragment, or descriptions without one, are
// accepted. Callers hold n.mu.
func (n *Negotiator) current(c webrtc.ICECandidateInit) bool {
	if len(n.ufrags) == 0 || c.UsernameFragment == nil || *c.UsernameFragment == "" {
		return true
	}
	return slices.Contains(n.ufrags, *c.UsernameFragment)
}

// remoteUfrags lists the ICE username fragments declared by an SDP. It is
// empty when the SDP does not parse.
func remoteUfrags(raw string) []string {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil
	}
	var ufrags []string
	if v, ok := desc.Attribute("ice-ufrag"); ok {
		ufrags = append(ufrags, v)
	}
	for _, m := range desc.MediaDescriptions {
		if v, ok := m.Attribute("ice-ufrag"); ok && !slices.Contains(ufrags, v) {
			ufrags = append(ufrags, v)
		}
	}
	return ufrags
}

func (n *Negotiator) stray(what string, err error) error {
	n.log.Warn("dropping stray signal", "signal", what, "state", n.state.String())
	return WrapError("handle "+what, err, n.state.String())
}

// localOr prefers the connection's local description, which carries any
// candidates gathered so far.
func (n *Negotiator) localOr(desc webrtc.SessionDescription) webrtc.SessionDescription {
	if ld := n.pc.LocalDescription(); ld != nil {
		return *ld
	}
	return desc
}

func (n *Negotiator) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil || n.ended.Load() {
		return
	}
	init := c.ToJSON()
	if err := n.ch.Send(&signaling.Message{
		Type: signaling.MessageTypeICECandidate,
		Candidate: &signaling.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		},
		To: n.room.String(),
	}); err != nil && !errors.Is(err, signaling.ErrClosed) {
		n.log.Warn("failed to send local candidate", "error", err)
	}
}

func classify(tracks []RemoteTrack) media.Kind {
	for _, t := range tracks {
		if t.Kind == webrtc.RTPCodecTypeVideo {
			return media.Video
		}
	}
	return media.Audio
}

func toWire(desc webrtc.SessionDescription) *signaling.SessionDescription {
	return &signaling.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func fromWire(desc signaling.SessionDescription, fallback webrtc.SDPType) webrtc.SessionDescription {
	t := webrtc.NewSDPType(desc.Type)
	if t == webrtc.SDPTypeUnknown {
		t = fallback
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}
}

// drain reads a remote track until it closes so pion's buffers keep moving.
func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// readRTCP consumes feedback so interceptors such as NACK keep working.
func readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
