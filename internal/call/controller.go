package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// RoomStatus is what the controller needs to know about the room.
type RoomStatus interface {
	Paired() bool
	Code() roomcode.Code
}

// UI is the surface that presents a call. Implementations must not call back
// into the Controller synchronously.
type UI interface {
	ShowCall(kind media.Kind, local []media.Track)
	ShowRemote(kind media.Kind, remote []RemoteTrack)
	RemoveCallSurface()
	Alert(err error)
}

// CallSession is the state of one call.
type CallSession struct {
	RoomCode     roomcode.Code
	Kind         media.Kind
	LocalTracks  []media.Track
	RemoteTracks []RemoteTrack
	Outgoing     bool
	StartedAt    time.Time
	EndedAt      time.Time
}

// Duration is how long the call lasted, or has lasted so far.
func (s CallSession) Duration() time.Duration {
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// Controller turns user intents into negotiation steps for a paired room.
type Controller struct {
	mu      sync.Mutex
	room    RoomStatus
	ch      signaling.Channel
	source  media.Source
	factory Factory
	ui      UI
	log     *slog.Logger

	answerTimeout time.Duration
	answerMedia   bool

	neg     *Negotiator
	session *CallSession
	timer   *time.Timer
	history []CallSession
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithAnswerTimeout ends an outgoing call that is not answered within d.
// Zero waits forever.
func WithAnswerTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.answerTimeout = d }
}

// WithAnswerMedia makes incoming calls attach local media of the offered
// kind before answering. Without it incoming calls are receive-only.
func WithAnswerMedia(enabled bool) ControllerOption {
	return func(c *Controller) { c.answerMedia = enabled }
}

func WithLogger(log *slog.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

func NewController(room RoomStatus, ch signaling.Channel, source media.Source, factory Factory, ui UI, opts ...ControllerOption) *Controller {
	c := &Controller{
		room:    room,
		ch:      ch,
		source:  source,
		factory: factory,
		ui:      ui,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the negotiation handlers on r. Call it once.
func (c *Controller) Register(r *signaling.Router) {
	r.Handle(signaling.MessageTypeCallMade, c.onCallMade)
	r.Handle(signaling.MessageTypeAnswerMade, c.onAnswerMade)
	r.Handle(signaling.MessageTypeICECandidate, c.onCandidate)
	r.Handle(signaling.MessageTypeCallEnded, c.onCallEnded)
}

// Arm prepares a fresh negotiator for the paired room.
func (c *Controller) Arm() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.room.Paired():
		return NewError("arm", ErrNoRoom)
	case c.session != nil:
		return NewError("arm", ErrCallActive)
	case c.neg != nil && c.neg.Initialized():
		return nil
	}
	return c.armLocked()
}

func (c *Controller) armLocked() error {
	neg := NewNegotiator(c.ch, c.room.Code(), c.factory, NegotiatorHooks{
		OnRemoteTracks: c.onRemoteTracks,
		OnConnectionFailed: func(err error) {
			// Runs on a pion goroutine that Close waits for.
			go c.endFailed(err)
		},
	}, c.log)
	if err := neg.Initialize(); err != nil {
		c.neg = nil
		return err
	}
	c.neg = neg
	return nil
}

// StartCall acquires local media for kind and offers it to the peer.
func (c *Controller) StartCall(ctx context.Context, kind media.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.room.Paired() {
		return NewError("start call", ErrNoRoom)
	}
	if c.neg == nil || !c.neg.Initialized() {
		return NewError("start call", ErrNotReady)
	}
	// A callee that answered receive-only may still call back.
	callback := c.session != nil && len(c.session.LocalTracks) == 0 && !c.neg.Offered() && c.neg.State() == Connected
	if c.session != nil && !callback {
		return NewError("start call", ErrCallActive)
	}

	tracks, err := c.source.Acquire(ctx, kind)
	if err != nil {
		return NewError("acquire media", err)
	}

	neg := c.neg
	if err := neg.MakeOffer(tracks); err != nil {
		media.StopAll(tracks)
		if c.session != nil {
			c.endLocked(false)
		} else {
			c.rearmLocked()
		}
		return err
	}

	if callback {
		c.session.LocalTracks = tracks
		c.session.Kind = max(c.session.Kind, kind)
	} else {
		c.session = &CallSession{
			RoomCode:    c.room.Code(),
			Kind:        kind,
			LocalTracks: tracks,
			Outgoing:    true,
			StartedAt:   time.Now(),
		}
	}
	c.ui.ShowCall(c.session.Kind, tracks)

	if c.answerTimeout > 0 {
		c.timer = time.AfterFunc(c.answerTimeout, func() { c.answerTimedOut(neg) })
	}
	c.log.Info("call started", "room", c.room.Code().String(), "kind", kind)
	return nil
}

// EndCall stops local media, tears down the negotiation, tells the peer and
// clears the call surface. It is safe without an active call.
func (c *Controller) EndCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(true)
}

// Detach ends any call without notifying the peer and does not re-arm. Use
// it when the peer has left the room.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(false)
	if c.neg != nil {
		c.neg.Teardown()
		c.neg = nil
	}
}

// Active reports whether a call is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Snapshot returns a copy of the current call and the negotiation state.
// ok is false without an active call.
func (c *Controller) Snapshot() (session CallSession, state State, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.neg != nil {
		state = c.neg.State()
	}
	if c.session == nil {
		return CallSession{}, state, false
	}
	session = *c.session
	session.LocalTracks = append([]media.Track(nil), c.session.LocalTracks...)
	if c.neg != nil {
		session.RemoteTracks = c.neg.RemoteTracks()
	}
	return session, state, true
}

// History returns the calls that have ended, oldest first.
func (c *Controller) History() []CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CallSession(nil), c.history...)
}

// Negotiator returns the current negotiator, if armed.
func (c *Controller) Negotiator() *Negotiator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.neg
}

// endLocked is the shared hang-up path. Callers hold c.mu.
func (c *Controller) endLocked(notify bool) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	active := c.session != nil
	idle := c.neg == nil || c.neg.State() == Idle
	if !active && idle {
		c.ui.RemoveCallSurface()
		return
	}

	if active {
		// Local tracks stop before this returns.
		media.StopAll(c.session.LocalTracks)
		ended := *c.session
		ended.EndedAt = time.Now()
		if c.neg != nil {
			ended.RemoteTracks = c.neg.RemoteTracks()
		}
		c.history = append(c.history, ended)
	}
	if c.neg != nil {
		c.neg.Teardown()
	}
	if active && notify {
		if err := c.ch.Send(&signaling.Message{
			Type: signaling.MessageTypeEndCall,
			To:   c.room.Code().String(),
		}); err != nil {
			c.log.Warn("failed to notify peer of hang-up", "error", err)
		}
	}
	c.session = nil
	c.ui.RemoveCallSurface()
	c.rearmLocked()
	c.log.Info("call ended", "notified", active && notify)
}

// rearmLocked replaces the negotiator with a fresh one while the room is
// paired. Callers hold c.mu.
func (c *Controller) rearmLocked() {
	if c.neg != nil {
		c.neg.Teardown()
		c.neg = nil
	}
	if !c.room.Paired() {
		return
	}
	if err := c.armLocked(); err != nil {
		c.log.Error("failed to prepare next call", "error", err)
	}
}

func (c *Controller) answerTimedOut(neg *Negotiator) {
	c.mu.Lock()
	if c.neg != neg || neg.State() != AwaitingAnswer {
		c.mu.Unlock()
		return
	}
	c.log.Warn("offer was not answered in time", "timeout", c.answerTimeout)
	c.endLocked(true)
	c.mu.Unlock()

	c.ui.Alert(NewError("call", ErrAnswerTimeout))
}

func (c *Controller) endFailed(err error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	c.endLocked(true)
	c.mu.Unlock()

	c.ui.Alert(NewError("call", err))
}

func (c *Controller) onRemoteTracks(kind media.Kind, remote []RemoteTrack) {
	c.ui.ShowRemote(kind, remote)
}

func (c *Controller) onCallMade(msg *signaling.Message) {
	if msg.Offer == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.neg == nil {
		c.log.Warn("dropping offer", "error", ErrNotReady)
		return
	}

	kind := offeredKind(msg.Offer.SDP)
	var tracks []media.Track
	if c.answerMedia && (c.session == nil || len(c.session.LocalTracks) == 0) {
		acquired, err := c.source.Acquire(context.Background(), kind)
		if err != nil {
			// Answer receive-only.
			c.log.Warn("answering without local media", "error", err)
			c.ui.Alert(NewError("acquire media", err))
		} else {
			tracks = acquired
		}
	}

	if err := c.neg.HandleOffer(*msg.Offer, msg.Socket, tracks); err != nil {
		media.StopAll(tracks)
		if !errors.Is(err, ErrStraySignal) {
			c.log.Error("failed to answer call", "error", err)
			c.ui.Alert(err)
		}
		if c.neg.State() == Ended {
			if c.session != nil {
				c.endLocked(true)
			} else {
				c.rearmLocked()
			}
		}
		return
	}

	if c.session == nil {
		c.session = &CallSession{
			RoomCode:    c.room.Code(),
			Kind:        kind,
			LocalTracks: tracks,
			StartedAt:   time.Now(),
		}
	} else {
		c.session.Kind = max(c.session.Kind, kind)
		c.session.LocalTracks = append(c.session.LocalTracks, tracks...)
	}
	c.ui.ShowCall(c.session.Kind, c.session.LocalTracks)
}

func (c *Controller) onAnswerMade(msg *signaling.Message) {
	if msg.Answer == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.neg == nil {
		c.log.Warn("dropping answer", "error", ErrStraySignal)
		return
	}
	if err := c.neg.HandleAnswer(*msg.Answer); err != nil {
		if !errors.Is(err, ErrStraySignal) {
			c.log.Error("failed to apply answer", "error", err)
			c.ui.Alert(err)
		}
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) onCandidate(msg *signaling.Message) {
	if msg.Candidate == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.neg == nil {
		c.log.Debug("dropping candidate", "error", ErrStraySignal)
		return
	}
	if err := c.neg.HandleRemoteCandidate(*msg.Candidate); err != nil {
		c.log.Debug("remote candidate not applied", "error", err)
	}
}

func (c *Controller) onCallEnded(*signaling.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Info("peer ended the call")
	c.endLocked(false)
}

// offeredKind reports Video when the offer carries a video section.
func offeredKind(sdp string) media.Kind {
	if strings.Contains(sdp, "m=video") {
		return media.Video
	}
	return media.Audio
}
