package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// fakePC records the calls a Negotiator makes, in order.
type fakePC struct {
	mu         sync.Mutex
	events     []string
	tracks     int
	remote     *webrtc.SessionDescription
	local      *webrtc.SessionDescription
	closed     int
	onICE      func(*webrtc.ICECandidate)
	failOffer  error
	failAnswer error
}

func (p *fakePC) record(event string) {
	p.events = append(p.events, event)
}

func (p *fakePC) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	p.record("track")
	return nil, nil
}

func (p *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOffer != nil {
		return webrtc.SessionDescription{}, p.failOffer
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePC) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, errors.New("answer without remote offer")
	}
	if p.failAnswer != nil {
		return webrtc.SessionDescription{}, p.failAnswer
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePC) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &desc
	p.record("local:" + desc.Type.String())
	return nil
}

func (p *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &desc
	p.record("remote:" + desc.Type.String())
	return nil
}

func (p *fakePC) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("InvalidStateError: remote description not set")
	}
	p.record("candidate:" + c.Candidate)
	return nil
}

func (p *fakePC) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = f
}

func (p *fakePC) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))    {}
func (p *fakePC) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePC) log() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakePC) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeFactory hands out fakePCs and remembers them.
type fakeFactory struct {
	mu  sync.Mutex
	pcs []*fakePC
}

func (f *fakeFactory) NewPeerConnection() (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := &fakePC{}
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) last() *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pcs) == 0 {
		return nil
	}
	return f.pcs[len(f.pcs)-1]
}

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

func (r *recorder) ofType(msgType string) []*signaling.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*signaling.Message
	for _, m := range r.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	stopped atomic.Bool
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) Local() webrtc.TrackLocal  { return nil }
func (t *fakeTrack) Stop()                     { t.stopped.Store(true) }
func (t *fakeTrack) Stopped() bool             { return t.stopped.Load() }

type fakeSource struct {
	mu     sync.Mutex
	err    error
	calls  int
	kinds  []media.Kind
	issued []*fakeTrack
}

func (s *fakeSource) Acquire(_ context.Context, kind media.Kind) ([]media.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.kinds = append(s.kinds, kind)
	if s.err != nil {
		return nil, s.err
	}
	mic := &fakeTrack{id: "audio", kind: webrtc.RTPCodecTypeAudio}
	s.issued = append(s.issued, mic)
	tracks := []media.Track{mic}
	if kind == media.Video {
		cam := &fakeTrack{id: "video", kind: webrtc.RTPCodecTypeVideo}
		s.issued = append(s.issued, cam)
		tracks = append(tracks, cam)
	}
	return tracks, nil
}

func (s *fakeSource) acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) allStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.issued {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

type fakeUI struct {
	mu      sync.Mutex
	shown   []media.Kind
	remote  []media.Kind
	removed int
	alerts  []error
}

func (u *fakeUI) ShowCall(kind media.Kind, _ []media.Track) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.shown = append(u.shown, kind)
}

func (u *fakeUI) ShowRemote(kind media.Kind, _ []RemoteTrack) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.remote = append(u.remote, kind)
}

func (u *fakeUI) RemoveCallSurface() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.removed++
}

func (u *fakeUI) Alert(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.alerts = append(u.alerts, err)
}

func (u *fakeUI) alerted(target error) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, err := range u.alerts {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (u *fakeUI) shownCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.shown)
}

type fakeRoom struct {
	mu     sync.Mutex
	paired bool
	code   roomcode.Code
}

func (r *fakeRoom) Paired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paired
}

func (r *fakeRoom) Code() roomcode.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}
