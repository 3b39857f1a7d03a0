package call

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

func newTestNegotiator(t *testing.T, hooks NegotiatorHooks) (*Negotiator, *fakeFactory, *recorder) {
	t.Helper()
	factory := &fakeFactory{}
	rec := &recorder{}
	n := NewNegotiator(rec, "AB12CD", factory, hooks, nil)
	if err := n.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return n, factory, rec
}

func cand(s string) signaling.Candidate {
	return signaling.Candidate{Candidate: s}
}

func TestNegotiator_CandidatesBeforeOfferAreQueued(t *testing.T) {
	n, factory, rec := newTestNegotiator(t, NegotiatorHooks{})
	pc := factory.last()

	for _, c := range []string{"c1", "c2"} {
		if err := n.HandleRemoteCandidate(cand(c)); err != nil {
			t.Fatalf("HandleRemoteCandidate(%s) before remote description: %v", c, err)
		}
	}
	if got := n.PendingCandidates(); got != 2 {
		t.Fatalf("pending=%d, want 2", got)
	}
	if len(pc.log()) != 0 {
		t.Fatalf("candidates reached the connection early: %v", pc.log())
	}

	offer := signaling.SessionDescription{Type: "offer", SDP: "v=0 remote"}
	if err := n.HandleOffer(offer, "peer-1", nil); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}

	want := []string{"remote:offer", "candidate:c1", "candidate:c2", "local:answer"}
	if got := pc.log(); !reflect.DeepEqual(got, want) {
		t.Fatalf("connection calls=%v, want %v", got, want)
	}
	if n.State() != Connected {
		t.Fatalf("state=%v, want connected", n.State())
	}
	if n.PendingCandidates() != 0 {
		t.Fatalf("queue not drained")
	}

	answers := rec.ofType(signaling.MessageTypeMakeAnswer)
	if len(answers) != 1 || answers[0].To != "peer-1" || answers[0].Answer.Type != "answer" {
		t.Fatalf("make-answer=%+v", answers)
	}
}

func TestNegotiator_CallerFlow(t *testing.T) {
	n, factory, rec := newTestNegotiator(t, NegotiatorHooks{})
	pc := factory.last()
	mic := &fakeTrack{id: "audio", kind: webrtc.RTPCodecTypeAudio}

	if err := n.MakeOffer([]media.Track{mic}); err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}
	if n.State() != AwaitingAnswer {
		t.Fatalf("state=%v, want awaiting-answer", n.State())
	}
	offers := rec.ofType(signaling.MessageTypeCallUser)
	if len(offers) != 1 || offers[0].To != "AB12CD" || offers[0].Offer.SDP != "v=0 offer" {
		t.Fatalf("call-user=%+v", offers)
	}

	if err := n.MakeOffer(nil); !errors.Is(err, ErrOfferPending) {
		t.Fatalf("second MakeOffer err=%v, want ErrOfferPending", err)
	}

	if err := n.HandleRemoteCandidate(cand("early")); err != nil {
		t.Fatalf("HandleRemoteCandidate: %v", err)
	}
	if err := n.HandleAnswer(signaling.SessionDescription{Type: "answer", SDP: "v=0 answer"}); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if err := n.HandleRemoteCandidate(cand("late")); err != nil {
		t.Fatalf("HandleRemoteCandidate after answer: %v", err)
	}

	want := []string{"track", "local:offer", "remote:answer", "candidate:early", "candidate:late"}
	if got := pc.log(); !reflect.DeepEqual(got, want) {
		t.Fatalf("connection calls=%v, want %v", got, want)
	}
	if n.State() != Connected {
		t.Fatalf("state=%v, want connected", n.State())
	}
}

func TestNegotiator_StrayAnswerIsIgnored(t *testing.T) {
	n, factory, _ := newTestNegotiator(t, NegotiatorHooks{})
	answer := signaling.SessionDescription{Type: "answer", SDP: "v=0 answer"}

	if err := n.HandleAnswer(answer); !errors.Is(err, ErrStraySignal) {
		t.Fatalf("HandleAnswer in idle err=%v, want ErrStraySignal", err)
	}
	if n.State() != Idle {
		t.Fatalf("state=%v, want idle", n.State())
	}
	if len(factory.last().log()) != 0 {
		t.Fatalf("stray answer touched the connection")
	}

	if err := n.MakeOffer(nil); err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}
	if err := n.HandleAnswer(answer); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if err := n.HandleAnswer(answer); !errors.Is(err, ErrStraySignal) {
		t.Fatalf("duplicate answer err=%v, want ErrStraySignal", err)
	}
	if n.State() != Connected {
		t.Fatalf("state=%v after duplicate answer", n.State())
	}
}

func TestNegotiator_OfferWhileAwaitingAnswerIsStray(t *testing.T) {
	n, _, rec := newTestNegotiator(t, NegotiatorHooks{})
	if err := n.MakeOffer(nil); err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}
	err := n.HandleOffer(signaling.SessionDescription{Type: "offer", SDP: "v=0"}, "peer-1", nil)
	if !errors.Is(err, ErrStraySignal) {
		t.Fatalf("HandleOffer err=%v, want ErrStraySignal", err)
	}
	if len(rec.ofType(signaling.MessageTypeMakeAnswer)) != 0 {
		t.Fatalf("answered a stray offer")
	}
}

func TestNegotiator_CalleeMayCallBack(t *testing.T) {
	n, _, rec := newTestNegotiator(t, NegotiatorHooks{})
	if err := n.HandleOffer(signaling.SessionDescription{Type: "offer", SDP: "v=0"}, "peer-1", nil); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if err := n.MakeOffer([]media.Track{&fakeTrack{id: "audio", kind: webrtc.RTPCodecTypeAudio}}); err != nil {
		t.Fatalf("MakeOffer from connected: %v", err)
	}
	if n.State() != AwaitingAnswer || len(rec.ofType(signaling.MessageTypeCallUser)) != 1 {
		t.Fatalf("state=%v offers=%d", n.State(), len(rec.ofType(signaling.MessageTypeCallUser)))
	}
}

func TestNegotiator_Teardown(t *testing.T) {
	var never Negotiator
	never.Teardown()

	uninit := NewNegotiator(&recorder{}, "AB12CD", &fakeFactory{}, NegotiatorHooks{}, nil)
	uninit.Teardown()
	if uninit.State() != Idle {
		t.Fatalf("teardown before Initialize changed state to %v", uninit.State())
	}

	n, factory, rec := newTestNegotiator(t, NegotiatorHooks{})
	pc := factory.last()
	mic := &fakeTrack{id: "audio", kind: webrtc.RTPCodecTypeAudio}
	if err := n.MakeOffer([]media.Track{mic}); err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}

	n.Teardown()
	n.Teardown()

	if n.State() != Ended {
		t.Fatalf("state=%v, want ended", n.State())
	}
	if !mic.Stopped() {
		t.Fatalf("local track still live")
	}
	if got := pc.closeCount(); got != 1 {
		t.Fatalf("Close called %d times, want 1", got)
	}
	if err := n.HandleRemoteCandidate(cand("late")); !errors.Is(err, ErrStraySignal) {
		t.Fatalf("candidate after teardown err=%v, want ErrStraySignal", err)
	}

	before := len(rec.ofType(signaling.MessageTypeICECandidate))
	n.onLocalCandidate(&webrtc.ICECandidate{})
	if after := len(rec.ofType(signaling.MessageTypeICECandidate)); after != before {
		t.Fatalf("sent a local candidate after teardown")
	}
	if err := n.Initialize(); !errors.Is(err, ErrEnded) {
		t.Fatalf("Initialize after teardown err=%v, want ErrEnded", err)
	}
}

func TestNegotiator_LocalCandidatesAreSent(t *testing.T) {
	n, _, rec := newTestNegotiator(t, NegotiatorHooks{})

	n.onLocalCandidate(nil)
	if len(rec.ofType(signaling.MessageTypeICECandidate)) != 0 {
		t.Fatalf("end-of-candidates marker was sent")
	}

	n.onLocalCandidate(&webrtc.ICECandidate{
		Foundation: "1",
		Priority:   2130706431,
		Address:    "192.0.2.10",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       5000,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	})
	sent := rec.ofType(signaling.MessageTypeICECandidate)
	if len(sent) != 1 || sent[0].To != "AB12CD" || sent[0].Candidate == nil {
		t.Fatalf("ice-candidate=%+v", sent)
	}
}

func TestNegotiator_ClassifiesRemoteStream(t *testing.T) {
	var kinds []media.Kind
	n, _, _ := newTestNegotiator(t, NegotiatorHooks{
		OnRemoteTracks: func(kind media.Kind, _ []RemoteTrack) { kinds = append(kinds, kind) },
	})

	n.HandleTrack(RemoteTrack{ID: "a", Kind: webrtc.RTPCodecTypeAudio})
	n.HandleTrack(RemoteTrack{ID: "v", Kind: webrtc.RTPCodecTypeVideo})

	want := []media.Kind{media.Audio, media.Video}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("classifications=%v, want %v", kinds, want)
	}
	if got := len(n.RemoteTracks()); got != 2 {
		t.Fatalf("remote tracks=%d, want 2", got)
	}
}

const freshOffer = "v=0\r\n" +
	"o=- 1 1 IN IP4 0.0.0.0\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=ice-ufrag:fresh\r\n" +
	"a=ice-pwd:secret\r\n"

func candFrom(s, ufrag string) signaling.Candidate {
	return signaling.Candidate{Candidate: s, UsernameFragment: &ufrag}
}

func TestRemoteUfrags(t *testing.T) {
	if got := remoteUfrags(freshOffer); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Fatalf("remoteUfrags=%v, want [fresh]", got)
	}
	if got := remoteUfrags("not sdp"); got != nil {
		t.Fatalf("remoteUfrags of garbage=%v, want nil", got)
	}
}

func TestNegotiator_DropsCandidatesOfEarlierCall(t *testing.T) {
	n, factory, _ := newTestNegotiator(t, NegotiatorHooks{})
	pc := factory.last()

	for _, c := range []signaling.Candidate{candFrom("c-old", "stale"), candFrom("c-new", "fresh"), cand("c-bare")} {
		if err := n.HandleRemoteCandidate(c); err != nil {
			t.Fatalf("HandleRemoteCandidate(%s): %v", c.Candidate, err)
		}
	}

	if err := n.HandleOffer(signaling.SessionDescription{Type: "offer", SDP: freshOffer}, "peer-1", nil); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	want := []string{"remote:offer", "candidate:c-new", "candidate:c-bare", "local:answer"}
	if got := pc.log(); !reflect.DeepEqual(got, want) {
		t.Fatalf("connection calls=%v, want %v", got, want)
	}

	if err := n.HandleRemoteCandidate(candFrom("c-late", "stale")); !errors.Is(err, ErrStraySignal) {
		t.Fatalf("late candidate of earlier call err=%v, want ErrStraySignal", err)
	}
	if err := n.HandleRemoteCandidate(candFrom("c-next", "fresh")); err != nil {
		t.Fatalf("HandleRemoteCandidate: %v", err)
	}
}

func TestNegotiator_FailedAnswerEndsNegotiation(t *testing.T) {
	n, factory, rec := newTestNegotiator(t, NegotiatorHooks{})
	pc := factory.last()
	pc.failAnswer = errors.New("codec mismatch")
	mic := &fakeTrack{id: "audio", kind: webrtc.RTPCodecTypeAudio}

	if err := n.HandleRemoteCandidate(cand("early")); err != nil {
		t.Fatalf("HandleRemoteCandidate: %v", err)
	}
	err := n.HandleOffer(signaling.SessionDescription{Type: "offer", SDP: "v=0"}, "peer-1", []media.Track{mic})
	if err == nil {
		t.Fatalf("HandleOffer succeeded with a failing answer")
	}

	if n.State() != Ended || n.Initialized() {
		t.Fatalf("state=%v initialized=%v, want ended", n.State(), n.Initialized())
	}
	if len(n.LocalTracks()) != 0 || n.PendingCandidates() != 0 {
		t.Fatalf("local=%d pending=%d kept after failure", len(n.LocalTracks()), n.PendingCandidates())
	}
	if len(rec.ofType(signaling.MessageTypeMakeAnswer)) != 0 {
		t.Fatalf("answer sent after failure")
	}
	if err := n.MakeOffer(nil); !errors.Is(err, ErrEnded) {
		t.Fatalf("MakeOffer after failed answer err=%v, want ErrEnded", err)
	}

	n.Teardown()
	if got := pc.closeCount(); got != 1 {
		t.Fatalf("Close called %d times, want 1", got)
	}
	if mic.Stopped() {
		t.Fatalf("negotiator stopped a track it no longer owns")
	}
}
