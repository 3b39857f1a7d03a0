package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/media"
)

// Messages the View feeds into the console.
type (
	pairedMsg   struct{ peer string }
	peerLeftMsg struct{}
	roomFailMsg struct{ err error }
	callMsg     struct {
		kind  media.Kind
		local []string
	}
	remoteMsg struct {
		kind   media.Kind
		remote []string
	}
	surfaceGoneMsg struct{}
	alertMsg       struct{ err error }
)

// View is the call surface seen by the controller and the room session. It
// queues updates for the console, so callers never wait on rendering.
type View struct {
	updates chan tea.Msg
	done    chan struct{}
	once    sync.Once
}

// NewView creates a View. Updates sent before the console starts are kept.
func NewView() *View {
	return &View{
		updates: make(chan tea.Msg, 64),
		done:    make(chan struct{}),
	}
}

func (v *View) send(msg tea.Msg) {
	select {
	case v.updates <- msg:
	case <-v.done:
	}
}

// Close drops any further updates.
func (v *View) Close() {
	v.once.Do(func() { close(v.done) })
}

func (v *View) ShowCall(kind media.Kind, local []media.Track) {
	ids := make([]string, len(local))
	for i, t := range local {
		ids[i] = t.ID()
	}
	v.send(callMsg{kind: kind, local: ids})
}

func (v *View) ShowRemote(kind media.Kind, remote []call.RemoteTrack) {
	ids := make([]string, len(remote))
	for i, t := range remote {
		ids[i] = t.Kind.String() + ":" + t.ID
	}
	v.send(remoteMsg{kind: kind, remote: ids})
}

func (v *View) RemoveCallSurface() { v.send(surfaceGoneMsg{}) }

func (v *View) Alert(err error) {
	if err != nil {
		v.send(alertMsg{err: err})
	}
}

func (v *View) Paired(peer string) { v.send(pairedMsg{peer: peer}) }

func (v *View) PeerLeft() { v.send(peerLeftMsg{}) }

func (v *View) RoomFailed(err error) { v.send(roomFailMsg{err: err}) }

var _ call.UI = (*View)(nil)
