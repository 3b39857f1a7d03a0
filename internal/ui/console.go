package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/media"
)

const (
	statusInterval = 250 * time.Millisecond
	maxAlerts      = 3
)

// Calls is the part of the call controller the console drives.
type Calls interface {
	StartCall(ctx context.Context, kind media.Kind) error
	EndCall()
	Snapshot() (call.CallSession, call.State, bool)
}

type keyMap struct {
	Video key.Binding
	Audio key.Binding
	End   key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Video, k.Audio, k.End, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Video: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "video call")),
	Audio: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "audio call")),
	End:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "end call")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type (
	actionMsg struct{ err error }
	statusMsg struct {
		state  call.State
		active bool
		since  time.Time
	}
)

// ConsoleOptions describe the room the console is attached to.
type ConsoleOptions struct {
	RoomCode string
	RoomLink string
	Peer     string

	// AutoCall places a call of this kind on the first pairing update.
	AutoCall *media.Kind
}

// Console is the bubbletea model of a call room.
type Console struct {
	ctx   context.Context
	calls Calls
	view  *View
	keys  keyMap

	code     string
	link     string
	peer     string
	autoCall *media.Kind

	inCall    bool
	kind      media.Kind
	local     []string
	remote    []string
	state     call.State
	startedAt time.Time
	alerts    []string
	closed    bool

	spinner spinner.Model
	help    help.Model
}

// NewConsole builds the console. Actions run with ctx.
func NewConsole(ctx context.Context, calls Calls, view *View, opts ConsoleOptions) *Console {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &Console{
		ctx:      ctx,
		calls:    calls,
		view:     view,
		keys:     defaultKeys,
		code:     opts.RoomCode,
		link:     opts.RoomLink,
		peer:     opts.Peer,
		autoCall: opts.AutoCall,
		spinner:  s,
		help:     help.New(),
	}
}

func (m *Console) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), m.pollStatus())
}

func (m *Console) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.view.updates:
			return msg
		case <-m.view.done:
			return nil
		}
	}
}

func (m *Console) pollStatus() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg {
		session, state, ok := m.calls.Snapshot()
		return statusMsg{state: state, active: ok, since: session.StartedAt}
	})
}

func (m *Console) startCall(kind media.Kind) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{err: m.calls.StartCall(m.ctx, kind)}
	}
}

func (m *Console) endCall() tea.Msg {
	m.calls.EndCall()
	return actionMsg{}
}

// takeAutoCall returns the pending automatic call, at most once.
func (m *Console) takeAutoCall() tea.Cmd {
	if m.autoCall == nil {
		return nil
	}
	kind := *m.autoCall
	m.autoCall = nil
	return m.startCall(kind)
}

func (m *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.closed = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Video):
			return m, m.startCall(media.Video)
		case key.Matches(msg, m.keys.Audio):
			return m, m.startCall(media.Audio)
		case key.Matches(msg, m.keys.End):
			return m, m.endCall
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.state = msg.state
		if msg.active {
			m.startedAt = msg.since
		}
		return m, m.pollStatus()

	case actionMsg:
		if msg.err != nil {
			m.pushAlert(msg.err)
		}
		return m, nil
	}

	if m.apply(msg) {
		return m, tea.Batch(m.listen(), m.afterUpdate(msg))
	}
	return m, nil
}

// apply folds a View update into the model. It reports whether msg was one.
func (m *Console) apply(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case pairedMsg:
		m.peer = msg.peer
		m.pushNote(fmt.Sprintf("%s paired with %s", IconPeer, msg.peer))
	case peerLeftMsg:
		m.pushNote(fmt.Sprintf("%s %s left the room", IconWarning, m.peerOrDefault()))
		m.peer = ""
		m.clearCall()
	case roomFailMsg:
		m.pushAlert(msg.err)
	case callMsg:
		m.inCall = true
		m.kind = msg.kind
		m.local = msg.local
	case remoteMsg:
		m.inCall = true
		m.remote = msg.remote
		if msg.kind == media.Video {
			m.kind = media.Video
		}
	case surfaceGoneMsg:
		m.clearCall()
	case alertMsg:
		m.pushAlert(msg.err)
	default:
		return false
	}
	return true
}

func (m *Console) afterUpdate(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(pairedMsg); ok {
		return m.takeAutoCall()
	}
	return nil
}

func (m *Console) clearCall() {
	m.inCall = false
	m.local = nil
	m.remote = nil
	m.startedAt = time.Time{}
}

func (m *Console) pushAlert(err error) {
	m.pushNote(fmt.Sprintf("%s %s", IconError, err))
}

func (m *Console) pushNote(note string) {
	m.alerts = append(m.alerts, note)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
}

func (m *Console) peerOrDefault() string {
	if m.peer == "" {
		return "Peer"
	}
	return m.peer
}

// Closed reports whether the user quit the console.
func (m *Console) Closed() bool {
	return m.closed
}

func (m *Console) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s Warpcall", IconCall)))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(LabelStyle.Render(label) + value + "\n")
	}
	row("Room", BoldStyle.Foreground(Primary).Render(m.code))
	if m.link != "" {
		row("Link", MutedStyle.Render(m.link))
	}
	if m.peer == "" {
		row("Peer", fmt.Sprintf("%s %s", m.spinner.View(), MutedStyle.Render("waiting for someone to join")))
	} else {
		row("Peer", m.peer)
	}

	if m.inCall {
		b.WriteString("\n")
		b.WriteString(CallBoxStyle.Render(m.viewCall()))
		b.WriteString("\n")
	}

	for _, note := range m.alerts {
		b.WriteString("\n" + note)
	}
	if len(m.alerts) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(FooterStyle.Render(m.help.View(m.keys)))
	return ContainerStyle.Render(b.String())
}

func (m *Console) viewCall() string {
	icon := IconAudio
	if m.kind == media.Video {
		icon = IconVideo
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s call  %s", icon, m.kind, StatusStyle.Render(m.state.String()))
	if !m.startedAt.IsZero() {
		fmt.Fprintf(&b, "  %s %s", IconTime, FormatDuration(time.Since(m.startedAt)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "local:  %s\n", tracksOrNone(m.local))
	if len(m.remote) == 0 && m.state != call.Connected {
		fmt.Fprintf(&b, "remote: %s ringing", m.spinner.View())
	} else {
		fmt.Fprintf(&b, "remote: %s", tracksOrNone(m.remote))
	}
	return b.String()
}

func tracksOrNone(ids []string) string {
	if len(ids) == 0 {
		return MutedStyle.Render("none")
	}
	return strings.Join(ids, ", ")
}

// FormatDuration formats a call length for humans.
func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
