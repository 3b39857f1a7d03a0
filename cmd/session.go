package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/netutil"
	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

const connectTimeout = 15 * time.Second

// callFlags are the flags shared by create and join.
type callFlags struct {
	server        string
	domain        string
	stun          []string
	turn          string
	turnUser      string
	turnPass      string
	relay         bool
	codec         string
	name          string
	call          string
	joinTimeout   time.Duration
	answerTimeout time.Duration
	noCamera      bool
	noMic         bool
	receiveOnly   bool
	audioFile     string
	videoFile     string
}

func (f *callFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.server, "server", "", "Signaling WebSocket URL (overrides --domain)")
	fl.StringVarP(&f.domain, "domain", "d", "", "Custom domain")
	fl.StringSliceVarP(&f.stun, "stun", "s", nil, "STUN server (repeatable)")
	fl.StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	fl.StringVarP(&f.turnUser, "turn-user", "u", "", "TURN username")
	fl.StringVarP(&f.turnPass, "turn-pass", "p", "", "TURN password")
	fl.BoolVarP(&f.relay, "relay", "r", false, "Force relay mode")
	fl.StringVar(&f.codec, "codec", "", "Signaling codec: json or msgpack")
	fl.StringVarP(&f.name, "name", "n", "", "Name shown to the other party")
	fl.StringVarP(&f.call, "call", "c", "", "Start an audio or video call once paired")
	fl.DurationVar(&f.joinTimeout, "join-timeout", 0, "Give up joining after this long (0 waits forever)")
	fl.DurationVar(&f.answerTimeout, "answer-timeout", 0, "Hang up unanswered calls after this long (0 waits forever)")
	fl.BoolVar(&f.noCamera, "no-camera", false, "Deny camera access")
	fl.BoolVar(&f.noMic, "no-mic", false, "Deny microphone access")
	fl.BoolVar(&f.receiveOnly, "receive-only", false, "Answer incoming calls without sending media")
	fl.StringVar(&f.audioFile, "audio-file", "", "Ogg/Opus file to send as microphone (default silence)")
	fl.StringVar(&f.videoFile, "video-file", "", "IVF/VP8 file to send as camera")
}

func (f *callFlags) options() config.Options {
	return config.Options{
		Domain:        f.domain,
		ServerURL:     f.server,
		STUNServers:   f.stun,
		TURNServer:    f.turn,
		TURNUser:      f.turnUser,
		TURNPass:      f.turnPass,
		ForceRelay:    f.relay,
		Codec:         f.codec,
		Username:      f.name,
		JoinTimeout:   f.joinTimeout,
		AnswerTimeout: f.answerTimeout,
	}
}

// autoCall parses --call. No flag means no automatic call.
func (f *callFlags) autoCall() (*media.Kind, error) {
	if f.call == "" {
		return nil, nil
	}
	kind, err := media.ParseKind(f.call)
	if err != nil {
		return nil, err
	}
	return &kind, nil
}

func (f *callFlags) source(log *slog.Logger) *media.DeviceSource {
	return &media.DeviceSource{
		Permissions: media.Permissions{Microphone: !f.noMic, Camera: !f.noCamera},
		AudioFile:   f.audioFile,
		VideoFile:   f.videoFile,
		Log:         log,
	}
}

// ConnectionContext is one connected side of a call room.
type ConnectionContext struct {
	Client     *signaling.Client
	Router     *signaling.Router
	Room       *room.Session
	Controller *call.Controller
	View       *ui.View
	Config     *config.Config

	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Bool
}

func NewConnectionContext(ctx context.Context, cfg *config.Config, flags *callFlags) (*ConnectionContext, error) {
	log := slog.Default()

	factory, err := call.NewPionFactory(cfg.ICE(), log)
	if err != nil {
		return nil, call.NewError("create peer connection factory", err)
	}

	client := signaling.NewClient(cfg.WebSocketURL,
		signaling.WithCodec(cfg.SignalCodec()),
		signaling.WithResolver(netutil.NewResolver()),
		signaling.WithLogger(log),
	)
	dialCtx, cancelDial := context.WithTimeout(ctx, connectTimeout)
	defer cancelDial()
	if err := client.Connect(dialCtx); err != nil {
		return nil, call.NewError("connect to server", err)
	}

	cc := &ConnectionContext{
		Client: client,
		Router: signaling.NewRouter(log),
		View:   ui.NewView(),
		Config: cfg,
		done:   make(chan struct{}),
	}

	cc.Room = room.New(client,
		room.WithLogger(log),
		room.WithEvents(room.Events{
			OnPaired: func(peer string) {
				if err := cc.Controller.Arm(); err != nil {
					cc.View.Alert(err)
				}
				cc.View.Paired(peer)
			},
			OnFailure: cc.View.RoomFailed,
			OnPeerLeft: func() {
				cc.Controller.Detach()
				cc.View.PeerLeft()
			},
		}),
	)
	cc.Controller = call.NewController(cc.Room, client, flags.source(log), factory, cc.View,
		call.WithAnswerTimeout(cfg.AnswerTimeout),
		call.WithAnswerMedia(!flags.receiveOnly),
		call.WithLogger(log),
	)
	cc.Room.Register(cc.Router)
	cc.Controller.Register(cc.Router)

	runCtx, cancel := context.WithCancel(context.Background())
	cc.cancel = cancel
	go func() {
		defer close(cc.done)
		if err := cc.Router.Run(runCtx, client); err == nil && runCtx.Err() == nil {
			log.Warn("signaling connection closed by the server")
			cc.dropped.Store(true)
			cc.View.Alert(call.NewError("signaling", signaling.ErrClosed))
		}
	}()

	return cc, nil
}

// RunConsole shows the call console until the user quits, then hangs up and
// prints the calls that took place.
func (c *ConnectionContext) RunConsole(ctx context.Context, opts ui.ConsoleOptions) error {
	console := ui.NewConsole(ctx, c.Controller, c.View, opts)
	program := tea.NewProgram(console, tea.WithContext(ctx))
	_, err := program.Run()

	c.View.Close()
	c.Controller.EndCall()

	fmt.Println()
	if c.dropped.Load() {
		ui.PrintWarning("Lost the connection to the signaling server")
	}
	ui.RenderCallSummary(c.Controller.History())

	if err != nil && ctx.Err() == nil {
		return call.NewError("run call console", err)
	}
	return nil
}

func (c *ConnectionContext) Close() {
	if c.Controller != nil {
		c.Controller.Detach()
	}
	if c.Room != nil {
		c.Room.Close()
	}
	if c.View != nil {
		c.View.Close()
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, call.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}
