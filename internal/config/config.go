package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/netutil"
	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Default configuration values (production)
const (
	DefaultDomain    = "warpcall.qzz.io"
	DefaultTURN      = "" // Optional, empty by default
	DefaultCodec     = "json"
	DefaultUsername  = "Guest"
	DefaultRelayAddr = ":8080"
)

// DefaultSTUNServers are used when no STUN server is configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config holds application configuration
type Config struct {
	// Domain is the backend server domain
	Domain string

	// WebSocketURL is constructed from domain unless set explicitly
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// Codec names the signaling wire encoding
	Codec string

	// Username is the display name sent to the other party
	Username string

	// Zero timeouts wait forever
	JoinTimeout   time.Duration
	AnswerTimeout time.Duration

	// RelayAddr is the listen address of `warpcall serve`
	RelayAddr string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain        string
	ServerURL     string
	STUNServers   []string
	TURNServer    string
	TURNUser      string
	TURNPass      string
	ForceRelay    bool
	Codec         string
	Username      string
	JoinTimeout   time.Duration
	AnswerTimeout time.Duration
	RelayAddr     string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)

	// Construct WebSocket URL unless one is given
	wsURL := pick(opts.ServerURL, "SERVER_URL", fmt.Sprintf("wss://%s/ws", domain))
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", wsURL, err)
	}

	stun := opts.STUNServers
	if len(stun) == 0 {
		stun = splitList(os.Getenv("STUN_SERVERS"))
	}
	if len(stun) == 0 {
		stun = DefaultSTUNServers
	}

	codec := strings.ToLower(pick(opts.Codec, "SIGNAL_CODEC", DefaultCodec))
	if _, err := signaling.CodecByName(codec); err != nil {
		return nil, err
	}

	joinTimeout, err := pickDuration(opts.JoinTimeout, "JOIN_TIMEOUT")
	if err != nil {
		return nil, err
	}
	answerTimeout, err := pickDuration(opts.AnswerTimeout, "ANSWER_TIMEOUT")
	if err != nil {
		return nil, err
	}

	return &Config{
		Domain:        domain,
		WebSocketURL:  wsURL,
		STUNServers:   stun,
		TURNServer:    pick(opts.TURNServer, "TURN_SERVER", DefaultTURN),
		TURNUser:      pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:      pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:    opts.ForceRelay,
		Codec:         codec,
		Username:      pick(opts.Username, "CALL_USERNAME", defaultUsername()),
		JoinTimeout:   joinTimeout,
		AnswerTimeout: answerTimeout,
		RelayAddr:     pick(opts.RelayAddr, "RELAY_ADDR", DefaultRelayAddr),
	}, nil
}

// GetRoomLink returns the webapp URL that opens the join flow for code
func (c *Config) GetRoomLink(code roomcode.Code) string {
	return fmt.Sprintf("https://%s/?room=%s", c.Domain, url.QueryEscape(code.String()))
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return append([]string(nil), c.STUNServers...)
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", strings.TrimPrefix(c.TURNServer, "turn:")),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ICE returns the peer connection servers. Relay mode is forced by the flag
// or when the host looks like it sits behind a VPN or CGNAT.
func (c *Config) ICE() call.ICEConfig {
	user, pass := c.GetTURNCredentials()
	return call.ICEConfig{
		STUNServers:  c.GetSTUNServers(),
		TURNServers:  c.GetTURNServers(),
		TURNUsername: user,
		TURNPassword: pass,
		ForceRelay:   c.ForceRelay || netutil.ShouldForceRelay(),
	}
}

// SignalCodec returns the configured wire codec.
func (c *Config) SignalCodec() signaling.Codec {
	codec, err := signaling.CodecByName(c.Codec)
	if err != nil {
		return signaling.JSON
	}
	return codec
}

func pick(flag, env, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

func pickDuration(flag time.Duration, env string) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", env, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return DefaultUsername
}
