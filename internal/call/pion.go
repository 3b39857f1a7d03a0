package call

import (
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/logging"
)

// ICEConfig selects the STUN and TURN servers a call may use.
type ICEConfig struct {
	STUNServers  []string
	TURNServers  []string
	TURNUsername string
	TURNPassword string

	// ForceRelay restricts candidates to TURN relays. It has no effect
	// without TURN servers.
	ForceRelay bool
}

// Servers returns the configuration as pion ICE servers.
func (c ICEConfig) Servers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUsername,
			Credential: c.TURNPassword,
		})
	}
	return servers
}

// Policy returns the ICE transport policy for the configuration.
func (c ICEConfig) Policy() webrtc.ICETransportPolicy {
	if c.ForceRelay && len(c.TURNServers) > 0 {
		return webrtc.ICETransportPolicyRelay
	}
	return webrtc.ICETransportPolicyAll
}

// PionFactory creates pion peer connections that share one API instance.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewPionFactory builds a pion API with the default codecs and interceptors
// and routes pion's internal logging to log.
func NewPionFactory(cfg ICEConfig, log *slog.Logger) (*PionFactory, error) {
	if log == nil {
		log = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, NewError("register interceptors", err)
	}

	s := webrtc.SettingEngine{}
	s.LoggerFactory = logging.NewPionFactory(log)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(s),
	)

	return &PionFactory{
		api: api,
		config: webrtc.Configuration{
			ICEServers:         cfg.Servers(),
			ICETransportPolicy: cfg.Policy(),
		},
	}, nil
}

// NewPeerConnection implements Factory.
func (f *PionFactory) NewPeerConnection() (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	return pc, nil
}
