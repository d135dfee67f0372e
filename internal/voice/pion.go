package voice

import (
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Sqott47/cinemate/internal/config"
)

// RTCConfiguration builds the pion configuration from the app config.
func RTCConfiguration(cfg *config.Config) webrtc.Configuration {
	servers := []webrtc.ICEServer{{URLs: cfg.STUNServers()}}
	if turn := cfg.TURNServers(); len(turn) > 0 {
		user, pass := cfg.TURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// NewPionFactory returns a ConnFactory producing real peer
// connections.
func NewPionFactory(rtcCfg webrtc.Configuration, logger zerolog.Logger) ConnFactory {
	logger = logger.With().Str("component", "webrtc").Logger()
	return func(remoteID string) (Conn, error) {
		pc, err := webrtc.NewPeerConnection(rtcCfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		return newPionConn(pc, remoteID, logger), nil
	}
}

// pionConn adapts *webrtc.PeerConnection to the Conn interface the
// mesh manager negotiates against.
type pionConn struct {
	logger   zerolog.Logger
	remoteID string
	pc       *webrtc.PeerConnection

	mu          sync.Mutex
	sender      *webrtc.RTPSender
	onCandidate func(webrtc.ICECandidateInit)
	onRemote    func(bool)
	onConnected func()
}

func newPionConn(pc *webrtc.PeerConnection, remoteID string, logger zerolog.Logger) *pionConn {
	c := &pionConn{
		logger:   logger.With().Str("peer", remoteID).Logger(),
		remoteID: remoteID,
		pc:       pc,
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onCandidate
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		c.logger.Debug().Str("ice_state", state.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug().Str("peer_state", state.String()).Msg("peer state")
		if state == webrtc.PeerConnectionStateConnected {
			c.mu.Lock()
			fn := c.onConnected
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		c.mu.Lock()
		fn := c.onRemote
		c.mu.Unlock()
		if fn == nil {
			return
		}

		fn(true)
		// Drain inbound RTP so the stream-gone edge can be reported.
		// Playout of the audio belongs to the presentation layer.
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					if err != io.EOF {
						c.logger.Debug().Err(err).Msg("remote track ended")
					}
					fn(false)
					return
				}
			}
		}()
	})

	return c
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sdp)
}

func (c *pionConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sdp)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) AttachAudio(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}
	c.mu.Lock()
	c.sender = sender
	c.mu.Unlock()
	return nil
}

func (c *pionConn) DetachAudio() error {
	c.mu.Lock()
	sender := c.sender
	c.sender = nil
	c.mu.Unlock()

	if sender == nil {
		return nil
	}
	if err := c.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("remove local track: %w", err)
	}
	return nil
}

func (c *pionConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *pionConn) OnRemoteAudio(fn func(bool)) {
	c.mu.Lock()
	c.onRemote = fn
	c.mu.Unlock()
}

func (c *pionConn) OnConnected(fn func()) {
	c.mu.Lock()
	c.onConnected = fn
	c.mu.Unlock()
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}
