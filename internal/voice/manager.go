package voice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Sqott47/cinemate/internal/protocol"
)

// Signaler sends envelopes on the event channel. Satisfied by
// *relay.Client.
type Signaler interface {
	Send(env *protocol.Envelope)
}

// StreamFunc is notified when inbound audio for a participant becomes
// available or goes away. It must not call back into the Manager.
type StreamFunc func(remoteID string, available bool)

// Manager owns every peer link. Links come and go with roster
// membership and the local voice toggle; the manager never relays
// media, only negotiates it.
type Manager struct {
	logger    zerolog.Logger
	signaler  Signaler
	newConn   ConnFactory
	newSource SourceFactory
	onStream  StreamFunc

	mu      sync.Mutex
	links   map[string]*PeerLink
	source  Source
	enabled bool
	localID string
}

// NewManager wires a mesh manager. onStream may be nil.
func NewManager(signaler Signaler, newConn ConnFactory, newSource SourceFactory, onStream StreamFunc, logger zerolog.Logger) *Manager {
	if onStream == nil {
		onStream = func(string, bool) {}
	}
	return &Manager{
		logger:    logger.With().Str("component", "voice").Logger(),
		signaler:  signaler,
		newConn:   newConn,
		newSource: newSource,
		onStream:  onStream,
		links:     make(map[string]*PeerLink),
	}
}

// Enabled reports whether local voice is on.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Level returns the local audio activity level, 0 while voice is off.
func (m *Manager) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source == nil {
		return 0
	}
	return m.source.Level()
}

// Links returns a snapshot of the current links, for display.
func (m *Manager) Links() []*PeerLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PeerLink, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

// Enable turns local voice on: the audio source is acquired once and
// shared across all links, then an offer goes out to every peer this
// side is the designated initiator for. The initiator is the side
// whose id sorts lexicographically first; ids are opaque strings, so
// they are compared as strings, never parsed as numbers.
func (m *Manager) Enable(localID string, peers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled {
		return nil
	}
	if localID == "" {
		return errors.New("no local participant id")
	}

	source, err := m.newSource()
	if err != nil {
		return fmt.Errorf("acquire audio source: %w", err)
	}
	m.source = source
	m.enabled = true
	m.localID = localID

	for _, peer := range peers {
		if peer == localID || localID > peer {
			continue
		}
		if _, exists := m.links[peer]; exists {
			continue
		}
		m.openInitiatorLocked(peer)
	}
	return nil
}

// Disable turns local voice off: the source is released and local
// audio detaches from every link. Links that still carry inbound audio
// from peers stay open until those peers leave or hang up themselves.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.enabled = false

	if m.source != nil {
		if err := m.source.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("closing audio source")
		}
		m.source = nil
	}

	for _, link := range m.links {
		if !link.audioAttached {
			continue
		}
		if err := link.conn.DetachAudio(); err != nil {
			m.logger.Debug().Err(err).Str("peer", link.remoteID).Msg("detaching local audio")
		}
		link.audioAttached = false
	}
}

// Reconcile aligns the links with a new roster. Links to departed
// participants close regardless of the voice toggle; new offers only
// go out while voice is on, again following the initiator tie-break.
func (m *Manager) Reconcile(localID string, present []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if localID != "" {
		m.localID = localID
	}

	known := make(map[string]struct{}, len(present))
	for _, id := range present {
		known[id] = struct{}{}
	}

	for id, link := range m.links {
		if _, ok := known[id]; !ok {
			m.closeLinkLocked(link)
		}
	}

	if !m.enabled {
		return
	}
	for _, peer := range present {
		if peer == m.localID || m.localID > peer {
			continue
		}
		if _, exists := m.links[peer]; exists {
			continue
		}
		m.openInitiatorLocked(peer)
	}
}

// HandleOffer answers an incoming offer. The offer is accepted even
// while local voice is off; the link then carries receive-only audio
// until voice is enabled here.
func (m *Manager) HandleOffer(from string, offer webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[from]
	if !ok {
		conn, err := m.newConn(from)
		if err != nil {
			m.logger.Warn().Err(err).Str("peer", from).Msg("creating responder connection")
			return
		}
		link = &PeerLink{remoteID: from, role: RoleResponder, state: StateIdle, conn: conn}
		m.links[from] = link
		m.wireConnLocked(link)
	} else if link.role == RoleInitiator && link.state == StateOfferSent {
		// The tie-break makes this unreachable with well-behaved
		// peers; answering would wreck our own pending offer.
		m.logger.Debug().Str("peer", from).Msg("ignoring offer for link we initiated")
		return
	}

	if m.enabled && m.source != nil && !link.audioAttached {
		m.attachAudioLocked(link)
	}

	if err := link.conn.SetRemoteDescription(offer); err != nil {
		m.logger.Warn().Err(err).Str("peer", from).Msg("applying remote offer")
		return
	}
	link.state = StateOfferReceived

	answer, err := link.conn.CreateAnswer()
	if err != nil {
		m.logger.Warn().Err(err).Str("peer", from).Msg("creating answer")
		return
	}
	if err := link.conn.SetLocalDescription(answer); err != nil {
		m.logger.Warn().Err(err).Str("peer", from).Msg("applying local answer")
		return
	}
	link.state = StateAnswerSent

	m.signaler.Send(&protocol.Envelope{
		Type:     protocol.KindVoiceAnswer,
		UserID:   m.localID,
		TargetID: from,
		Answer:   &answer,
	})
}

// HandleAnswer completes a negotiation this side initiated. Answers
// for unknown or already-connected links are ignored; receiving the
// same answer twice is a no-op, not an error.
func (m *Manager) HandleAnswer(from string, answer webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[from]
	if !ok || link.state != StateOfferSent {
		m.logger.Debug().Str("peer", from).Msg("ignoring answer for unknown or settled link")
		return
	}

	if err := link.conn.SetRemoteDescription(answer); err != nil {
		m.logger.Warn().Err(err).Str("peer", from).Msg("applying remote answer")
		return
	}
	link.state = StateConnected
	m.logger.Info().Str("peer", from).Msg("voice link connected")
}

// HandleCandidate applies a trickled candidate. Candidates arrive both
// before and after the link is connected and are applied whenever they
// do; null candidates and candidates for unknown links are ignored.
func (m *Manager) HandleCandidate(from string, candidate *webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if candidate == nil {
		return
	}
	link, ok := m.links[from]
	if !ok {
		m.logger.Debug().Str("peer", from).Msg("ignoring candidate for unknown link")
		return
	}
	if err := link.conn.AddICECandidate(*candidate); err != nil {
		m.logger.Debug().Err(err).Str("peer", from).Msg("applying candidate")
	}
}

// Close tears the whole mesh down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, link := range m.links {
		m.closeLinkLocked(link)
	}

	m.enabled = false
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("closing audio source")
		}
		m.source = nil
	}
}

func (m *Manager) openInitiatorLocked(remote string) {
	conn, err := m.newConn(remote)
	if err != nil {
		m.logger.Warn().Err(err).Str("peer", remote).Msg("creating initiator connection")
		return
	}
	link := &PeerLink{remoteID: remote, role: RoleInitiator, state: StateIdle, conn: conn}
	m.links[remote] = link
	m.wireConnLocked(link)

	if m.source != nil {
		m.attachAudioLocked(link)
	}

	offer, err := conn.CreateOffer()
	if err != nil {
		m.logger.Warn().Err(err).Str("peer", remote).Msg("creating offer")
		return
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		m.logger.Warn().Err(err).Str("peer", remote).Msg("applying local offer")
		return
	}
	link.state = StateOfferSent

	m.signaler.Send(&protocol.Envelope{
		Type:     protocol.KindVoiceOffer,
		UserID:   m.localID,
		TargetID: remote,
		Offer:    &offer,
	})
	m.logger.Debug().Str("peer", remote).Msg("offer sent")
}

func (m *Manager) wireConnLocked(link *PeerLink) {
	remote := link.remoteID

	link.conn.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		m.mu.Lock()
		localID := m.localID
		m.mu.Unlock()

		m.signaler.Send(&protocol.Envelope{
			Type:      protocol.KindVoiceCandidate,
			UserID:    localID,
			TargetID:  remote,
			Candidate: &candidate,
		})
	})

	link.conn.OnRemoteAudio(func(up bool) {
		m.mu.Lock()
		// The transport drain reports the track ending after a close
		// has already announced the link down; only real transitions
		// on live links go out.
		if link.state == StateClosed || link.streamUp == up {
			m.mu.Unlock()
			return
		}
		link.streamUp = up
		m.mu.Unlock()
		m.onStream(remote, up)
	})

	link.conn.OnConnected(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// The initiator flips on the answer; the responder has no
		// protocol message left to wait for, so it flips here.
		if link.state == StateAnswerSent {
			link.state = StateConnected
			m.logger.Info().Str("peer", remote).Msg("voice link connected")
		}
	})
}

func (m *Manager) attachAudioLocked(link *PeerLink) {
	if err := link.conn.AttachAudio(m.source.Track()); err != nil {
		m.logger.Warn().Err(err).Str("peer", link.remoteID).Msg("attaching local audio")
		return
	}
	link.audioAttached = true
}

func (m *Manager) closeLinkLocked(link *PeerLink) {
	link.state = StateClosed
	if err := link.conn.Close(); err != nil {
		m.logger.Debug().Err(err).Str("peer", link.remoteID).Msg("closing link")
	}
	delete(m.links, link.remoteID)
	if link.streamUp {
		link.streamUp = false
		m.onStream(link.remoteID, false)
	}
	m.logger.Debug().Str("peer", link.remoteID).Msg("voice link closed")
}
