// Package voice maintains the full-mesh voice overlay: one
// bidirectional audio link per remote participant, negotiated over the
// relay's event channel. Only signaling traverses the relay; media
// flows peer to peer.
package voice

import "github.com/pion/webrtc/v4"

// LinkState is the lifecycle of one peer link.
type LinkState int

const (
	StateIdle LinkState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	// StateConnected is not terminal: trickled candidates keep being
	// applied while connected.
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer_sent"
	case StateOfferReceived:
		return "offer_received"
	case StateAnswerSent:
		return "answer_sent"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role says which side of the pair ran the negotiation.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Conn is the slice of a peer connection the mesh manager needs.
// Implemented for real traffic by the pion adapter and by fakes in
// tests.
type Conn interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	AttachAudio(track webrtc.TrackLocal) error
	DetachAudio() error

	// OnICECandidate registers the trickle callback; the adapter only
	// surfaces non-nil candidates.
	OnICECandidate(fn func(candidate webrtc.ICECandidateInit))
	// OnRemoteAudio fires with true when inbound audio appears and
	// false when it goes away.
	OnRemoteAudio(fn func(up bool))
	// OnConnected fires once transport-level connectivity is reached.
	OnConnected(fn func())

	Close() error
}

// ConnFactory builds a connection for a remote participant.
type ConnFactory func(remoteID string) (Conn, error)

// PeerLink is the mesh's record of one remote participant. At most one
// link exists per remote id; the lexicographic initiator tie-break
// keeps both sides from creating one for the same pair.
type PeerLink struct {
	remoteID      string
	role          Role
	state         LinkState
	conn          Conn
	audioAttached bool
	streamUp      bool
}

// RemoteID returns the link's remote participant id.
func (l *PeerLink) RemoteID() string { return l.remoteID }

// Role returns which side initiated the link.
func (l *PeerLink) Role() Role { return l.role }

// State returns the link's lifecycle state.
func (l *PeerLink) State() LinkState { return l.state }
