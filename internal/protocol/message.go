// Package protocol defines the wire envelopes exchanged with the room
// relay. Every message is a JSON object with a single "type"
// discriminator; optional fields are omitted when empty.
package protocol

import "github.com/pion/webrtc/v4"

// Message type constants.
const (
	// Inbound only.
	KindJoined       = "joined"
	KindUsersUpdate  = "users_update"
	KindVideoChanged = "video_changed"
	KindKicked       = "kicked"

	// Both directions.
	KindChat  = "chat"
	KindPlay  = "play"
	KindPause = "pause"
	KindSeek  = "seek"

	KindVoiceOffer     = "voice-offer"
	KindVoiceAnswer    = "voice-answer"
	KindVoiceCandidate = "voice-candidate"

	// Outbound only.
	KindChangeVideo    = "change_video"
	KindSetPermissions = "set_permissions"
	KindKick           = "kick"
)

// Participant roles.
const (
	RoleAdmin = "admin"
	RoleGuest = "guest"
)

// Permissions a participant holds inside a room.
type Permissions struct {
	ControlVideo bool `json:"control_video"`
	ChangeVideo  bool `json:"change_video"`
	Kick         bool `json:"kick"`
}

// Participant is one roster entry. The relay owns the authoritative
// roster; clients only ever replace their copy wholesale.
type Participant struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Role        string      `json:"role"`
	Permissions Permissions `json:"permissions"`
}

// Envelope represents all relay messages in both directions.
type Envelope struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Playback position in seconds for play/pause/seek.
	Timestamp float64 `json:"timestamp,omitempty"`

	Users    []Participant `json:"users,omitempty"`
	VideoURL string        `json:"video_url,omitempty"`
	Message  string        `json:"message,omitempty"`

	Permissions *Permissions `json:"permissions,omitempty"`

	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}
