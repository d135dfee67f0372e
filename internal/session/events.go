package session

import "github.com/Sqott47/cinemate/internal/protocol"

// Event is the sum type the session surfaces to its consumer (the
// room console or any other presentation layer).
type Event any

// RosterUpdated carries the new participant set after a users_update.
type RosterUpdated struct {
	Users []protocol.Participant
}

// ChatReceived is a chat line from the room.
type ChatReceived struct {
	UserID   string
	Username string
	Message  string
}

// VideoChanged announces that the room switched to a new video URL.
type VideoChanged struct {
	URL string
}

// PlaybackApplied reports a remotely originated playback command that
// has been applied to the local player.
type PlaybackApplied struct {
	Kind     string
	UserID   string
	Position float64
}

// Kicked signals that the local participant was removed from the room.
// The session is terminal after this event.
type Kicked struct{}

// ChannelClosed signals that the event channel ended. When it arrives
// without a preceding Kicked it is an anomaly, not an error the
// session recovers from.
type ChannelClosed struct{}

// VoiceStream reports inbound audio for a participant becoming
// available or going away.
type VoiceStream struct {
	UserID    string
	Available bool
}
