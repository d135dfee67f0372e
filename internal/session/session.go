// Package session holds the per-room client state machine: the roster
// cache replaced on relay broadcasts, the permission gate, the echo
// suppression gate, and the outbound room operations. It implements
// the relay dispatcher's Handler and drives the voice mesh through a
// narrow interface.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Sqott47/cinemate/internal/protocol"
)

// Errors returned by outbound operations.
var (
	ErrNotPermitted = errors.New("not permitted")
	ErrNotJoined    = errors.New("not joined to a room yet")
	ErrKicked       = errors.New("removed from room")
)

// Channel is the event channel the session sends on. Satisfied by
// *relay.Client.
type Channel interface {
	Send(env *protocol.Envelope)
	IsOpen() bool
	Close()
}

// Player is the local playback controller the session keeps in
// lock-step with the room.
type Player interface {
	Play()
	Pause()
	SeekTo(position float64)
	// Position returns the current playback position, or false when no
	// media is loaded.
	Position() (float64, bool)
}

// Voice is the mesh manager surface the session drives. Satisfied by
// *voice.Manager.
type Voice interface {
	Enable(localID string, peers []string) error
	Disable()
	Enabled() bool
	Reconcile(localID string, present []string)
	HandleOffer(from string, offer webrtc.SessionDescription)
	HandleAnswer(from string, answer webrtc.SessionDescription)
	HandleCandidate(from string, candidate *webrtc.ICECandidateInit)
	Close()
}

const eventBuffer = 64

// Session is the local membership in one room. All inbound protocol
// handling is serialized by the dispatcher goroutine; outbound
// operations may be called from the presentation goroutine, so shared
// state sits behind the mutex.
type Session struct {
	logger zerolog.Logger
	roomID string

	ch     Channel
	player Player
	voice  Voice
	gate   *EchoGate

	mu       sync.Mutex
	roster   *Roster
	localID  string
	kicked   bool
	videoURL string

	events chan Event
}

// New creates a session for a room. The echo window is the grace
// period after applying a remote playback command during which local
// media events are not re-broadcast.
func New(roomID string, ch Channel, player Player, voice Voice, echoWindow time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		logger: logger.With().Str("component", "session").Str("room_id", roomID).Logger(),
		roomID: roomID,
		ch:     ch,
		player: player,
		voice:  voice,
		gate:   NewEchoGate(echoWindow),
		roster: NewRoster(),
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the channel of session events for the presentation
// layer. Events are dropped, not blocked on, when the consumer lags.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug().Msg("dropping session event, consumer lagging")
	}
}

// RoomID returns the joined room's id.
func (s *Session) RoomID() string {
	return s.roomID
}

// LocalID returns the relay-assigned participant id, empty before the
// joined message arrives.
func (s *Session) LocalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// Roster returns the current participant snapshot.
func (s *Session) Roster() []protocol.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Users()
}

// VideoURL returns the room's current video.
func (s *Session) VideoURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoURL
}

// Kicked reports whether the session was terminated by the relay.
func (s *Session) Kicked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kicked
}

func (s *Session) self() (protocol.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localID == "" {
		return protocol.Participant{}, false
	}
	return s.roster.Get(s.localID)
}

// CanControlPlayback evaluates the permission gate for the local
// participant against the current roster snapshot.
func (s *Session) CanControlPlayback() bool {
	p, ok := s.self()
	return ok && CanControlPlayback(p)
}

// CanChangeVideo evaluates the change-video permission.
func (s *Session) CanChangeVideo() bool {
	p, ok := s.self()
	return ok && CanChangeVideo(p)
}

// CanKick evaluates the kick permission.
func (s *Session) CanKick() bool {
	p, ok := s.self()
	return ok && CanKick(p)
}

// --- inbound (relay.Handler) ---

// HandleJoined records the participant id the relay assigned to us.
func (s *Session) HandleJoined(userID string) {
	s.mu.Lock()
	s.localID = userID
	s.mu.Unlock()
	s.logger.Info().Str("user_id", userID).Msg("joined room")
}

// HandleUsersUpdate replaces the roster wholesale and lets the voice
// mesh reconcile against the new membership.
func (s *Session) HandleUsersUpdate(users []protocol.Participant) {
	s.mu.Lock()
	added, removed := s.roster.Replace(users)
	localID := s.localID
	present := s.roster.IDs("")
	s.mu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		s.logger.Debug().
			Strs("added", added).
			Strs("removed", removed).
			Msg("roster changed")
	}

	s.voice.Reconcile(localID, present)
	s.emit(RosterUpdated{Users: users})
}

// HandleVideoChanged records the new video URL.
func (s *Session) HandleVideoChanged(videoURL string) {
	s.mu.Lock()
	s.videoURL = videoURL
	s.mu.Unlock()
	s.emit(VideoChanged{URL: videoURL})
}

// HandleKicked terminates the session: voice and the event channel
// are closed and no reconnection is attempted.
func (s *Session) HandleKicked() {
	s.mu.Lock()
	s.kicked = true
	s.localID = ""
	s.roster.Clear()
	s.mu.Unlock()

	s.logger.Info().Msg("removed from room")
	s.voice.Close()
	s.gate.Cancel()
	s.ch.Close()
	s.emit(Kicked{})
}

// HandleChat surfaces a chat line.
func (s *Session) HandleChat(userID, username, message string) {
	s.emit(ChatReceived{UserID: userID, Username: username, Message: message})
}

// HandlePlay applies a remote play command.
func (s *Session) HandlePlay(userID string, position float64) {
	s.applyRemote(protocol.KindPlay, userID, position)
}

// HandlePause applies a remote pause command.
func (s *Session) HandlePause(userID string, position float64) {
	s.applyRemote(protocol.KindPause, userID, position)
}

// HandleSeek applies a remote seek command.
func (s *Session) HandleSeek(userID string, position float64) {
	s.applyRemote(protocol.KindSeek, userID, position)
}

// applyRemote engages the echo gate, then performs the media
// operation. The gate must be engaged first: the player raises events
// synchronously with the programmatic calls.
func (s *Session) applyRemote(kind, userID string, position float64) {
	s.gate.Engage()

	s.player.SeekTo(position)
	switch kind {
	case protocol.KindPlay:
		s.player.Play()
	case protocol.KindPause:
		s.player.Pause()
	}

	s.emit(PlaybackApplied{Kind: kind, UserID: userID, Position: position})
}

// HandleVoiceOffer hands an offer to the mesh.
func (s *Session) HandleVoiceOffer(from string, offer webrtc.SessionDescription) {
	s.voice.HandleOffer(from, offer)
}

// HandleVoiceAnswer hands an answer to the mesh.
func (s *Session) HandleVoiceAnswer(from string, answer webrtc.SessionDescription) {
	s.voice.HandleAnswer(from, answer)
}

// HandleVoiceCandidate hands a trickled candidate to the mesh.
func (s *Session) HandleVoiceCandidate(from string, candidate *webrtc.ICECandidateInit) {
	s.voice.HandleCandidate(from, candidate)
}

// HandleChannelClosed reacts to the event channel ending. Without a
// preceding kicked message this is an anomaly worth a warning, but
// recovery belongs to whoever supervises the session, not here.
func (s *Session) HandleChannelClosed() {
	s.mu.Lock()
	kicked := s.kicked
	s.mu.Unlock()

	if !kicked {
		s.logger.Warn().Msg("relay channel closed without removal notice")
	}
	s.emit(ChannelClosed{})
}

// --- outbound ---

// MediaEvent is the entry point for play/pause/seek events raised by
// the local media element. The event turns into an outbound command
// only when the channel is open, a playback position is available, the
// echo gate is clear and the relay has assigned us an identity;
// otherwise it is dropped silently. No permission check happens here:
// keeping unauthorized hands off the transport controls is the
// presentation layer's job, and the relay enforces the real boundary.
func (s *Session) MediaEvent(kind string) {
	if !s.ch.IsOpen() {
		return
	}
	position, ok := s.player.Position()
	if !ok {
		return
	}
	if s.gate.Engaged() {
		return
	}
	localID := s.LocalID()
	if localID == "" {
		return
	}

	s.ch.Send(&protocol.Envelope{
		Type:      kind,
		UserID:    localID,
		Timestamp: position,
	})
}

// Play is the user-intent playback operation: it is refused without
// the control permission, otherwise it drives the player and
// broadcasts the command.
func (s *Session) Play() error {
	return s.control(protocol.KindPlay, func() { s.player.Play() })
}

// Pause pauses playback for the room.
func (s *Session) Pause() error {
	return s.control(protocol.KindPause, func() { s.player.Pause() })
}

// Seek jumps the room to a position in seconds.
func (s *Session) Seek(position float64) error {
	return s.control(protocol.KindSeek, func() { s.player.SeekTo(position) })
}

func (s *Session) control(kind string, op func()) error {
	if s.Kicked() {
		return ErrKicked
	}
	if s.LocalID() == "" {
		return ErrNotJoined
	}
	if !s.CanControlPlayback() {
		return ErrNotPermitted
	}

	op()
	s.MediaEvent(kind)
	return nil
}

// SendChat broadcasts a chat message.
func (s *Session) SendChat(message string) error {
	localID := s.LocalID()
	if localID == "" {
		return ErrNotJoined
	}

	s.ch.Send(&protocol.Envelope{
		Type:    protocol.KindChat,
		UserID:  localID,
		Message: message,
	})
	return nil
}

// ChangeVideo asks the relay to switch the room's video.
func (s *Session) ChangeVideo(videoURL string) error {
	localID := s.LocalID()
	if localID == "" {
		return ErrNotJoined
	}
	if !s.CanChangeVideo() {
		return ErrNotPermitted
	}

	s.ch.Send(&protocol.Envelope{
		Type:     protocol.KindChangeVideo,
		UserID:   localID,
		VideoURL: videoURL,
	})
	return nil
}

// KickParticipant asks the relay to remove a participant.
func (s *Session) KickParticipant(targetID string) error {
	localID := s.LocalID()
	if localID == "" {
		return ErrNotJoined
	}
	if !s.CanKick() {
		return ErrNotPermitted
	}

	s.ch.Send(&protocol.Envelope{
		Type:     protocol.KindKick,
		UserID:   localID,
		TargetID: targetID,
	})
	return nil
}

// SetPermissions asks the relay to update a participant's permissions.
func (s *Session) SetPermissions(targetID string, perms protocol.Permissions) error {
	localID := s.LocalID()
	if localID == "" {
		return ErrNotJoined
	}
	p, ok := s.self()
	if !ok || !CanManagePermissions(p) {
		return ErrNotPermitted
	}

	s.ch.Send(&protocol.Envelope{
		Type:        protocol.KindSetPermissions,
		UserID:      localID,
		TargetID:    targetID,
		Permissions: &perms,
	})
	return nil
}

// EnableVoice turns the microphone on and lets the mesh offer to the
// peers this side is the designated initiator for. A media acquisition
// failure is returned to the caller; the rest of the session is
// unaffected.
func (s *Session) EnableVoice() error {
	s.mu.Lock()
	localID := s.localID
	peers := s.roster.IDs(localID)
	s.mu.Unlock()

	if localID == "" {
		return ErrNotJoined
	}
	return s.voice.Enable(localID, peers)
}

// DisableVoice releases the microphone and detaches local audio from
// every link; inbound-only links persist.
func (s *Session) DisableVoice() {
	s.voice.Disable()
}

// VoiceEnabled reports whether local voice is on.
func (s *Session) VoiceEnabled() bool {
	return s.voice.Enabled()
}

// NotifyVoiceStream surfaces inbound-audio availability changes from
// the voice layer to the presentation layer.
func (s *Session) NotifyVoiceStream(remoteID string, available bool) {
	s.emit(VoiceStream{UserID: remoteID, Available: available})
}

// Leave tears the session down on local navigation away.
func (s *Session) Leave() {
	s.voice.Close()
	s.gate.Cancel()
	s.ch.Close()
}
