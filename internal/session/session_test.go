package session

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sqott47/cinemate/internal/protocol"
)

const testEchoWindow = 40 * time.Millisecond

type fakeChannel struct {
	mu     sync.Mutex
	open   bool
	closed bool
	sent   []*protocol.Envelope
}

func (c *fakeChannel) Send(env *protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closed = true
}

func (c *fakeChannel) envelopes() []*protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Envelope(nil), c.sent...)
}

type fakePlayer struct {
	mu       sync.Mutex
	loaded   bool
	position float64
	calls    []string
}

func (p *fakePlayer) Play() { p.record("play") }

func (p *fakePlayer) Pause() { p.record("pause") }

func (p *fakePlayer) SeekTo(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	p.calls = append(p.calls, "seek")
}

func (p *fakePlayer) Position() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.loaded
}

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type reconcileCall struct {
	localID string
	present []string
}

type fakeVoice struct {
	mu         sync.Mutex
	enabled    bool
	enableErr  error
	enables    []reconcileCall
	reconciles []reconcileCall
	disables   int
	closes     int
}

func (v *fakeVoice) Enable(localID string, peers []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.enableErr != nil {
		return v.enableErr
	}
	v.enabled = true
	v.enables = append(v.enables, reconcileCall{localID: localID, present: peers})
	return nil
}

func (v *fakeVoice) Disable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled = false
	v.disables++
}

func (v *fakeVoice) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabled
}

func (v *fakeVoice) Reconcile(localID string, present []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reconciles = append(v.reconciles, reconcileCall{localID: localID, present: present})
}

func (v *fakeVoice) HandleOffer(string, webrtc.SessionDescription)    {}
func (v *fakeVoice) HandleAnswer(string, webrtc.SessionDescription)   {}
func (v *fakeVoice) HandleCandidate(string, *webrtc.ICECandidateInit) {}

func (v *fakeVoice) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closes++
}

func newTestSession(t *testing.T) (*Session, *fakeChannel, *fakePlayer, *fakeVoice) {
	t.Helper()
	ch := &fakeChannel{open: true}
	player := &fakePlayer{loaded: true}
	voice := &fakeVoice{}
	s := New("room-1", ch, player, voice, testEchoWindow, zerolog.Nop())
	return s, ch, player, voice
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return nil
	}
}

// joinAs runs the joined and users_update handlers the way the
// dispatcher would, discarding the roster event.
func joinAs(t *testing.T, s *Session, localID string, users []protocol.Participant) {
	t.Helper()
	s.HandleJoined(localID)
	s.HandleUsersUpdate(users)
	nextEvent(t, s)
}

func adminUser(id string) protocol.Participant {
	return protocol.Participant{
		ID:   id,
		Name: "user-" + id,
		Role: protocol.RoleAdmin,
		Permissions: protocol.Permissions{
			ControlVideo: true,
			ChangeVideo:  true,
			Kick:         true,
		},
	}
}

func guestUser(id string) protocol.Participant {
	return protocol.Participant{ID: id, Name: "user-" + id, Role: protocol.RoleGuest}
}

func TestJoinedRecordsLocalID(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	require.Empty(t, s.LocalID())
	s.HandleJoined("u1")
	require.Equal(t, "u1", s.LocalID())
}

func TestUsersUpdateReconcilesVoice(t *testing.T) {
	s, _, _, voice := newTestSession(t)
	s.HandleJoined("u1")

	s.HandleUsersUpdate([]protocol.Participant{adminUser("u1"), guestUser("u2")})

	require.Len(t, voice.reconciles, 1)
	require.Equal(t, "u1", voice.reconciles[0].localID)
	require.Equal(t, []string{"u1", "u2"}, voice.reconciles[0].present)

	ev := nextEvent(t, s)
	updated, ok := ev.(RosterUpdated)
	require.True(t, ok)
	require.Len(t, updated.Users, 2)
}

func TestRemoteCommandEchoIsSuppressed(t *testing.T) {
	s, ch, player, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1"), guestUser("u2")})

	s.HandlePlay("u2", 42.5)

	require.Equal(t, []string{"seek", "play"}, player.recorded())
	ev := nextEvent(t, s)
	applied, ok := ev.(PlaybackApplied)
	require.True(t, ok)
	require.Equal(t, protocol.KindPlay, applied.Kind)
	require.Equal(t, "u2", applied.UserID)
	require.Equal(t, 42.5, applied.Position)

	// The media element reacts to the programmatic play within the
	// grace window; that reaction must not go back out.
	s.MediaEvent(protocol.KindPlay)
	require.Empty(t, ch.envelopes())

	require.Eventually(t, func() bool {
		s.MediaEvent(protocol.KindPause)
		return len(ch.envelopes()) == 1
	}, time.Second, 10*time.Millisecond)

	env := ch.envelopes()[0]
	require.Equal(t, protocol.KindPause, env.Type)
	require.Equal(t, "u1", env.UserID)
	require.Equal(t, 42.5, env.Timestamp)
}

func TestMediaEventGuards(t *testing.T) {
	t.Run("channel closed", func(t *testing.T) {
		s, ch, _, _ := newTestSession(t)
		joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})
		ch.Close()

		s.MediaEvent(protocol.KindPlay)
		require.Empty(t, ch.envelopes())
	})

	t.Run("no media loaded", func(t *testing.T) {
		s, ch, player, _ := newTestSession(t)
		joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})
		player.loaded = false

		s.MediaEvent(protocol.KindPlay)
		require.Empty(t, ch.envelopes())
	})

	t.Run("not joined", func(t *testing.T) {
		s, ch, _, _ := newTestSession(t)

		s.MediaEvent(protocol.KindPlay)
		require.Empty(t, ch.envelopes())
	})
}

func TestControlRequiresPermission(t *testing.T) {
	s, ch, player, _ := newTestSession(t)
	joinAs(t, s, "u2", []protocol.Participant{adminUser("u1"), guestUser("u2")})

	require.ErrorIs(t, s.Play(), ErrNotPermitted)
	require.ErrorIs(t, s.Pause(), ErrNotPermitted)
	require.ErrorIs(t, s.Seek(10), ErrNotPermitted)
	require.Empty(t, ch.envelopes())
	require.Empty(t, player.recorded())
}

func TestControlDrivesPlayerAndBroadcasts(t *testing.T) {
	s, ch, player, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1"), guestUser("u2")})
	player.position = 7

	require.NoError(t, s.Play())

	require.Equal(t, []string{"play"}, player.recorded())
	envs := ch.envelopes()
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindPlay, envs[0].Type)
	require.Equal(t, "u1", envs[0].UserID)
	require.Equal(t, float64(7), envs[0].Timestamp)
}

func TestControlBeforeJoin(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	require.ErrorIs(t, s.Play(), ErrNotJoined)
}

func TestPermissionRevocationTakesEffect(t *testing.T) {
	s, ch, _, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})

	require.NoError(t, s.Play())
	require.Len(t, ch.envelopes(), 1)

	revoked := adminUser("u1")
	revoked.Permissions.ControlVideo = false
	s.HandleUsersUpdate([]protocol.Participant{revoked})
	nextEvent(t, s)

	require.ErrorIs(t, s.Play(), ErrNotPermitted)
	require.Len(t, ch.envelopes(), 1)
}

func TestKickedIsTerminal(t *testing.T) {
	s, ch, _, voice := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})

	s.HandleKicked()

	require.True(t, s.Kicked())
	require.Empty(t, s.LocalID())
	require.Empty(t, s.Roster())
	require.Equal(t, 1, voice.closes)
	require.True(t, ch.closed)

	ev := nextEvent(t, s)
	_, ok := ev.(Kicked)
	require.True(t, ok)

	require.ErrorIs(t, s.Play(), ErrKicked)
}

func TestChangeVideoRequiresPermission(t *testing.T) {
	s, ch, _, _ := newTestSession(t)
	joinAs(t, s, "u2", []protocol.Participant{adminUser("u1"), guestUser("u2")})

	require.ErrorIs(t, s.ChangeVideo("https://example.com/v.mp4"), ErrNotPermitted)
	require.Empty(t, ch.envelopes())
}

func TestChangeVideoBroadcast(t *testing.T) {
	s, ch, _, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})

	require.NoError(t, s.ChangeVideo("https://example.com/v.mp4"))

	envs := ch.envelopes()
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindChangeVideo, envs[0].Type)
	require.Equal(t, "https://example.com/v.mp4", envs[0].VideoURL)
}

func TestVideoChangedUpdatesState(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	s.HandleVideoChanged("https://example.com/v.mp4")

	require.Equal(t, "https://example.com/v.mp4", s.VideoURL())
	ev := nextEvent(t, s)
	changed, ok := ev.(VideoChanged)
	require.True(t, ok)
	require.Equal(t, "https://example.com/v.mp4", changed.URL)
}

func TestKickParticipant(t *testing.T) {
	s, ch, _, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1"), guestUser("u2")})

	require.NoError(t, s.KickParticipant("u2"))

	envs := ch.envelopes()
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindKick, envs[0].Type)
	require.Equal(t, "u2", envs[0].TargetID)
}

func TestSetPermissionsRequiresAdminRole(t *testing.T) {
	// A guest holding every per-action grant still cannot manage
	// permissions; that stays tied to the admin role.
	empowered := guestUser("u2")
	empowered.Permissions = protocol.Permissions{ControlVideo: true, ChangeVideo: true, Kick: true}

	s, ch, _, _ := newTestSession(t)
	joinAs(t, s, "u2", []protocol.Participant{adminUser("u1"), empowered})

	err := s.SetPermissions("u1", protocol.Permissions{})
	require.ErrorIs(t, err, ErrNotPermitted)
	require.Empty(t, ch.envelopes())
}

func TestSetPermissionsBroadcast(t *testing.T) {
	s, ch, _, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1"), guestUser("u2")})

	perms := protocol.Permissions{ControlVideo: true}
	require.NoError(t, s.SetPermissions("u2", perms))

	envs := ch.envelopes()
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindSetPermissions, envs[0].Type)
	require.Equal(t, "u2", envs[0].TargetID)
	require.NotNil(t, envs[0].Permissions)
	require.Equal(t, perms, *envs[0].Permissions)
}

func TestSendChat(t *testing.T) {
	s, ch, _, _ := newTestSession(t)

	require.ErrorIs(t, s.SendChat("hello"), ErrNotJoined)

	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})
	require.NoError(t, s.SendChat("hello"))

	envs := ch.envelopes()
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindChat, envs[0].Type)
	require.Equal(t, "hello", envs[0].Message)
	require.Equal(t, "u1", envs[0].UserID)
}

func TestEnableVoiceExcludesSelf(t *testing.T) {
	s, _, _, voice := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1"), guestUser("u2"), guestUser("u3")})

	require.NoError(t, s.EnableVoice())
	require.True(t, s.VoiceEnabled())

	require.Len(t, voice.enables, 1)
	require.Equal(t, "u1", voice.enables[0].localID)
	require.Equal(t, []string{"u2", "u3"}, voice.enables[0].present)

	s.DisableVoice()
	require.False(t, s.VoiceEnabled())
	require.Equal(t, 1, voice.disables)
}

func TestEnableVoiceBeforeJoin(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	require.ErrorIs(t, s.EnableVoice(), ErrNotJoined)
}

func TestChannelClosedEvent(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})

	s.HandleChannelClosed()

	ev := nextEvent(t, s)
	_, ok := ev.(ChannelClosed)
	require.True(t, ok)
}

func TestNotifyVoiceStream(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	s.NotifyVoiceStream("u2", true)

	ev := nextEvent(t, s)
	stream, ok := ev.(VoiceStream)
	require.True(t, ok)
	require.Equal(t, "u2", stream.UserID)
	require.True(t, stream.Available)
}

func TestLeaveTearsDown(t *testing.T) {
	s, ch, _, voice := newTestSession(t)
	joinAs(t, s, "u1", []protocol.Participant{adminUser("u1")})

	s.Leave()

	require.Equal(t, 1, voice.closes)
	require.True(t, ch.closed)
}
