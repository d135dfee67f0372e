package session_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sqott47/cinemate/internal/protocol"
	"github.com/Sqott47/cinemate/internal/relay"
	"github.com/Sqott47/cinemate/internal/relaytest"
	"github.com/Sqott47/cinemate/internal/session"
	"github.com/Sqott47/cinemate/internal/voice"
)

// stubConn stands in for a peer connection; negotiation succeeds with
// canned descriptions and no media ever flows.
type stubConn struct{ remote string }

func (c *stubConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + c.remote}, nil
}

func (c *stubConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + c.remote}, nil
}

func (c *stubConn) SetLocalDescription(webrtc.SessionDescription) error { return nil }

func (c *stubConn) SetRemoteDescription(webrtc.SessionDescription) error { return nil }

func (c *stubConn) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (c *stubConn) AttachAudio(webrtc.TrackLocal) error { return nil }

func (c *stubConn) DetachAudio() error { return nil }

func (c *stubConn) OnICECandidate(func(webrtc.ICECandidateInit)) {}

func (c *stubConn) OnRemoteAudio(func(up bool)) {}

func (c *stubConn) OnConnected(func()) {}

func (c *stubConn) Close() error { return nil }

type stubSource struct{}

func (stubSource) Track() webrtc.TrackLocal { return nil }

func (stubSource) Level() float64 { return 0 }

func (stubSource) Close() error { return nil }

// rawPeer is a second participant speaking the wire protocol directly.
type rawPeer struct {
	conn *websocket.Conn
}

func dialRaw(t *testing.T, url string) *rawPeer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawPeer{conn: conn}
}

func (p *rawPeer) recv(t *testing.T) *protocol.Envelope {
	t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	require.NoError(t, p.conn.ReadJSON(&env))
	return &env
}

func (p *rawPeer) recvType(t *testing.T, kind string) *protocol.Envelope {
	t.Helper()
	for {
		env := p.recv(t)
		if env.Type == kind {
			return env
		}
	}
}

// expectSilence fails when any non-roster envelope arrives before the
// deadline. Roster churn is allowed; it is not the traffic under test.
func (p *rawPeer) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		p.conn.SetReadDeadline(deadline)
		var env protocol.Envelope
		err := p.conn.ReadJSON(&env)
		if err != nil {
			var netErr net.Error
			require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "read failed: %v", err)
			return
		}
		require.Equal(t, protocol.KindUsersUpdate, env.Type, "unexpected envelope %q", env.Type)
	}
}

func (p *rawPeer) send(t *testing.T, env *protocol.Envelope) {
	t.Helper()
	require.NoError(t, p.conn.WriteJSON(env))
}

func waitForEvent[T any](t *testing.T, events <-chan session.Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if want, ok := ev.(T); ok {
				return want
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestRoomScenario(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()

	logger := zerolog.Nop()
	client := relay.NewClient(srv.JoinURL("r1", "Alice", "u1"), logger)
	require.NoError(t, client.Connect())

	newConn := func(remoteID string) (voice.Conn, error) {
		return &stubConn{remote: remoteID}, nil
	}
	newSource := func() (voice.Source, error) { return stubSource{}, nil }

	var sess *session.Session
	mesh := voice.NewManager(client, newConn, newSource, func(remoteID string, available bool) {
		sess.NotifyVoiceStream(remoteID, available)
	}, logger)

	sess = session.New("r1", client, session.NewClockPlayer(), mesh, 300*time.Millisecond, logger)
	defer sess.Leave()

	go relay.NewDispatcher(client, sess, logger).Run()

	require.Eventually(t, func() bool { return sess.LocalID() == "u1" },
		2*time.Second, 10*time.Millisecond)

	// Second participant joins; both sides see the two-user roster.
	bob := dialRaw(t, srv.JoinURL("r1", "Bob", "u2"))
	joined := bob.recvType(t, protocol.KindJoined)
	require.Equal(t, "u2", joined.UserID)
	roster := bob.recvType(t, protocol.KindUsersUpdate)
	require.Len(t, roster.Users, 2)

	require.Eventually(t, func() bool { return len(sess.Roster()) == 2 },
		2*time.Second, 10*time.Millisecond)

	// Voice on: "u1" < "u2", so this side initiates and Bob receives
	// exactly one offer.
	require.NoError(t, sess.EnableVoice())
	offer := bob.recvType(t, protocol.KindVoiceOffer)
	require.Equal(t, "u1", offer.UserID)
	require.Equal(t, "u2", offer.TargetID)
	require.NotNil(t, offer.Offer)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "bob"}
	bob.send(t, &protocol.Envelope{
		Type:     protocol.KindVoiceAnswer,
		UserID:   "u2",
		TargetID: "u1",
		Answer:   &answer,
	})

	require.Eventually(t, func() bool {
		links := mesh.Links()
		return len(links) == 1 && links[0].State() == voice.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// Bob drives playback; the command is applied locally and the
	// media element's echo stays off the wire.
	bob.send(t, &protocol.Envelope{Type: protocol.KindPlay, UserID: "u2", Timestamp: 33})
	// Playback is broadcast to every member, the sender included.
	bob.recvType(t, protocol.KindPlay)

	applied := waitForEvent[session.PlaybackApplied](t, sess.Events())
	require.Equal(t, protocol.KindPlay, applied.Kind)
	require.Equal(t, "u2", applied.UserID)
	require.Equal(t, float64(33), applied.Position)

	sess.MediaEvent(protocol.KindPause)
	bob.expectSilence(t, 150*time.Millisecond)

	// Past the grace window local events flow again.
	time.Sleep(300 * time.Millisecond)
	sess.MediaEvent(protocol.KindPause)
	pause := bob.recvType(t, protocol.KindPause)
	require.Equal(t, "u1", pause.UserID)

	// Bob leaves; the roster shrinks and the voice link goes with it.
	bob.conn.Close()

	require.Eventually(t, func() bool { return len(sess.Roster()) == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(mesh.Links()) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestKickedScenario(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()

	logger := zerolog.Nop()

	// Admin joins first over the raw wire, holding the kick grant.
	admin := dialRaw(t, srv.JoinURL("r1", "Alice", "u1"))
	admin.recvType(t, protocol.KindUsersUpdate)

	client := relay.NewClient(srv.JoinURL("r1", "Bob", "u2"), logger)
	require.NoError(t, client.Connect())

	var sess *session.Session
	mesh := voice.NewManager(client,
		func(remoteID string) (voice.Conn, error) { return &stubConn{remote: remoteID}, nil },
		func() (voice.Source, error) { return stubSource{}, nil },
		nil, logger)
	sess = session.New("r1", client, session.NewClockPlayer(), mesh, 100*time.Millisecond, logger)
	go relay.NewDispatcher(client, sess, logger).Run()

	require.Eventually(t, func() bool { return len(sess.Roster()) == 2 },
		2*time.Second, 10*time.Millisecond)

	admin.send(t, &protocol.Envelope{Type: protocol.KindKick, UserID: "u1", TargetID: "u2"})

	waitForEvent[session.Kicked](t, sess.Events())
	require.True(t, sess.Kicked())
	require.ErrorIs(t, sess.Play(), session.ErrKicked)
	require.Eventually(t, func() bool { return !client.IsOpen() },
		2*time.Second, 10*time.Millisecond)
}
