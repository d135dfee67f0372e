// Package relaytest runs an in-process room relay for tests. It
// mirrors the production relay's contract: relay-assigned identities,
// wholesale roster broadcasts, admin permissions for the first joiner,
// broadcast playback/chat, targeted voice signaling and kicks.
package relaytest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sqott47/cinemate/internal/protocol"
)

// Relay is the test relay. Create with New, stop with Close.
type Relay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	video   string
	order   []string
	members map[string]*member
}

type member struct {
	participant protocol.Participant
	conn        *websocket.Conn
	writeMu     sync.Mutex
}

// New starts the relay.
func New() *Relay {
	r := &Relay{rooms: make(map[string]*room)}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serveWS))
	return r
}

// Close shuts the relay down. Live websockets are force-closed first;
// the server would otherwise wait on the hijacked connections forever.
func (r *Relay) Close() {
	r.srv.CloseClientConnections()
	r.srv.Close()
}

// JoinURL builds the websocket URL a client dials to join a room.
func (r *Relay) JoinURL(roomID, username, userID string) string {
	base := "ws" + strings.TrimPrefix(r.srv.URL, "http")
	q := url.Values{}
	q.Set("username", username)
	if userID != "" {
		q.Set("user_id", userID)
	}
	return fmt.Sprintf("%s/ws/%s?%s", base, roomID, q.Encode())
}

func (r *Relay) serveWS(w http.ResponseWriter, req *http.Request) {
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "ws" {
		http.NotFound(w, req)
		return
	}
	roomID := parts[1]
	username := req.URL.Query().Get("username")
	if username == "" {
		username = "Anonymous"
	}
	userID := req.URL.Query().Get("user_id")
	if userID == "" {
		userID = uuid.NewString()
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	m := r.addMember(roomID, userID, username, conn)

	m.send(&protocol.Envelope{Type: protocol.KindJoined, UserID: userID})
	r.broadcastUsers(roomID)

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		r.handle(roomID, userID, &env)
	}

	if r.removeMember(roomID, userID) {
		r.broadcastUsers(roomID)
	}
	conn.Close()
}

func (r *Relay) addMember(roomID, userID, username string, conn *websocket.Conn) *member {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]*member)}
		r.rooms[roomID] = rm
	}

	first := len(rm.members) == 0
	role := protocol.RoleGuest
	if first {
		role = protocol.RoleAdmin
	}

	m := &member{
		participant: protocol.Participant{
			ID:   userID,
			Name: username,
			Role: role,
			Permissions: protocol.Permissions{
				ControlVideo: first,
				ChangeVideo:  first,
				Kick:         first,
			},
		},
		conn: conn,
	}
	rm.members[userID] = m
	rm.order = append(rm.order, userID)
	return m
}

func (r *Relay) removeMember(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := rm.members[userID]; !ok {
		return false
	}
	delete(rm.members, userID)
	for i, id := range rm.order {
		if id == userID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Relay) handle(roomID, senderID string, env *protocol.Envelope) {
	switch env.Type {

	case protocol.KindPlay, protocol.KindPause, protocol.KindSeek:
		r.broadcast(roomID, env)

	case protocol.KindChat:
		out := *env
		out.Username = r.memberName(roomID, senderID)
		r.broadcast(roomID, &out)

	case protocol.KindChangeVideo:
		r.mu.Lock()
		if rm, ok := r.rooms[roomID]; ok {
			rm.video = env.VideoURL
		}
		r.mu.Unlock()
		r.broadcast(roomID, &protocol.Envelope{
			Type:     protocol.KindVideoChanged,
			VideoURL: env.VideoURL,
		})

	case protocol.KindSetPermissions:
		if env.Permissions == nil {
			return
		}
		r.mu.Lock()
		if rm, ok := r.rooms[roomID]; ok {
			if m, ok := rm.members[env.TargetID]; ok {
				m.participant.Permissions = *env.Permissions
			}
		}
		r.mu.Unlock()
		r.broadcastUsers(roomID)

	case protocol.KindKick:
		if r.kick(roomID, env.TargetID) {
			r.broadcastUsers(roomID)
		}

	case protocol.KindVoiceOffer, protocol.KindVoiceAnswer, protocol.KindVoiceCandidate:
		r.forward(roomID, env.TargetID, env)
	}
}

func (r *Relay) kick(roomID, targetID string) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	target, ok := rm.members[targetID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	target.send(&protocol.Envelope{Type: protocol.KindKicked})
	return r.removeMember(roomID, targetID)
}

func (r *Relay) memberName(roomID, userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		if m, ok := rm.members[userID]; ok {
			return m.participant.Name
		}
	}
	return "Unknown"
}

func (r *Relay) broadcastUsers(roomID string) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	users := make([]protocol.Participant, 0, len(rm.order))
	targets := make([]*member, 0, len(rm.order))
	for _, id := range rm.order {
		m := rm.members[id]
		users = append(users, m.participant)
		targets = append(targets, m)
	}
	r.mu.Unlock()

	env := &protocol.Envelope{Type: protocol.KindUsersUpdate, Users: users}
	for _, m := range targets {
		m.send(env)
	}
}

func (r *Relay) broadcast(roomID string, env *protocol.Envelope) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	targets := make([]*member, 0, len(rm.members))
	for _, m := range rm.members {
		targets = append(targets, m)
	}
	r.mu.Unlock()

	for _, m := range targets {
		m.send(env)
	}
}

func (r *Relay) forward(roomID, targetID string, env *protocol.Envelope) {
	r.mu.Lock()
	var target *member
	if rm, ok := r.rooms[roomID]; ok {
		target = rm.members[targetID]
	}
	r.mu.Unlock()

	if target != nil {
		target.send(env)
	}
}

func (m *member) send(env *protocol.Envelope) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.conn.WriteJSON(env)
}
