package session

import "github.com/Sqott47/cinemate/internal/protocol"

// Roster is the local cache of the room's participant set. The relay
// holds the authoritative copy; every users_update replaces this cache
// wholesale, there is never a partial local mutation.
type Roster struct {
	users []protocol.Participant
	byID  map[string]protocol.Participant
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]protocol.Participant)}
}

// Replace swaps the whole participant set and returns the ids that
// appeared and the ids that disappeared relative to the previous set.
func (r *Roster) Replace(users []protocol.Participant) (added, removed []string) {
	next := make(map[string]protocol.Participant, len(users))
	for _, u := range users {
		next[u.ID] = u
		if _, ok := r.byID[u.ID]; !ok {
			added = append(added, u.ID)
		}
	}
	for id := range r.byID {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}

	r.users = append(r.users[:0:0], users...)
	r.byID = next
	return added, removed
}

// Clear empties the roster.
func (r *Roster) Clear() {
	r.users = nil
	r.byID = make(map[string]protocol.Participant)
}

// Get returns the roster entry for an id.
func (r *Roster) Get(id string) (protocol.Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Contains reports whether the id is currently in the room.
func (r *Roster) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Users returns the participants in relay order.
func (r *Roster) Users() []protocol.Participant {
	return append([]protocol.Participant(nil), r.users...)
}

// IDs returns every participant id except the excluded one.
func (r *Roster) IDs(exclude string) []string {
	ids := make([]string, 0, len(r.users))
	for _, u := range r.users {
		if u.ID != exclude {
			ids = append(ids, u.ID)
		}
	}
	return ids
}
