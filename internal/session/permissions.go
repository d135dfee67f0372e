package session

import "github.com/Sqott47/cinemate/internal/protocol"

// Permission predicates are pure functions of a roster entry and are
// re-evaluated against the current roster snapshot on every check;
// nothing is cached across updates. They only govern whether the local
// side attempts an action; the relay is the trust boundary.

// CanControlPlayback reports whether the participant may send
// play/pause/seek commands.
func CanControlPlayback(p protocol.Participant) bool {
	return p.Permissions.ControlVideo
}

// CanChangeVideo reports whether the participant may change the room's
// video.
func CanChangeVideo(p protocol.Participant) bool {
	return p.Permissions.ChangeVideo
}

// CanKick reports whether the participant may kick others.
func CanKick(p protocol.Participant) bool {
	return p.Permissions.Kick
}

// CanManagePermissions reports whether the participant may change
// other participants' permissions.
func CanManagePermissions(p protocol.Participant) bool {
	return p.Role == protocol.RoleAdmin
}
