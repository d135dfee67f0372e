package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sqott47/cinemate/internal/auth"
)

// Transport is the managed media-relay alternative to the mesh: when a
// deployment selects it, voice is carried by a media server and the
// mesh in this package is bypassed entirely. Implementations are
// external collaborators; this package only fixes the seam.
type Transport interface {
	// Connect joins the media room and publishes the local audio.
	Connect(ctx context.Context) error
	// ToggleMute flips the local mute state and reports the new one.
	ToggleMute(ctx context.Context) (muted bool, err error)
	// Disconnect leaves the media room.
	Disconnect(ctx context.Context) error
}

// TransportFactory builds a managed transport from the access
// parameters handed out by the deployment.
type TransportFactory func(url, token string) (Transport, error)

// NewManagedTransport is the link-time hook a managed-voice build
// installs its TransportFactory into. It stays nil in mesh-only
// builds.
var NewManagedTransport TransportFactory

// ErrManagedUnavailable is returned when managed voice is selected but
// no transport factory is linked in.
var ErrManagedUnavailable = errors.New("managed voice transport not available in this build")

// ManagedOptions are the deployment-time parameters for managed voice.
type ManagedOptions struct {
	URL   string
	Token string
	Room  string
}

// Validate checks the options before a connection attempt; in
// particular the access token must grant the room being joined.
func (o ManagedOptions) Validate() error {
	if o.URL == "" {
		return errors.New("managed voice URL not configured")
	}
	if o.Token == "" {
		return errors.New("managed voice token not configured")
	}

	room, err := auth.RoomGrant(o.Token)
	if err != nil {
		return err
	}
	if o.Room != "" && room != o.Room {
		return fmt.Errorf("access token grants room %q, joining %q", room, o.Room)
	}
	return nil
}

// Connect builds and connects the managed transport.
func (o ManagedOptions) Connect(ctx context.Context) (Transport, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if NewManagedTransport == nil {
		return nil, ErrManagedUnavailable
	}
	t, err := NewManagedTransport(o.URL, o.Token)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}
