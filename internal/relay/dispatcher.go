package relay

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Sqott47/cinemate/internal/protocol"
)

// Handler receives inbound envelopes, one method per message kind.
// Methods are invoked synchronously in receipt order from a single
// goroutine; a handler never observes two concurrent calls.
type Handler interface {
	HandleJoined(userID string)
	HandleUsersUpdate(users []protocol.Participant)
	HandleVideoChanged(videoURL string)
	HandleKicked()
	HandleChat(userID, username, message string)

	HandlePlay(userID string, position float64)
	HandlePause(userID string, position float64)
	HandleSeek(userID string, position float64)

	HandleVoiceOffer(from string, offer webrtc.SessionDescription)
	HandleVoiceAnswer(from string, answer webrtc.SessionDescription)
	HandleVoiceCandidate(from string, candidate *webrtc.ICECandidateInit)

	// HandleChannelClosed fires once when the event channel ends, after
	// the last envelope has been dispatched.
	HandleChannelClosed()
}

// EnvelopeSource is the receive side of the event channel. Satisfied
// by *Client.
type EnvelopeSource interface {
	Incoming() <-chan *protocol.Envelope
}

// Dispatcher drains the source's incoming channel and routes each
// envelope to the matching Handler method.
type Dispatcher struct {
	logger  zerolog.Logger
	source  EnvelopeSource
	handler Handler
}

// NewDispatcher wires a handler to a connected client.
func NewDispatcher(source EnvelopeSource, handler Handler, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:  logger.With().Str("component", "dispatch").Logger(),
		source:  source,
		handler: handler,
	}
}

// Run dispatches until the incoming channel closes. It is meant to be
// started as the session's single protocol goroutine.
func (d *Dispatcher) Run() {
	for env := range d.source.Incoming() {
		d.dispatch(env)
	}
	d.handler.HandleChannelClosed()
}

func (d *Dispatcher) dispatch(env *protocol.Envelope) {
	switch env.Type {

	case protocol.KindJoined:
		d.handler.HandleJoined(env.UserID)

	case protocol.KindUsersUpdate:
		d.handler.HandleUsersUpdate(env.Users)

	case protocol.KindVideoChanged:
		d.handler.HandleVideoChanged(env.VideoURL)

	case protocol.KindKicked:
		d.handler.HandleKicked()

	case protocol.KindChat:
		d.handler.HandleChat(env.UserID, env.Username, env.Message)

	case protocol.KindPlay:
		d.handler.HandlePlay(env.UserID, env.Timestamp)

	case protocol.KindPause:
		d.handler.HandlePause(env.UserID, env.Timestamp)

	case protocol.KindSeek:
		d.handler.HandleSeek(env.UserID, env.Timestamp)

	case protocol.KindVoiceOffer:
		if env.Offer == nil {
			d.logger.Debug().Str("from", env.UserID).Msg("voice-offer without offer payload")
			return
		}
		d.handler.HandleVoiceOffer(env.UserID, *env.Offer)

	case protocol.KindVoiceAnswer:
		if env.Answer == nil {
			d.logger.Debug().Str("from", env.UserID).Msg("voice-answer without answer payload")
			return
		}
		d.handler.HandleVoiceAnswer(env.UserID, *env.Answer)

	case protocol.KindVoiceCandidate:
		d.handler.HandleVoiceCandidate(env.UserID, env.Candidate)

	default:
		d.logger.Debug().Str("type", env.Type).Msg("ignoring unknown envelope type")
	}
}
