package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sqott47/cinemate/internal/auth"
	"github.com/Sqott47/cinemate/internal/config"
	"github.com/Sqott47/cinemate/internal/logging"
	"github.com/Sqott47/cinemate/internal/relay"
	"github.com/Sqott47/cinemate/internal/session"
	"github.com/Sqott47/cinemate/internal/ui"
	"github.com/Sqott47/cinemate/internal/voice"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join a watch room",
	Long: `Join an existing room and open the interactive room console.

Examples:
  cinemate join a1b2c3
  cinemate join a1b2c3 --name Alice --audio voice.ogg
  cinemate join a1b2c3 --voice managed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(args[0])
	},
}

func joinRoom(roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel)

	ident := auth.Identity{ID: cfg.UserID, Name: cfg.DisplayName}
	if cfg.IdentityToken != "" {
		if ident, err = auth.FromToken(cfg.IdentityToken, cfg.IdentitySecret); err != nil {
			return err
		}
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to room...")
	defer stopSpinner()

	client := relay.NewClient(cfg.RoomSocketURL(roomID, ident.Name, ident.ID), logger)
	if err := client.Connect(); err != nil {
		return err
	}

	var sess *session.Session
	onStream := func(remoteID string, available bool) {
		if sess != nil {
			sess.NotifyVoiceStream(remoteID, available)
		}
	}

	voiceLayer, err := buildVoice(cfg, roomID, client, onStream, logger)
	if err != nil {
		client.Close()
		return err
	}

	sess = session.New(roomID, client, session.NewClockPlayer(), voiceLayer, cfg.EchoWindow, logger)
	dispatcher := relay.NewDispatcher(client, sess, logger)
	go dispatcher.Run()

	stopSpinner()

	return ui.NewConsole(sess).Run()
}

func buildVoice(cfg *config.Config, roomID string, client *relay.Client, onStream voice.StreamFunc, logger zerolog.Logger) (session.Voice, error) {
	if cfg.VoiceMode == config.VoiceModeManaged {
		opts := voice.ManagedOptions{URL: cfg.ManagedURL, Token: cfg.ManagedToken, Room: roomID}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		return &managedVoice{opts: opts}, nil
	}

	connFactory := voice.NewPionFactory(voice.RTCConfiguration(cfg), logger)
	sourceFactory := func() (voice.Source, error) {
		if cfg.AudioSource == "" {
			return nil, errors.New("no audio source configured (--audio <file.ogg>)")
		}
		return voice.NewFileSource(cfg.AudioSource)
	}
	return voice.NewManager(client, connFactory, sourceFactory, onStream, logger), nil
}

// managedVoice adapts the managed media-relay transport to the
// session's voice surface. The mesh is bypassed entirely: signaling
// messages that still arrive are dropped and membership changes are
// the media server's problem.
type managedVoice struct {
	opts voice.ManagedOptions

	mu        sync.Mutex
	transport voice.Transport
	muted     bool
}

func (v *managedVoice) Enable(localID string, peers []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.transport == nil {
		t, err := v.opts.Connect(context.Background())
		if err != nil {
			return fmt.Errorf("connect managed voice: %w", err)
		}
		v.transport = t
		v.muted = false
		return nil
	}
	if v.muted {
		muted, err := v.transport.ToggleMute(context.Background())
		if err != nil {
			return err
		}
		v.muted = muted
	}
	return nil
}

func (v *managedVoice) Disable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.transport == nil || v.muted {
		return
	}
	if muted, err := v.transport.ToggleMute(context.Background()); err == nil {
		v.muted = muted
	}
}

func (v *managedVoice) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transport != nil && !v.muted
}

func (v *managedVoice) Reconcile(localID string, present []string) {}

func (v *managedVoice) HandleOffer(from string, offer webrtc.SessionDescription) {}

func (v *managedVoice) HandleAnswer(from string, answer webrtc.SessionDescription) {}

func (v *managedVoice) HandleCandidate(from string, candidate *webrtc.ICECandidateInit) {}

func (v *managedVoice) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.transport != nil {
		v.transport.Disconnect(context.Background())
		v.transport = nil
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)
	registerCommonFlags(joinCmd)
}
