package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Sqott47/cinemate/internal/config"
	"github.com/Sqott47/cinemate/internal/logging"
	"github.com/Sqott47/cinemate/internal/rooms"
	"github.com/Sqott47/cinemate/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a new watch room",
	Long: `Create a new room on the Cinemate server and print its id and
shareable link.

Examples:
  cinemate create
  cinemate create --domain movies.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRoom()
	},
}

func createRoom() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel)

	stopSpinner := ui.RunConnectionSpinner("Creating room...")
	defer stopSpinner()

	client := rooms.NewClient(cfg.APIBase, logger)
	roomID, err := client.Create(context.Background())
	if err != nil {
		return err
	}
	stopSpinner()

	ui.RenderRoomInfo(roomID, cfg.RoomLink(roomID))
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		Domain:      flagDomain,
		STUN:        flagSTUN,
		TURN:        flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		VoiceMode:   flagVoiceMode,
		AudioSource: flagAudioSource,
		Name:        flagName,
		ConfigFile:  flagConfigFile,
	})
}

func init() {
	rootCmd.AddCommand(createCmd)
	registerCommonFlags(createCmd)
}
