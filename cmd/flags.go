package cmd

import "github.com/spf13/cobra"

var (
	flagDomain      string
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagVoiceMode   string
	flagAudioSource string
	flagName        string
	flagConfigFile  string
)

func registerCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagDomain, "domain", "", "Cinemate server domain")
	cmd.Flags().StringVar(&flagConfigFile, "config", "", "Path to a yaml config file")
	cmd.Flags().StringVar(&flagName, "name", "", "Display name in the room")
	cmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	cmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server URL")
	cmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	cmd.Flags().StringVar(&flagVoiceMode, "voice", "", "Voice transport: mesh or managed")
	cmd.Flags().StringVar(&flagAudioSource, "audio", "", "Ogg/Opus file used as the local audio source")
}
