package cmd

import (
	"os"
	"os/signal"

	"github.com/Sqott47/cinemate/internal/ui"
	"github.com/Sqott47/cinemate/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "cinemate",
	Short:   "Watch videos in lock-step with friends and talk over peer-to-peer voice",
	Long:    `Cinemate is a command-line client for shared watch rooms: everyone in a room sees the same video at the same position, chat flows through the room relay, and voice travels over a direct WebRTC mesh between the participants.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
