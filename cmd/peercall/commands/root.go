package commands

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/peercall/peercall/internal/ui"
	"github.com/peercall/peercall/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "peercall",
	Short:   "Peer-to-peer video calls from the terminal using WebRTC",
	Long:    `PeerCall is a command-line tool for one-to-one video calls over WebRTC. Two people joining the same room are connected directly, with the signaling server only brokering the setup. Media flows peer to peer and never touches the server.`,
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
