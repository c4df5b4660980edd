package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagName     string
	flagSTUN     []string
	flagTURN     []string
	flagTURNUser string
	flagTURNPass string
	flagVerbose  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zing-call",
	Short: "Terminal endpoint for two-party video calls",
	Long: `zing-call joins two-party calls through a zing-rendezvous service. It
creates or joins a room, negotiates a direct WebRTC session with the peer and
receives their audio and video. Interrupt (Ctrl-C) hangs up cleanly, so the
peer is told the call ended.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://127.0.0.1:3000", "Rendezvous service base URL")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "Display name announced to the peer")
	rootCmd.PersistentFlags().StringSliceVarP(&flagSTUN, "stun", "s", nil, "STUN server URL (repeatable)")
	rootCmd.PersistentFlags().StringSliceVarP(&flagTURN, "turn", "t", nil, "TURN server URL (repeatable)")
	rootCmd.PersistentFlags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	rootCmd.PersistentFlags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
}
