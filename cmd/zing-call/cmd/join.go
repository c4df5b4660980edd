package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room someone already opened",
	Long: `Join an existing room by its identifier.

Examples:
  zing-call join aB3dE5fG7h
  zing-call join aB3dE5fG7h --name bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return fmt.Errorf("room id cannot be empty")
		}
		return runCall(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
