package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ElijahCirioli/zing-video-chat/internal/engine"
	"github.com/ElijahCirioli/zing-video-chat/internal/roomid"
)

var createCmd = &cobra.Command{
	Use:   "create [room-id]",
	Short: "Open a room and wait for a peer",
	Long: `Open a room on the rendezvous service and wait for the peer to join.
With no argument the service mints a fresh room identifier.

Examples:
  zing-call create
  zing-call create aB3dE5fG7h --name alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := resolveRoomID(args)
		if err != nil {
			return err
		}
		fmt.Printf("room %s, waiting for your peer\n", room)
		return runCall(room, true)
	},
}

func resolveRoomID(args []string) (string, error) {
	if len(args) == 1 {
		if args[0] == "" {
			return "", fmt.Errorf("room id cannot be empty")
		}
		return args[0], nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := engine.FetchRoomID(ctx, nil, flagServer)
	if err != nil {
		return "", err
	}
	if !roomid.Valid(id) {
		return "", fmt.Errorf("service returned malformed room id %q", id)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(createCmd)
}
