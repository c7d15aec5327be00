package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/cli/internal/config"
)

var joinCmd = &cobra.Command{
	Use:     "join <code|link>",
	Aliases: []string{"j"},
	Short:   "Join a room by code or link",
	Long: `Join an existing room. The argument may be the six character room code or
the room link printed by "debateit create".

Examples:
  debateit join K7Q2ZD
  debateit join https://debateit.example.com/room/K7Q2ZD`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := config.ParseRoomRef(args[0])
		if err != nil {
			return err
		}

		conn, err := NewConnection()
		if err != nil {
			return err
		}

		sess := conn.NewSession()
		return RunSession(cmd.Context(), sess, func(ctx context.Context) error { return sess.Join(ctx, code) })
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
