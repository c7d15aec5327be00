package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/cli/internal/ui"
)

var flagCreateJoin bool

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c", "new"},
	Short:   "Open a new room and share its code",
	Long: `Create a room without matchmaking. Share the printed code or link with your
opponent; the room is kept for a short grace period until somebody joins.

Examples:
  debateit create
  debateit create --join`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := NewConnection()
		if err != nil {
			return err
		}

		sp := ui.NewConnectionSpinner("Creating room...")
		sp.Start()
		room, err := conn.API.CreateRoom(cmd.Context())
		sp.Stop()
		if err != nil {
			return err
		}

		fmt.Println(ui.RoomInfo{Code: room.Code, Link: conn.Config.RoomLink(room.Code)}.View())
		if !flagCreateJoin {
			ui.PrintInfof("Join with: debateit join %s", room.Code)
			return nil
		}

		sess := conn.NewSession()
		return RunSession(cmd.Context(), sess, func(ctx context.Context) error { return sess.Join(ctx, room.Code) })
	},
}

func init() {
	createCmd.Flags().BoolVarP(&flagCreateJoin, "join", "j", false, "join the room right away")
	rootCmd.AddCommand(createCmd)
}
