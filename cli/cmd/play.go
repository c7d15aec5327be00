package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:     "play",
	Aliases: []string{"p", "match"},
	Short:   "Find an opponent and join the debate room",
	Long: `Join the matchmaking queue. As soon as another player is waiting, both of you
are moved into a fresh room.

Examples:
  debateit play
  debateit play --name ada --server https://debateit.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := NewConnection()
		if err != nil {
			return err
		}

		sess := conn.NewSession()
		return RunSession(cmd.Context(), sess, func(ctx context.Context) error { return sess.FindMatch(ctx) })
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
}
