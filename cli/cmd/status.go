package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/cli/internal/config"
	"github.com/CodinGakpo/DebateIT/cli/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status <code|link>",
	Short: "Show who is in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := config.ParseRoomRef(args[0])
		if err != nil {
			return err
		}

		conn, err := NewConnection()
		if err != nil {
			return err
		}

		sp := ui.NewLineSpinner("Fetching room...")
		sp.Start()
		room, err := conn.API.Room(cmd.Context(), code)
		sp.Stop()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("Room %s · %s · opened %s", room.Code, room.Origin, room.CreatedAt.Local().Format("15:04:05"))
		t.AppendHeader(table.Row{"Name", "Role", "Mic"})
		for _, p := range room.Participants {
			t.AppendRow(table.Row{p.Name, p.Role, ui.MicLabel(p.Muted, p.Speaking)})
		}
		if len(room.Participants) == 0 {
			t.AppendRow(table.Row{"(empty)", "", ""})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignCenter}})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
