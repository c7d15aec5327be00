package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/backend/internal/signaling"
)

var statsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show room and queue counts of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st signaling.Stats

		resp, err := resty.New().
			SetTimeout(5 * time.Second).
			R().
			SetResult(&st).
			Get(strings.TrimRight(statsServer, "/") + "/api/stats")
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("fetch stats: %s", resp.Status())
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Rooms", "Participants", "Waiting"})
		t.AppendRow(table.Row{st.Rooms, st.Participants, st.Waiting})
		t.Render()
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsServer, "server", "s", "http://localhost:8000", "server base URL")
	rootCmd.AddCommand(statsCmd)
}
