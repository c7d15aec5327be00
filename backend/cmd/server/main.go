package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "debateit-server",
	Short:   "Matchmaking and room relay server for DebateIT",
	Version: version.Version,
}

func main() {
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
