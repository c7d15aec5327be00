package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/CodinGakpo/DebateIT/cli/internal/ui"
	"github.com/CodinGakpo/DebateIT/internal/version"
)

var (
	flagServer string
	flagName   string
	flagToken  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "debateit",
	Short: "Find an opponent and debate from your terminal",
	Long: `DebateIT pairs you with an opponent through the matchmaking queue, or lets you
open a room and share its code, then runs the debate room in your terminal:
chat, mute state and who is speaking, kept in sync with the other side.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagServer, "server", "s", "", "session server URL (env DEBATEIT_SERVER)")
	pf.StringVarP(&flagName, "name", "n", "", "display name used when no token is set (env DEBATEIT_NAME)")
	pf.StringVar(&flagToken, "token", "", "identity token (env DEBATEIT_TOKEN)")
}
