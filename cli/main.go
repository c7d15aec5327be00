package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/CodinGakpo/DebateIT/cli/cmd"
	"github.com/CodinGakpo/DebateIT/internal/logging"
)

func main() {
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cmd.Execute(ctx)
}
