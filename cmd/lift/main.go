package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Set by the release build.
var (
	release = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fatal(err)
	}
}
