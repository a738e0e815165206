package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/williampepple1/scrapebot/cmd"
)

// osExit is replaced in tests
var osExit = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		// an interrupted run still wrote its FATAL line
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(1)
	}
}
