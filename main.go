// Package main implements the flowsync binary, which keeps the contact
// flows and flow modules of an Amazon Connect instance in step with the
// documents a release pipeline publishes to S3.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}
