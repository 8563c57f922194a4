package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// signalContext derives a context cancelled on SIGINT/SIGTERM, so that
// unbounded waits (scan streams, name searches, notification streams) stop
// cleanly on Ctrl+C.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
