//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals relays SIGINT and SIGTERM to ch so that a sampler run or
// the tool server can stop between iterations.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
