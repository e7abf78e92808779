// Package main implements the arbor worker, one node of the control tree.
//
// A worker is spawned by its parent (the controller or another worker) and
// talks to it over its own stdin and stdout, one JSON message per line.
// Logs go to stderr. Children are spawned by re-executing this binary.
//
// Architecture:
//
//	parent ──stdin──▶ ┌──────────────┐ ──stdin──▶ child
//	       ◀─stdout── │    worker    │ ◀─stdout── child
//	                  │  store, beat │
//	                  └──────────────┘
//
// Flags:
//   - -id: Node id assigned by the parent (required; any id but -1)
//
// The worker exits when its stdin closes or on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreamware/arbor/internal/cluster"
	"github.com/dreamware/arbor/internal/transport"
	"github.com/dreamware/arbor/internal/worker"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		logFatal("worker: %v", err)
	}
}

// run parses args and serves the parent on stdin/stdout until the stream
// ends or ctx is cancelled.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.WriteCloser, stderr io.Writer) error {
	fs := flag.NewFlagSet("arbor-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.Int("id", 0, "node id assigned by the parent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "id" {
			set = true
		}
	})
	if !set {
		return errors.New("-id is required")
	}
	if cluster.NodeID(*id) == cluster.ControllerID {
		return fmt.Errorf("-id %d is reserved for the controller", *id)
	}

	logger := log.New(stderr, fmt.Sprintf("[node %d] ", *id), log.LstdFlags|log.Lmicroseconds)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	factory := &transport.ProcessFactory{Binary: exe, Stderr: stderr, Logger: logger}

	parent := transport.NewStreamChannel(stdin, stdout, logger)
	defer parent.Close()

	w := worker.New(cluster.NodeID(*id), parent, factory, worker.Options{Logger: logger})
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Printf("stopped by signal")
		return nil
	}
	return err
}
