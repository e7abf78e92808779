// Package main implements the arbor controller, the operator-facing root of
// the control tree.
//
// The controller reads one command per line on stdin, prints one Ok/Error
// report per line on stdout and logs to stderr. Direct children are spawned
// as arbor-worker processes; deeper nodes are created by their parents.
//
// Commands:
//
//	create <id> <parent>    create node id under parent (-1 is the controller)
//	ping <id>               check that node id answers
//	exec <id> <key> [value] store key=value on node id, or look key up
//	heartbeat <ms>          start heartbeat monitoring (0 disables)
//
// Configuration:
//   - -config: Optional TOML file (see internal/config)
//   - ARBOR_REQUEST_TIMEOUT, ARBOR_SILENCE_FACTOR, ARBOR_IDLE_WAIT
//   - ARBOR_WORKER_BINARY: Worker executable (default: "arbor-worker")
//   - ARBOR_METRICS_ADDR: Serve Prometheus metrics on this address
//
// Example usage:
//
//	printf 'create 1 -1\ncreate 2 1\nexec 2 x 5\nexec 2 x\n' | ./arbor-controller
//	Ok: 41021
//	Ok: 41022
//	Ok: 2
//	Ok: 2 'x' 5
//
// End of input stops intake; the controller exits once every outstanding
// request has been answered or timed out. SIGINT/SIGTERM stop it at once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/arbor/internal/command"
	"github.com/dreamware/arbor/internal/config"
	"github.com/dreamware/arbor/internal/controller"
	"github.com/dreamware/arbor/internal/transport"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		logFatal("controller: %v", err)
	}
}

// run wires config, factory, reporter and metrics together and drives the
// dispatch loop until input is drained or ctx is cancelled.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("arbor-controller", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := log.New(stderr, "[controller] ", log.LstdFlags|log.Lmicroseconds)

	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr)
		go func() {
			logger.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	factory := &transport.ProcessFactory{Binary: cfg.WorkerBinary, Stderr: stderr, Logger: logger}
	ctl := controller.New(factory, controller.NewWriterReporter(stdout), controller.Options{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		IdleWait:       cfg.IdleWait,
		SilenceFactor:  cfg.SilenceFactor,
		DrainOnClose:   true,
	})
	defer func() {
		if err := ctl.Close(); err != nil {
			logger.Printf("close children: %v", err)
		}
	}()

	commands := make(chan controller.Command)
	go func() {
		if err := command.Feed(ctx, stdin, commands); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("read commands: %v", err)
		}
	}()

	err = ctl.Run(ctx, commands)
	if errors.Is(err, context.Canceled) {
		logger.Printf("stopped by signal")
		return nil
	}
	if err != nil {
		return fmt.Errorf("dispatch loop: %w", err)
	}
	return nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
