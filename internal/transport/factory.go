package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dreamware/arbor/internal/cluster"
)

// Spawned is a freshly created node: its process identity and the channel
// to reach it.
type Spawned struct {
	Channel cluster.Channel
	PID     int
}

// Factory creates worker nodes.
type Factory interface {
	Spawn(id cluster.NodeID) (Spawned, error)
}

// ProcessFactory runs each node as a child process speaking JSON lines over
// its stdin and stdout.
type ProcessFactory struct {
	Binary string    // Worker executable
	Args   []string  // Extra arguments placed before -id
	Stderr io.Writer // Child stderr; nil selects os.Stderr
	Logger *log.Logger
}

// Spawn starts Binary with "-id <id>" appended to Args.
//
// Returns:
//   - The child pid and a channel over its stdio
//   - An error if the binary cannot be started
func (f *ProcessFactory) Spawn(id cluster.NodeID) (Spawned, error) {
	args := append(append([]string(nil), f.Args...), "-id", strconv.Itoa(int(id)))
	cmd := exec.Command(f.Binary, args...)
	cmd.Stderr = f.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Spawned{}, fmt.Errorf("spawn %d: stdin: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Spawned{}, fmt.Errorf("spawn %d: stdout: %w", id, err)
	}
	if err := cmd.Start(); err != nil {
		return Spawned{}, fmt.Errorf("spawn %d: %w", id, err)
	}

	logger := f.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("spawned node %d as pid %d (%s)", id, cmd.Process.Pid, f.Binary)

	ch := &processChannel{
		StreamChannel: NewStreamChannel(stdout, stdin, logger),
		cmd:           cmd,
	}
	return Spawned{PID: cmd.Process.Pid, Channel: ch}, nil
}

// processChannel closes the child's stdin and reaps the process on Close.
type processChannel struct {
	*StreamChannel
	cmd *exec.Cmd

	waitOnce sync.Once
	waitErr  error
}

// Close reaps the child even when closing its stdin fails.
func (p *processChannel) Close() error {
	closeErr := p.StreamChannel.Close()
	// The worker exits when its stdin reaches EOF
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return errors.Join(closeErr, p.waitErr)
}

// RunFunc runs a node on the child end of a pipe until ctx is done or the
// channel closes.
type RunFunc func(ctx context.Context, id cluster.NodeID, ch cluster.Channel)

// LocalFactory runs each node as a goroutine on an in-memory Pipe.
// Pids are synthetic and unique per factory.
type LocalFactory struct {
	ctx     context.Context
	run     RunFunc
	nextPID atomic.Int64
}

// NewLocalFactory returns a factory whose nodes stop when ctx is done.
//
// Parameters:
//   - ctx: Lifetime of every spawned node
//   - basePID: First synthetic pid handed out
//   - run: Node body; executed in its own goroutine
func NewLocalFactory(ctx context.Context, basePID int, run RunFunc) *LocalFactory {
	f := &LocalFactory{ctx: ctx, run: run}
	f.nextPID.Store(int64(basePID))
	return f
}

// Spawn starts run on the far end of a new pipe.
func (f *LocalFactory) Spawn(id cluster.NodeID) (Spawned, error) {
	if err := f.ctx.Err(); err != nil {
		return Spawned{}, fmt.Errorf("spawn %d: %w", id, err)
	}
	parentEnd, childEnd := Pipe(DefaultBuffer)
	pid := int(f.nextPID.Add(1) - 1)
	go f.run(f.ctx, id, childEnd)
	return Spawned{PID: pid, Channel: parentEnd}, nil
}
