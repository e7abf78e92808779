// Package command turns operator input lines into controller commands.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dreamware/arbor/internal/cluster"
	"github.com/dreamware/arbor/internal/controller"
)

// ErrMalformedCommand is returned when a known verb has unusable arguments.
var ErrMalformedCommand = errors.New("malformed command")

// ErrEmptyLine is returned for blank input, which callers skip.
var ErrEmptyLine = errors.New("empty line")

// Parse converts one input line.
//
// Accepted forms:
//
//	create <childId> <parentId>
//	ping <id>
//	exec <id> <key> [<value>]
//	heartbeat <intervalMs>
//
// Unknown verbs yield controller.Unknown with a nil error; the controller
// reports them.
func Parse(line string) (controller.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyLine
	}
	verb, args := fields[0], fields[1:]

	switch verb {
	case "create":
		if len(args) != 2 {
			return nil, usage(verb, "create <childId> <parentId>")
		}
		child, err := parseID(verb, "childId", args[0])
		if err != nil {
			return nil, err
		}
		parent, err := parseID(verb, "parentId", args[1])
		if err != nil {
			return nil, err
		}
		return controller.Create{Child: child, Parent: parent}, nil

	case "ping":
		if len(args) != 1 {
			return nil, usage(verb, "ping <id>")
		}
		id, err := parseID(verb, "id", args[0])
		if err != nil {
			return nil, err
		}
		return controller.Ping{ID: id}, nil

	case "exec":
		if len(args) != 2 && len(args) != 3 {
			return nil, usage(verb, "exec <id> <key> [<value>]")
		}
		id, err := parseID(verb, "id", args[0])
		if err != nil {
			return nil, err
		}
		cmd := controller.Exec{ID: id, Key: args[1]}
		if len(args) == 3 {
			value, err := strconv.Atoi(args[2])
			if err != nil {
				return nil, fmt.Errorf("%s: value %q is not an integer: %w", verb, args[2], ErrMalformedCommand)
			}
			cmd.Value, cmd.HasValue = value, true
		}
		return cmd, nil

	case "heartbeat":
		if len(args) != 1 {
			return nil, usage(verb, "heartbeat <intervalMs>")
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: interval %q is not an integer: %w", verb, args[0], ErrMalformedCommand)
		}
		return controller.Heartbeat{Interval: time.Duration(ms) * time.Millisecond}, nil
	}

	return controller.Unknown{Name: verb}, nil
}

func parseID(verb, name, s string) (cluster.NodeID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %s %q is not an integer: %w", verb, name, s, ErrMalformedCommand)
	}
	return cluster.NodeID(n), nil
}

func usage(verb, form string) error {
	return fmt.Errorf("%s: usage: %s: %w", verb, form, ErrMalformedCommand)
}

// Feed reads r line by line and sends one command per non-blank line to out.
// Malformed lines are delivered as controller.Invalid so the controller
// reports them in order with everything else.
//
// Feed closes out when r is exhausted or ctx is done.
//
// Returns:
//   - nil at EOF, ctx.Err() on cancellation, or the read error
func Feed(ctx context.Context, r io.Reader, out chan<- controller.Command) error {
	defer close(out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, err := Parse(scanner.Text())
		if errors.Is(err, ErrEmptyLine) {
			continue
		}
		if err != nil {
			cmd = controller.Invalid{Reason: err.Error()}
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
