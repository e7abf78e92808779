package controller

import (
	"fmt"
	"io"
	"sync"

	"github.com/dreamware/arbor/internal/cluster"
)

// Outcome classifies a report.
type Outcome int

const (
	// Successes
	OutcomeCreated Outcome = iota
	OutcomeAvailable
	OutcomeAdded
	OutcomeFound
	OutcomeNotFound
	OutcomeBeat

	// Validation errors, raised synchronously when a command is issued
	OutcomeDuplicateID
	OutcomeParentNotFound
	OutcomeNodeNotFound
	OutcomeUnknownCommand
	OutcomeMalformed
	OutcomeSpawnFailed

	// Timeout errors, raised by the pending sweep
	OutcomeNodeUnavailable
	OutcomeParentUnavailable

	// Liveness errors, raised by the heartbeat check
	OutcomeSilent

	// Internal is a recovered programming defect
	OutcomeInternal
)

// IsError reports whether the outcome is a failure.
func (o Outcome) IsError() bool {
	return o >= OutcomeDuplicateID
}

// Report is one operator-facing result line.
type Report struct {
	Detail  string // Free text for malformed input, spawn and internal failures
	Key     string
	Outcome Outcome
	Node    cluster.NodeID
	Value   int
	PID     int
}

// String renders the report the way the operator console prints it, tagged
// "Ok:" or "Error:".
func (r Report) String() string {
	switch r.Outcome {
	case OutcomeCreated:
		return fmt.Sprintf("Ok: %d", r.PID)
	case OutcomeAvailable:
		return fmt.Sprintf("Ok: %d is available", r.Node)
	case OutcomeAdded:
		return fmt.Sprintf("Ok: %d", r.Node)
	case OutcomeFound:
		return fmt.Sprintf("Ok: %d '%s' %d", r.Node, r.Key, r.Value)
	case OutcomeNotFound:
		return fmt.Sprintf("Ok: %d '%s' not found", r.Node, r.Key)
	case OutcomeBeat:
		return fmt.Sprintf("Ok: %d got beat", r.Node)
	case OutcomeDuplicateID:
		return fmt.Sprintf("Error: Node with id %d already exists", r.Node)
	case OutcomeParentNotFound:
		return fmt.Sprintf("Error: Parent with id %d not found", r.Node)
	case OutcomeNodeNotFound:
		return fmt.Sprintf("Error: Node with id %d doesn't exist", r.Node)
	case OutcomeUnknownCommand:
		return "Error: Command doesn't exist!"
	case OutcomeMalformed:
		return fmt.Sprintf("Error: %s", r.Detail)
	case OutcomeSpawnFailed:
		return fmt.Sprintf("Error: Cannot create node %d: %s", r.Node, r.Detail)
	case OutcomeNodeUnavailable:
		return fmt.Sprintf("Error: Node %d is unavailable", r.Node)
	case OutcomeParentUnavailable:
		return fmt.Sprintf("Error: Parent %d is unavailable", r.Node)
	case OutcomeSilent:
		return fmt.Sprintf("Error: Node %d has no heartbeat", r.Node)
	case OutcomeInternal:
		return fmt.Sprintf("Error: internal: %s", r.Detail)
	}
	return fmt.Sprintf("Error: unknown outcome %d", int(r.Outcome))
}

// Reporter receives every report the controller emits.
type Reporter interface {
	Report(r Report)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(r Report)

// Report calls f(r).
func (f ReporterFunc) Report(r Report) {
	f(r)
}

// WriterReporter prints one line per report.
type WriterReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterReporter returns a Reporter printing to w.
func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{w: w}
}

// Report writes r followed by a newline.
func (p *WriterReporter) Report(r Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, r.String())
}
