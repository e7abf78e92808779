package controller

import (
	"time"

	"github.com/dreamware/arbor/internal/cluster"
)

// Command is an operator request that has already been parsed.
// The set of variants is closed: Create, Ping, Exec, Heartbeat, Unknown
// and Invalid.
type Command interface {
	command()
}

// Create asks Parent to spawn a new node with id Child.
type Create struct {
	Child  cluster.NodeID
	Parent cluster.NodeID
}

// Ping checks whether ID answers.
type Ping struct {
	ID cluster.NodeID
}

// Exec stores Value under Key on node ID when HasValue is set, and looks
// Key up otherwise.
type Exec struct {
	Key      string
	ID       cluster.NodeID
	Value    int
	HasValue bool
}

// Heartbeat sets the liveness interval for the whole tree. A non-positive
// interval disables monitoring.
type Heartbeat struct {
	Interval time.Duration
}

// Unknown is an input the parser did not recognise.
type Unknown struct {
	Name string
}

// Invalid is an input with a known verb but unusable arguments.
type Invalid struct {
	Reason string
}

func (Create) command()    {}
func (Ping) command()      {}
func (Exec) command()      {}
func (Heartbeat) command() {}
func (Unknown) command()   {}
func (Invalid) command()   {}
