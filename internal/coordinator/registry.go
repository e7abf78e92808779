package coordinator

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/dreamware/arbor/internal/cluster"
)

// ErrDuplicateID is returned when registering an id that is already known.
var ErrDuplicateID = errors.New("node id already exists")

// Child is a direct child of the controller: a node created with the
// controller as its immediate parent and reachable through its own channel.
type Child struct {
	Channel cluster.Channel // Point-to-point channel to the child process
	ID      cluster.NodeID  // Operator-assigned identity
	PID     int             // Process identity reported by the node factory
}

// Registry tracks every known node id in the tree plus the handles of the
// controller's direct children.
//
// An id is a member if and only if its creation completed successfully, or
// it is the controller's own id. Deeper descendants are registered when their
// creation is acknowledged; only direct children carry a channel.
//
// Registry is owned by the dispatch loop and is not safe for concurrent use.
type Registry struct {
	ids      map[cluster.NodeID]struct{} // All known node ids, including the controller
	children []Child                     // Direct children in creation order
}

// NewRegistry creates a registry that contains exactly the controller itself
// and no children.
//
// Example:
//
//	reg := NewRegistry()
//	reg.Contains(cluster.ControllerID) // true
func NewRegistry() *Registry {
	return &Registry{
		ids: map[cluster.NodeID]struct{}{
			cluster.ControllerID: {},
		},
	}
}

// Register adds id to the set of known nodes.
//
// Returns:
//   - ErrDuplicateID if id is already present; the registry is left unchanged
func (r *Registry) Register(id cluster.NodeID) error {
	if r.Contains(id) {
		return fmt.Errorf("register %d: %w", id, ErrDuplicateID)
	}
	r.ids[id] = struct{}{}
	return nil
}

// Contains reports whether id is a known node.
func (r *Registry) Contains(id cluster.NodeID) bool {
	_, ok := r.ids[id]
	return ok
}

// AddChild records the channel of a direct child. It is only called for
// nodes whose parent is the controller, after the id has been registered.
//
// Returns:
//   - ErrDuplicateID if a channel for id is already recorded
func (r *Registry) AddChild(id cluster.NodeID, ch cluster.Channel, pid int) error {
	if slices.IndexFunc(r.children, func(c Child) bool { return c.ID == id }) >= 0 {
		return fmt.Errorf("add child %d: %w", id, ErrDuplicateID)
	}
	r.children = append(r.children, Child{ID: id, Channel: ch, PID: pid})
	return nil
}

// Children returns the direct children in creation order.
// The slice is a copy; the channels are shared.
func (r *Registry) Children() []Child {
	return slices.Clone(r.children)
}

// IDs returns every known id in ascending order, the controller included.
func (r *Registry) IDs() []cluster.NodeID {
	ids := make([]cluster.NodeID, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of known ids, the controller included.
func (r *Registry) Len() int {
	return len(r.ids)
}
