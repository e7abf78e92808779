// Package coordinator holds the state the controller keeps about the node
// tree: who exists, which requests are still waiting for an answer, and
// when each node last proved it was alive.
//
// # Overview
//
// The controller only talks to its direct children. Every request is
// broadcast to all of them and flooded down the tree; the addressed node
// answers and the reply climbs back to the controller. Because of that the
// controller never needs the shape of the tree, only the set of known ids
// and the channels of its own children.
//
//	┌───────────────────────────────────────┐
//	│              CONTROLLER               │
//	├───────────────────────────────────────┤
//	│  Registry          ids + children     │
//	│  PendingTracker    requests in flight │
//	│  HeartbeatMonitor  last-seen per node │
//	└───────────────────────────────────────┘
//	        │ broadcast          ▲ replies
//	        ▼                    │
//	     children ... grandchildren ...
//
// # Registry
//
// Registry is the set of node ids known to exist, seeded with the
// controller's own id (-1), together with the ordered list of direct
// children. Ids are only ever added: a node is registered when the
// controller spawns it or when a creation acknowledgment arrives.
//
// # Pending requests
//
// PendingTracker keeps every request still waiting for a reply in send
// order. A reply resolves the oldest entry of the same kind for the same
// node; a creation acknowledgment matches on the new child's id. Entries
// older than the timeout are swept out and reported as unavailable.
//
// # Heartbeats
//
// HeartbeatMonitor records the last liveness signal per node. Once an
// interval is set, any node quiet for longer than factor*interval is
// reported, and its record is reset so the report repeats once per window
// while the silence lasts.
//
// # Concurrency
//
// None of the types here lock. They are owned by the dispatch loop and
// must only be used from its goroutine.
package coordinator
