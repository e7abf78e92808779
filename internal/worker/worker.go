// Package worker implements a node of the control tree.
//
// A worker answers requests addressed to itself, forwards everything else
// to its own children, relays its children's replies and heartbeats up to
// its parent, and beats on its own at the interval its parent configured.
// Routing is flooding: a request travels down every branch and only the
// addressed node answers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dreamware/arbor/internal/cluster"
	"github.com/dreamware/arbor/internal/storage"
	"github.com/dreamware/arbor/internal/transport"
)

// DefaultIdleWait bounds how long Run sleeps when nothing arrived.
const DefaultIdleWait = 5 * time.Millisecond

// Options tunes a Worker. Zero values select the defaults.
type Options struct {
	Store    storage.Store
	Logger   *log.Logger
	Clock    func() time.Time
	IdleWait time.Duration
}

type child struct {
	channel cluster.Channel
	id      cluster.NodeID
	pid     int
}

// Worker is a single node. Like the controller it is driven by one loop and
// is not safe for concurrent use.
type Worker struct {
	parent   cluster.Channel
	store    storage.Store
	factory  transport.Factory
	logger   *log.Logger
	clock    func() time.Time
	lastBeat time.Time
	children []child
	interval time.Duration
	idleWait time.Duration
	id       cluster.NodeID
}

// New creates a worker with identity id talking to its parent over parent.
// Children are spawned through factory.
func New(id cluster.NodeID, parent cluster.Channel, factory transport.Factory, opts Options) *Worker {
	w := &Worker{
		id:       id,
		parent:   parent,
		factory:  factory,
		store:    opts.Store,
		logger:   opts.Logger,
		clock:    opts.Clock,
		idleWait: opts.IdleWait,
	}
	if w.store == nil {
		w.store = storage.NewMemoryStore()
	}
	if w.logger == nil {
		w.logger = log.Default()
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	if w.idleWait <= 0 {
		w.idleWait = DefaultIdleWait
	}
	return w
}

// ID returns the worker's identity.
func (w *Worker) ID() cluster.NodeID { return w.id }

// Store returns the worker's key-value state.
func (w *Worker) Store() storage.Store { return w.store }

// Interval returns the heartbeat interval; zero when beating is off.
func (w *Worker) Interval() time.Duration { return w.interval }

// Children returns the ids of the worker's direct children in creation order.
func (w *Worker) Children() []cluster.NodeID {
	ids := make([]cluster.NodeID, len(w.children))
	for i, c := range w.children {
		ids[i] = c.id
	}
	return ids
}

// Run ticks until ctx is done or the parent channel reports it has closed,
// then closes the children.
func (w *Worker) Run(ctx context.Context) error {
	defer w.Close()

	var parentDone <-chan struct{}
	if d, ok := w.parent.(interface{ Done() <-chan struct{} }); ok {
		parentDone = d.Done()
	}

	ticker := time.NewTicker(w.idleWait)
	defer ticker.Stop()

	w.logger.Printf("node %d running", w.id)
	for {
		w.Tick()

		select {
		case <-ctx.Done():
			w.logger.Printf("node %d: stopping with %d keys: %v", w.id, w.store.Len(), ctx.Err())
			return ctx.Err()
		case <-parentDone:
			// Handle whatever was buffered before the parent went away
			w.Tick()
			w.logger.Printf("node %d: parent channel closed, stopping with %d keys", w.id, w.store.Len())
			return nil
		case <-ticker.C:
		}
	}
}

// Tick drains the parent channel, relays children's messages upward and
// sends a heartbeat when one is due.
func (w *Worker) Tick() {
	for {
		msg, ok := w.parent.Receive()
		if !ok {
			break
		}
		w.handleFromParent(msg)
	}

	for _, c := range w.children {
		for {
			msg, ok := c.channel.Receive()
			if !ok {
				break
			}
			w.sendParent(msg)
		}
	}

	w.maybeBeat()
}

func (w *Worker) handleFromParent(msg cluster.Message) {
	switch msg.Kind {
	case cluster.KindHeartbeat:
		w.setInterval(time.Duration(msg.Value) * time.Millisecond)
		w.forward(msg)
		return
	case cluster.KindCreate, cluster.KindPing, cluster.KindExecAdd, cluster.KindExecFind:
	default:
		w.logger.Printf("node %d: unexpected %s from parent dropped", w.id, msg.Kind)
		return
	}

	if msg.ID != w.id {
		w.forward(msg)
		return
	}

	switch msg.Kind {
	case cluster.KindCreate:
		w.spawn(cluster.NodeID(msg.Aux))
	case cluster.KindPing:
		w.sendParent(cluster.Message{Kind: cluster.KindPing, ID: w.id})
	case cluster.KindExecAdd:
		if err := w.store.Put(msg.Key, msg.Value); err != nil {
			w.logger.Printf("node %d: put %q: %v", w.id, msg.Key, err)
			return
		}
		w.sendParent(cluster.Message{Kind: cluster.KindExecAdd, ID: w.id})
	case cluster.KindExecFind:
		value, err := w.store.Get(msg.Key)
		switch {
		case errors.Is(err, storage.ErrKeyNotFound):
			w.sendParent(cluster.Message{Kind: cluster.KindExecNotFound, ID: w.id, Key: msg.Key})
		case err != nil:
			w.logger.Printf("node %d: get %q: %v", w.id, msg.Key, err)
		default:
			w.sendParent(cluster.Message{Kind: cluster.KindExecFound, ID: w.id, Key: msg.Key, Value: value})
		}
	}
}

// spawn creates a direct child and acknowledges with its pid. A failed spawn
// is not acknowledged; the controller reports the parent unavailable.
func (w *Worker) spawn(id cluster.NodeID) {
	spawned, err := w.factory.Spawn(id)
	if err != nil {
		w.logger.Printf("node %d: spawn %d: %v", w.id, id, err)
		return
	}
	w.children = append(w.children, child{id: id, channel: spawned.Channel, pid: spawned.PID})
	if w.interval > 0 {
		if err := spawned.Channel.Send(cluster.NewHeartbeatConfig(w.interval)); err != nil {
			w.logger.Printf("node %d: configure heartbeat on %d: %v", w.id, id, err)
		}
	}
	w.sendParent(cluster.Message{Kind: cluster.KindCreate, ID: id, Aux: spawned.PID})
}

func (w *Worker) setInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	w.interval = d
	w.lastBeat = w.clock()
}

func (w *Worker) maybeBeat() {
	if w.interval <= 0 {
		return
	}
	now := w.clock()
	if now.Sub(w.lastBeat) < w.interval {
		return
	}
	w.lastBeat = now
	w.sendParent(cluster.Message{Kind: cluster.KindHeartbeat, ID: w.id})
}

func (w *Worker) forward(msg cluster.Message) {
	for _, c := range w.children {
		if err := c.channel.Send(msg); err != nil {
			w.logger.Printf("node %d: forward %s to %d: %v", w.id, msg.Kind, c.id, err)
		}
	}
}

func (w *Worker) sendParent(msg cluster.Message) {
	if err := w.parent.Send(msg); err != nil {
		w.logger.Printf("node %d: send %s upstream: %v", w.id, msg.Kind, err)
	}
}

// Close closes every child channel.
func (w *Worker) Close() error {
	var errs []error
	for _, c := range w.children {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close node %d: %w", c.id, err))
		}
	}
	w.children = nil
	return errors.Join(errs...)
}
