package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dreamware/arbor/internal/cluster"
	"github.com/dreamware/arbor/internal/coordinator"
	"github.com/dreamware/arbor/internal/metrics"
	"github.com/dreamware/arbor/internal/transport"
)

// DefaultIdleWait bounds how long Run sleeps when neither a node nor the
// operator has anything for it.
const DefaultIdleWait = 10 * time.Millisecond

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	Logger         *log.Logger
	Clock          func() time.Time
	RequestTimeout time.Duration
	IdleWait       time.Duration
	SilenceFactor  int

	// DrainOnClose makes Run return once the commands channel is closed
	// and no request is pending.
	DrainOnClose bool
}

// Controller is the root of the node tree. It owns the registry, the
// pending-request tracker and the heartbeat records, and is the only code
// that touches them: every method must be called from the goroutine running
// the dispatch loop.
type Controller struct {
	registry *coordinator.Registry
	pending  *coordinator.PendingTracker
	beats    *coordinator.HeartbeatMonitor
	factory  transport.Factory
	reporter Reporter
	logger   *log.Logger
	clock    func() time.Time
	idleWait time.Duration
	drain    bool
}

// New creates a controller whose tree contains only itself.
//
// Parameters:
//   - factory: Spawns direct children
//   - reporter: Receives every Ok/Error report
//   - opts: Timeouts, clock and logger
func New(factory transport.Factory, reporter Reporter, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	idle := opts.IdleWait
	if idle <= 0 {
		idle = DefaultIdleWait
	}

	pending := coordinator.NewPendingTracker(opts.RequestTimeout)
	pending.SetLogger(logger)
	beats := coordinator.NewHeartbeatMonitor(opts.SilenceFactor)
	beats.SetLogger(logger)

	return &Controller{
		registry: coordinator.NewRegistry(),
		pending:  pending,
		beats:    beats,
		factory:  factory,
		reporter: reporter,
		logger:   logger,
		clock:    clock,
		idleWait: idle,
		drain:    opts.DrainOnClose,
	}
}

// Registry exposes the known nodes for inspection.
func (c *Controller) Registry() *coordinator.Registry { return c.registry }

// Pending exposes the outstanding requests for inspection.
func (c *Controller) Pending() *coordinator.PendingTracker { return c.pending }

// Heartbeats exposes the liveness records for inspection.
func (c *Controller) Heartbeats() *coordinator.HeartbeatMonitor { return c.beats }

// Run drives the dispatch loop until ctx is done. Each iteration runs a Tick
// and then consumes at most one command; when nothing is ready it waits up to
// the idle interval.
//
// A closed commands channel stops command intake. The loop keeps going
// unless Options.DrainOnClose is set, in which case it returns as soon as
// every outstanding request has been answered or timed out.
//
// Returns:
//   - ctx.Err() once the context is done
//   - nil when drained after the commands channel closed
func (c *Controller) Run(ctx context.Context, commands <-chan Command) error {
	ticker := time.NewTicker(c.idleWait)
	defer ticker.Stop()

	closed := false
	c.logger.Printf("controller loop started (idle wait %v)", c.idleWait)
	for {
		c.Tick()

		if closed && c.drain && c.pending.Len() == 0 {
			c.logger.Printf("controller loop drained")
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Printf("controller loop stopping: %v", ctx.Err())
			return ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				closed = true
				continue
			}
			c.Dispatch(cmd)
		case <-ticker.C:
		}
	}
}

// Tick performs one pass over everything except operator input:
//  1. drain every direct child's channel and handle each reply
//  2. expire pending requests and report timeouts
//  3. report silent nodes when heartbeat monitoring is on
func (c *Controller) Tick() {
	for _, child := range c.registry.Children() {
		for {
			msg, ok := child.Channel.Receive()
			if !ok || msg.Kind == cluster.KindNone {
				break
			}
			c.guard("message", func() { c.HandleMessage(msg) })
		}
	}

	c.guard("timeout sweep", c.sweepTimeouts)

	if c.beats.Enabled() {
		c.guard("heartbeat check", c.checkHeartbeats)
	}
}

// guard keeps a panic in one step from escaping the tick.
func (c *Controller) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("recovered panic in %s: %v", step, r)
			c.report(Report{Outcome: OutcomeInternal, Detail: fmt.Sprintf("%s: %v", step, r)})
		}
	}()
	fn()
}

// HandleMessage classifies one message received from a child.
//
// Replies are matched against the pending tracker first; a reply that
// matches nothing is unsolicited (a stale duplicate, or a second answer to
// a broadcast) and is dropped without a report. Creation acknowledgments
// are the exception: the new node is registered and touched whether or not
// its request is still pending, and reported unless it was already known.
// Heartbeats are never pending and only refresh the sender's liveness record.
func (c *Controller) HandleMessage(msg cluster.Message) {
	now := c.clock()

	switch msg.Kind {
	case cluster.KindCreate:
		if msg.ID == cluster.ControllerID {
			c.logger.Printf("create reply naming the controller dropped")
			return
		}
		// The node exists once its parent says so, even if the request
		// already timed out; otherwise its id could be handed out twice.
		matched := c.resolve(cluster.KindCreate, msg)
		added := true
		if err := c.registry.Register(msg.ID); err != nil {
			if !errors.Is(err, coordinator.ErrDuplicateID) {
				panic(err)
			}
			added = false
		}
		c.beats.Touch(msg.ID, now)
		metrics.SetRegisteredNodes(c.registry.Len() - 1)
		if matched || added {
			c.report(Report{Outcome: OutcomeCreated, Node: msg.ID, PID: msg.Aux})
		}

	case cluster.KindPing:
		if c.resolve(cluster.KindPing, msg) {
			c.report(Report{Outcome: OutcomeAvailable, Node: msg.ID})
		}

	case cluster.KindExecAdd:
		if c.resolve(cluster.KindExecAdd, msg) {
			c.report(Report{Outcome: OutcomeAdded, Node: msg.ID})
		}

	case cluster.KindExecFound:
		if c.resolve(cluster.KindExecFind, msg) {
			c.report(Report{Outcome: OutcomeFound, Node: msg.ID, Key: msg.Key, Value: msg.Value})
		}

	case cluster.KindExecNotFound:
		if c.resolve(cluster.KindExecFind, msg) {
			c.report(Report{Outcome: OutcomeNotFound, Node: msg.ID, Key: msg.Key})
		}

	case cluster.KindHeartbeat:
		if !c.registry.Contains(msg.ID) {
			c.logger.Printf("heartbeat from unknown node %d dropped", msg.ID)
			return
		}
		c.beats.Touch(msg.ID, now)
		c.report(Report{Outcome: OutcomeBeat, Node: msg.ID})

	case cluster.KindExecFind, cluster.KindNone:
		c.logger.Printf("unexpected %s message from node %d dropped", msg.Kind, msg.ID)

	default:
		c.logger.Printf("unknown message kind %d from node %d dropped", int(msg.Kind), msg.ID)
	}
}

// resolve clears the pending entry of kind acknowledged by msg and reports
// whether there was one.
func (c *Controller) resolve(kind cluster.Kind, msg cluster.Message) bool {
	_, ok := c.pending.Resolve(kind, msg.ID)
	metrics.RecordReply(msg.Kind.String(), ok)
	if !ok {
		c.logger.Printf("unsolicited %s reply from node %d", msg.Kind, msg.ID)
		return false
	}
	metrics.SetPendingRequests(c.pending.Len())
	return true
}

func (c *Controller) sweepTimeouts() {
	expired := c.pending.SweepExpired(c.clock())
	if len(expired) == 0 {
		return
	}
	for _, req := range expired {
		metrics.RecordTimeout(req.Kind.String())
		switch req.Kind {
		case cluster.KindCreate:
			c.report(Report{Outcome: OutcomeParentUnavailable, Node: req.ID})
		default:
			c.report(Report{Outcome: OutcomeNodeUnavailable, Node: req.ID})
		}
	}
	metrics.SetPendingRequests(c.pending.Len())
}

func (c *Controller) checkHeartbeats() {
	for _, id := range c.beats.CheckSilence(c.clock()) {
		metrics.RecordSilence()
		c.report(Report{Outcome: OutcomeSilent, Node: id})
	}
}

// Dispatch validates and executes one operator command. Validation failures
// are reported and leave all state untouched.
func (c *Controller) Dispatch(cmd Command) {
	c.guard("command", func() {
		switch cmd := cmd.(type) {
		case Create:
			c.create(cmd)
		case Ping:
			if c.requireNode(cmd.ID) {
				c.broadcastRequest(cluster.NewPing(cmd.ID))
			}
		case Exec:
			if !c.requireNode(cmd.ID) {
				return
			}
			if cmd.HasValue {
				c.broadcastRequest(cluster.NewExecAdd(cmd.ID, cmd.Key, cmd.Value))
			} else {
				c.broadcastRequest(cluster.NewExecFind(cmd.ID, cmd.Key))
			}
		case Heartbeat:
			msg := c.beats.Enable(cmd.Interval, c.clock())
			c.broadcast(msg)
		case Unknown:
			c.logger.Printf("unknown command %q", cmd.Name)
			c.report(Report{Outcome: OutcomeUnknownCommand, Detail: cmd.Name})
		case Invalid:
			c.report(Report{Outcome: OutcomeMalformed, Detail: cmd.Reason})
		case nil:
			c.report(Report{Outcome: OutcomeMalformed, Detail: "empty command"})
		default:
			panic(fmt.Sprintf("unhandled command type %T", cmd))
		}
	})
}

func (c *Controller) create(cmd Create) {
	if c.registry.Contains(cmd.Child) {
		c.report(Report{Outcome: OutcomeDuplicateID, Node: cmd.Child})
		return
	}
	if !c.registry.Contains(cmd.Parent) {
		c.report(Report{Outcome: OutcomeParentNotFound, Node: cmd.Parent})
		return
	}

	if cmd.Parent != cluster.ControllerID {
		c.broadcastRequest(cluster.NewCreate(cmd.Parent, cmd.Child))
		return
	}

	// Direct children are spawned synchronously: no request/reply round trip.
	spawned, err := c.factory.Spawn(cmd.Child)
	if err != nil {
		c.logger.Printf("spawn node %d: %v", cmd.Child, err)
		c.report(Report{Outcome: OutcomeSpawnFailed, Node: cmd.Child, Detail: err.Error()})
		return
	}
	if err := c.registry.Register(cmd.Child); err != nil {
		// Checked above; only reachable through a defect.
		_ = spawned.Channel.Close()
		panic(err)
	}
	if err := c.registry.AddChild(cmd.Child, spawned.Channel, spawned.PID); err != nil {
		panic(err)
	}
	c.beats.Touch(cmd.Child, c.clock())
	metrics.SetRegisteredNodes(c.registry.Len() - 1)

	// A child born after monitoring was enabled still needs the interval.
	if c.beats.Enabled() {
		if err := spawned.Channel.Send(cluster.NewHeartbeatConfig(c.beats.Interval())); err != nil {
			c.logger.Printf("send heartbeat config to node %d: %v", cmd.Child, err)
		}
	}
	c.report(Report{Outcome: OutcomeCreated, Node: cmd.Child, PID: spawned.PID})
}

func (c *Controller) requireNode(id cluster.NodeID) bool {
	if c.registry.Contains(id) {
		return true
	}
	c.report(Report{Outcome: OutcomeNodeNotFound, Node: id})
	return false
}

// broadcastRequest tracks msg as pending and forwards it to every direct
// child. One entry is tracked regardless of fan-out.
func (c *Controller) broadcastRequest(msg cluster.Message) {
	c.pending.Track(msg, c.clock())
	metrics.RecordRequest(msg.Kind.String())
	metrics.SetPendingRequests(c.pending.Len())
	c.broadcast(msg)
}

// broadcast sends msg to every direct child. Send failures are logged only:
// an unanswered request surfaces through the timeout sweep.
func (c *Controller) broadcast(msg cluster.Message) {
	for _, child := range c.registry.Children() {
		if err := child.Channel.Send(msg); err != nil {
			if errors.Is(err, cluster.ErrChannelClosed) {
				c.logger.Printf("node %d channel closed, %s not delivered", child.ID, msg.Kind)
				continue
			}
			c.logger.Printf("send %s to node %d: %v", msg.Kind, child.ID, err)
		}
	}
}

// Close shuts every direct child's channel.
func (c *Controller) Close() error {
	var errs []error
	for _, child := range c.registry.Children() {
		if err := child.Channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close node %d: %w", child.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) report(r Report) {
	if r.Outcome.IsError() {
		c.logger.Printf("report: %s", r)
	}
	c.reporter.Report(r)
}
