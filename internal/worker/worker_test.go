package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/arbor/internal/cluster"
	"github.com/dreamware/arbor/internal/transport"
)

// pipeFactory hands out pipes; the test plays the spawned nodes.
type pipeFactory struct {
	nodes   map[cluster.NodeID]cluster.Channel
	err     error
	nextPID int
}

func (f *pipeFactory) Spawn(id cluster.NodeID) (transport.Spawned, error) {
	if f.err != nil {
		return transport.Spawned{}, f.err
	}
	parentEnd, childEnd := transport.Pipe(16)
	f.nodes[id] = childEnd
	f.nextPID++
	return transport.Spawned{PID: f.nextPID, Channel: parentEnd}, nil
}

type fixture struct {
	w       *Worker
	up      cluster.Channel // the parent's side
	factory *pipeFactory
	now     time.Time
}

func newFixture(t *testing.T, id cluster.NodeID) *fixture {
	t.Helper()
	up, down := transport.Pipe(16)
	f := &fixture{
		up:      up,
		factory: &pipeFactory{nodes: map[cluster.NodeID]cluster.Channel{}, nextPID: 900},
		now:     time.Unix(1_700_000_000, 0),
	}
	f.w = New(id, down, f.factory, Options{
		Logger: log.New(io.Discard, "", 0),
		Clock:  func() time.Time { return f.now },
	})
	return f
}

// send delivers msg from the parent and runs one tick.
func (f *fixture) send(t *testing.T, msg cluster.Message) []cluster.Message {
	t.Helper()
	require.NoError(t, f.up.Send(msg))
	f.w.Tick()
	return drain(f.up)
}

func drain(ch cluster.Channel) []cluster.Message {
	var out []cluster.Message
	for {
		msg, ok := ch.Receive()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestPingSelf(t *testing.T) {
	f := newFixture(t, 1)

	replies := f.send(t, cluster.NewPing(1))
	require.Len(t, replies, 1)
	assert.Equal(t, cluster.Message{Kind: cluster.KindPing, ID: 1}, replies[0])
}

func TestExecOnSelf(t *testing.T) {
	f := newFixture(t, 1)

	replies := f.send(t, cluster.NewExecAdd(1, "x", 5))
	require.Len(t, replies, 1)
	assert.Equal(t, cluster.Message{Kind: cluster.KindExecAdd, ID: 1}, replies[0])

	value, err := f.w.Store().Get("x")
	require.NoError(t, err)
	assert.Equal(t, 5, value)

	replies = f.send(t, cluster.NewExecFind(1, "x"))
	require.Len(t, replies, 1)
	assert.Equal(t, cluster.Message{Kind: cluster.KindExecFound, ID: 1, Key: "x", Value: 5}, replies[0])

	replies = f.send(t, cluster.NewExecFind(1, "y"))
	require.Len(t, replies, 1)
	assert.Equal(t, cluster.Message{Kind: cluster.KindExecNotFound, ID: 1, Key: "y"}, replies[0])
}

func TestCreateChild(t *testing.T) {
	f := newFixture(t, 1)

	replies := f.send(t, cluster.NewCreate(1, 2))
	require.Len(t, replies, 1)
	assert.Equal(t, cluster.Message{Kind: cluster.KindCreate, ID: 2, Aux: 901}, replies[0])
	assert.Equal(t, []cluster.NodeID{2}, f.w.Children())
}

func TestCreateSpawnFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.factory.err = errors.New("no fork")

	replies := f.send(t, cluster.NewCreate(1, 2))
	assert.Empty(t, replies)
	assert.Empty(t, f.w.Children())
}

func TestForwarding(t *testing.T) {
	f := newFixture(t, 1)
	f.send(t, cluster.NewCreate(1, 2))
	f.send(t, cluster.NewCreate(1, 3))
	grandchild := f.factory.nodes[2]
	other := f.factory.nodes[3]

	// Requests for other ids go to every child, nothing is answered locally
	replies := f.send(t, cluster.NewPing(7))
	assert.Empty(t, replies)
	assert.Equal(t, []cluster.Message{cluster.NewPing(7)}, drain(grandchild))
	assert.Equal(t, []cluster.Message{cluster.NewPing(7)}, drain(other))

	// A nested create addressed to node 2 is forwarded too
	f.send(t, cluster.NewCreate(2, 7))
	assert.Equal(t, []cluster.Message{cluster.NewCreate(2, 7)}, drain(grandchild))
	assert.Len(t, f.w.Children(), 2)

	// Children's replies are relayed unchanged
	require.NoError(t, grandchild.Send(cluster.Message{Kind: cluster.KindCreate, ID: 7, Aux: 1234}))
	require.NoError(t, other.Send(cluster.Message{Kind: cluster.KindHeartbeat, ID: 3}))
	f.w.Tick()
	assert.Equal(t, []cluster.Message{
		{Kind: cluster.KindCreate, ID: 7, Aux: 1234},
		{Kind: cluster.KindHeartbeat, ID: 3},
	}, drain(f.up))
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, 1)
	f.send(t, cluster.NewCreate(1, 2))
	child := f.factory.nodes[2]

	replies := f.send(t, cluster.NewHeartbeatConfig(100*time.Millisecond))
	assert.Empty(t, replies, "first beat waits one interval")
	assert.Equal(t, 100*time.Millisecond, f.w.Interval())
	assert.Equal(t, []cluster.Message{cluster.NewHeartbeatConfig(100 * time.Millisecond)}, drain(child))

	f.now = f.now.Add(99 * time.Millisecond)
	f.w.Tick()
	assert.Empty(t, drain(f.up))

	f.now = f.now.Add(time.Millisecond)
	f.w.Tick()
	assert.Equal(t, []cluster.Message{{Kind: cluster.KindHeartbeat, ID: 1}}, drain(f.up))

	// Children created later inherit the interval
	f.send(t, cluster.NewCreate(1, 3))
	assert.Equal(t, []cluster.Message{cluster.NewHeartbeatConfig(100 * time.Millisecond)}, drain(f.factory.nodes[3]))

	// Disabling stops the beat
	f.send(t, cluster.NewHeartbeatConfig(0))
	f.now = f.now.Add(time.Hour)
	f.w.Tick()
	assert.Empty(t, drain(f.up))
}

func TestUnexpectedFromParent(t *testing.T) {
	f := newFixture(t, 1)
	replies := f.send(t, cluster.Message{Kind: cluster.KindExecFound, ID: 1})
	assert.Empty(t, replies)
}

func TestRunStopsWhenParentCloses(t *testing.T) {
	up, down := transport.Pipe(4)
	factory := &pipeFactory{nodes: map[cluster.NodeID]cluster.Channel{}}
	var logs bytes.Buffer
	w := New(1, down, factory, Options{Logger: log.New(&logs, "", 0), IdleWait: time.Millisecond})
	require.NoError(t, w.Store().Put("k", 1))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.NoError(t, up.Send(cluster.NewCreate(1, 2)))
	require.Eventually(t, func() bool {
		msg, ok := up.Receive()
		return ok && msg.Kind == cluster.KindCreate
	}, time.Second, time.Millisecond)

	require.NoError(t, up.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Contains(t, logs.String(), "stopping with 1 keys")

	// The worker closed its own child on the way out
	assert.ErrorIs(t, factory.nodes[2].Send(cluster.NewPing(2)), cluster.ErrChannelClosed)
}

func TestLocalTree(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := NewLocalFactory(ctx, 100, Options{Logger: log.New(io.Discard, "", 0), IdleWait: time.Millisecond})
	root, err := factory.Spawn(1)
	require.NoError(t, err)

	await := func(kind cluster.Kind) cluster.Message {
		var got cluster.Message
		require.Eventually(t, func() bool {
			msg, ok := root.Channel.Receive()
			if ok && msg.Kind == kind {
				got = msg
				return true
			}
			return false
		}, 2*time.Second, time.Millisecond)
		return got
	}

	require.NoError(t, root.Channel.Send(cluster.NewCreate(1, 2)))
	created := await(cluster.KindCreate)
	assert.Equal(t, cluster.NodeID(2), created.ID)
	assert.Equal(t, 101, created.Aux)

	require.NoError(t, root.Channel.Send(cluster.NewExecAdd(2, "k", 9)))
	await(cluster.KindExecAdd)

	require.NoError(t, root.Channel.Send(cluster.NewExecFind(2, "k")))
	found := await(cluster.KindExecFound)
	assert.Equal(t, cluster.NodeID(2), found.ID)
	assert.Equal(t, 9, found.Value)
}
