package transport

import (
	"bytes"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/arbor/internal/cluster"
)

// receiveWithin polls ch until a message arrives or the deadline passes
func receiveWithin(t *testing.T, ch cluster.Channel, d time.Duration) cluster.Message {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if msg, ok := ch.Receive(); ok {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no message within %v", d)
	return cluster.Message{}
}

// TestStreamChannelRoundTrip wires two stream channels back to back
func TestStreamChannelRoundTrip(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()

	left := NewStreamChannel(r1, w2, quiet)
	right := NewStreamChannel(r2, w1, quiet)

	// Nothing buffered yet
	_, ok := left.Receive()
	assert.False(t, ok)

	go func() { _ = right.Send(cluster.NewExecAdd(3, "x", 5)) }()
	msg := receiveWithin(t, left, time.Second)
	assert.Equal(t, cluster.NewExecAdd(3, "x", 5), msg)

	go func() { _ = left.Send(cluster.Message{Kind: cluster.KindExecFound, ID: 3, Key: "x", Value: 5}) }()
	msg = receiveWithin(t, right, time.Second)
	assert.Equal(t, cluster.KindExecFound, msg.Kind)
	assert.Equal(t, 5, msg.Value)

	// Closing the writer ends the peer's read loop
	require.NoError(t, right.Close())
	select {
	case <-left.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop after peer close")
	}
}

// TestStreamChannelStopsOnGarbage ends reading on a malformed frame
func TestStreamChannelStopsOnGarbage(t *testing.T) {
	r, w := io.Pipe()
	_, sink := io.Pipe()
	ch := NewStreamChannel(r, sink, log.New(io.Discard, "", 0))

	go func() { _, _ = w.Write([]byte("not json\n")) }()

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop on garbage")
	}
	_, ok := ch.Receive()
	assert.False(t, ok)
}

type closeFunc func() error

func (f closeFunc) Write(p []byte) (int, error) { return len(p), nil }
func (f closeFunc) Close() error                { return f() }

// TestStreamChannelCloseUnblocksReader releases a reader stuck on a full
// inbox that nobody drains any more
func TestStreamChannelCloseUnblocksReader(t *testing.T) {
	var frames bytes.Buffer
	enc := cluster.NewEncoder(&frames)
	for i := 0; i < DefaultBuffer+5; i++ {
		require.NoError(t, enc.Encode(cluster.NewPing(cluster.NodeID(i))))
	}

	s := NewStreamChannel(&frames, closeFunc(func() error { return nil }), log.New(io.Discard, "", 0))
	require.Eventually(t, func() bool { return len(s.inbox) == DefaultBuffer }, time.Second, time.Millisecond)

	select {
	case <-s.Done():
		t.Fatal("reader finished although the inbox is full")
	default:
	}

	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after Close")
	}
}
