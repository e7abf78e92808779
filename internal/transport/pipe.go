package transport

import (
	"sync"

	"github.com/dreamware/arbor/internal/cluster"
)

// DefaultBuffer is the number of in-flight messages each direction of a
// channel can hold before Send blocks.
const DefaultBuffer = 1024

// pipeEnd is one side of an in-memory channel pair.
type pipeEnd struct {
	in    <-chan cluster.Message
	out   chan<- cluster.Message
	done  chan struct{} // Closed when either end closes
	close *sync.Once
}

// Pipe returns two connected channels: whatever one end sends, the other
// receives. Closing either end closes the pair.
//
// A non-positive buffer selects DefaultBuffer.
func Pipe(buffer int) (cluster.Channel, cluster.Channel) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ab := make(chan cluster.Message, buffer)
	ba := make(chan cluster.Message, buffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeEnd{in: ba, out: ab, done: done, close: once}
	b := &pipeEnd{in: ab, out: ba, done: done, close: once}
	return a, b
}

// Send delivers msg to the other end. It blocks while the buffer is full and
// fails with cluster.ErrChannelClosed once the pair is closed.
func (p *pipeEnd) Send(msg cluster.Message) error {
	select {
	case <-p.done:
		return cluster.ErrChannelClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return cluster.ErrChannelClosed
	}
}

// Receive returns the next buffered message without blocking.
func (p *pipeEnd) Receive() (cluster.Message, bool) {
	select {
	case msg := <-p.in:
		return msg, true
	default:
		return cluster.Message{}, false
	}
}

// Done is closed when the pair has been closed from either side.
func (p *pipeEnd) Done() <-chan struct{} {
	return p.done
}

// Close closes both ends. Buffered messages remain receivable.
func (p *pipeEnd) Close() error {
	p.close.Do(func() { close(p.done) })
	return nil
}
