package transport

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/dreamware/arbor/internal/cluster"
)

// StreamChannel carries messages as newline-delimited JSON over a byte stream.
// A reader goroutine decodes inbound frames into a buffer so Receive never
// blocks.
type StreamChannel struct {
	enc    *cluster.Encoder
	w      io.Closer
	inbox  chan cluster.Message
	done   chan struct{} // Closed when the inbound stream ends
	stop   chan struct{} // Closed by Close; abandons a blocked delivery
	logger *log.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewStreamChannel starts reading frames from r and writes outbound frames to w.
//
// Parameters:
//   - r: Inbound stream; reading stops at EOF or the first malformed frame
//   - w: Outbound stream; closed by Close
//   - logger: Destination for decode failures; nil selects log.Default()
func NewStreamChannel(r io.Reader, w io.WriteCloser, logger *log.Logger) *StreamChannel {
	if logger == nil {
		logger = log.Default()
	}
	s := &StreamChannel{
		enc:    cluster.NewEncoder(w),
		w:      w,
		inbox:  make(chan cluster.Message, DefaultBuffer),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		logger: logger,
	}
	go s.readLoop(cluster.NewDecoder(r))
	return s
}

func (s *StreamChannel) readLoop(dec *cluster.Decoder) {
	defer close(s.done)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Printf("stream: stop reading: %v", err)
			}
			return
		}
		select {
		case s.inbox <- msg:
		case <-s.stop:
			return
		}
	}
}

// Send writes one frame.
func (s *StreamChannel) Send(msg cluster.Message) error {
	if err := s.enc.Encode(msg); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
			return cluster.ErrChannelClosed
		}
		return err
	}
	return nil
}

// Receive returns the next decoded frame without blocking.
func (s *StreamChannel) Receive() (cluster.Message, bool) {
	select {
	case msg := <-s.inbox:
		return msg, true
	default:
		return cluster.Message{}, false
	}
}

// Done is closed once the inbound stream has ended.
func (s *StreamChannel) Done() <-chan struct{} {
	return s.done
}

// Close closes the outbound stream and stops buffering inbound frames.
// It is idempotent.
func (s *StreamChannel) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.closeErr = s.w.Close()
	})
	return s.closeErr
}
