package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Encoder writes messages as newline-delimited JSON frames.
// Safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one frame. json.Encoder terminates every value with '\n'.
func (e *Encoder) Encode(msg Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	return nil
}

// Decoder reads frames produced by an Encoder.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode blocks until the next frame is read. It returns io.EOF when the
// stream ends cleanly.
func (d *Decoder) Decode() (Message, error) {
	var msg Message
	if err := d.dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if msg.Kind == KindNone {
		return Message{}, fmt.Errorf("decode: empty kind: %w", ErrUnknownKind)
	}
	return msg, nil
}
