package cluster

import (
	"errors"
	"fmt"
	"time"
)

// NodeID identifies a node in the control tree.
// Ids are chosen by the operator and must be unique at creation time.
type NodeID int

// ControllerID is the identity of the controller itself. It is always
// registered, never expires and never times out.
const ControllerID NodeID = -1

// ErrChannelClosed is returned when sending on a channel whose peer is gone.
var ErrChannelClosed = errors.New("channel closed")

// ErrUnknownKind is returned when decoding a message kind that does not exist.
var ErrUnknownKind = errors.New("unknown message kind")

// Kind tags a Message. The zero value is KindNone, meaning "no message
// available this poll".
type Kind int

const (
	KindNone Kind = iota
	KindCreate
	KindPing
	KindExecAdd
	KindExecFind
	KindExecFound
	KindExecNotFound
	KindHeartbeat
)

var kindNames = map[Kind]string{
	KindNone:         "none",
	KindCreate:       "create",
	KindPing:         "ping",
	KindExecAdd:      "exec_add",
	KindExecFind:     "exec_find",
	KindExecFound:    "exec_found",
	KindExecNotFound: "exec_not_found",
	KindHeartbeat:    "heartbeat",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsRequest reports whether messages of this kind are tracked while awaiting a reply.
func (k Kind) IsRequest() bool {
	switch k {
	case KindCreate, KindPing, KindExecAdd, KindExecFind:
		return true
	}
	return false
}

// MarshalText encodes the kind by name so frames stay readable on the wire.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("marshal %d: %w", int(k), ErrUnknownKind)
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unmarshal %q: %w", text, ErrUnknownKind)
}

// Message is the unit exchanged with a node channel.
//
// Field usage depends on Kind:
//   - Create request: ID = parent, Aux = new child id. Reply: ID = new child, Aux = pid.
//   - Ping: ID = target.
//   - ExecAdd: ID = target, Key, Value. Ack carries ID.
//   - ExecFind: ID = target, Key, Value = -1. ExecFound carries Key and Value,
//     ExecNotFound carries Key.
//   - Heartbeat: downstream ID = ControllerID and Value = interval in ms;
//     upstream ID = the beating node.
//
// SentAt is local bookkeeping set when a request is tracked and is not encoded.
type Message struct {
	Kind   Kind      `json:"kind"`
	ID     NodeID    `json:"id"`
	Value  int       `json:"value"`
	Aux    int       `json:"aux"`
	Key    string    `json:"key,omitempty"`
	SentAt time.Time `json:"-"`
}

// Channel is a point-to-point message channel to a single node.
// Receive never blocks: when nothing is buffered it returns a message of
// KindNone and false.
type Channel interface {
	Send(msg Message) error
	Receive() (Message, bool)
	Close() error
}

// NewCreate builds the request asking parent to spawn child.
func NewCreate(parent, child NodeID) Message {
	return Message{Kind: KindCreate, ID: parent, Aux: int(child)}
}

// NewPing builds a liveness probe for id.
func NewPing(id NodeID) Message {
	return Message{Kind: KindPing, ID: id}
}

// NewExecAdd builds a request storing value under key on node id.
func NewExecAdd(id NodeID, key string, value int) Message {
	return Message{Kind: KindExecAdd, ID: id, Key: key, Value: value}
}

// NewExecFind builds a lookup of key on node id.
func NewExecFind(id NodeID, key string) Message {
	return Message{Kind: KindExecFind, ID: id, Key: key, Value: -1}
}

// NewHeartbeatConfig builds the downstream message that sets the heartbeat interval.
func NewHeartbeatConfig(interval time.Duration) Message {
	return Message{Kind: KindHeartbeat, ID: ControllerID, Value: int(interval / time.Millisecond)}
}
