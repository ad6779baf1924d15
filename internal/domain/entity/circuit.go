package entity

import (
	"errors"
	"fmt"

	"ikedadada/go-tor4iot/internal/domain/value_object"
)

// MaxMembers bounds a device circuit: entry, two middle relays, the
// rendezvous point and the hidden-service end-to-end hop.
const MaxMembers = 5

var ErrCircuitFull = errors.New("circuit: member capacity reached")

// ---- StreamState ----------------------------------------------------------

// StreamState tracks the single application stream carried by a circuit.
type StreamState uint8

const (
	StreamInit StreamState = iota
	StreamAwaitingConnected
	StreamOpen
	StreamAwaitingResponse
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamInit:
		return "INIT"
	case StreamAwaitingConnected:
		return "AWAITING_CONNECTED"
	case StreamOpen:
		return "STREAM_OPEN"
	case StreamAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StreamClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("StreamState(%d)", uint8(s))
	}
}

// ---- Circuit --------------------------------------------------------------

type Circuit struct {
	id      value_object.CircuitID
	members []*Member

	stream value_object.StreamID
	state  StreamState

	digestFailures uint64
}

func NewCircuit(id value_object.CircuitID) *Circuit {
	return &Circuit{id: id, members: make([]*Member, 0, MaxMembers)}
}

func (c *Circuit) ID() value_object.CircuitID { return c.id }

// Reset forgets every member and the stream and takes on a new id.
func (c *Circuit) Reset(id value_object.CircuitID) {
	c.Teardown()
	c.id = id
	c.members = c.members[:0]
	c.stream = 0
	c.state = StreamInit
}

// AddMember appends m behind the current tail. The first member becomes the
// head; the newest member is always the tail.
func (c *Circuit) AddMember(m *Member) error {
	if len(c.members) == MaxMembers {
		return ErrCircuitFull
	}
	if len(c.members) == 0 {
		m.head = true
	} else {
		c.members[len(c.members)-1].tail = false
	}
	m.tail = true
	c.members = append(c.members, m)
	return nil
}

// Members returns the members in head to tail order.
func (c *Circuit) Members() []*Member { return c.members }

func (c *Circuit) Len() int { return len(c.members) }

func (c *Circuit) Head() *Member {
	if len(c.members) == 0 {
		return nil
	}
	return c.members[0]
}

func (c *Circuit) Tail() *Member {
	if len(c.members) == 0 {
		return nil
	}
	return c.members[len(c.members)-1]
}

// Established reports whether the head member carries key material, which is
// the condition for onion layering.
func (c *Circuit) Established() bool {
	h := c.Head()
	return h != nil && h.Established()
}

// Teardown unestablishes every member and closes the stream.
func (c *Circuit) Teardown() {
	for _, m := range c.members {
		m.Teardown()
	}
	c.state = StreamClosed
}

// ----------------------------------------------------------------------------
// ストリーム管理

func (c *Circuit) Stream() value_object.StreamID { return c.stream }
func (c *Circuit) State() StreamState           { return c.state }

// SetStream binds the stream id and moves to state, returning the previous
// state.
func (c *Circuit) SetStream(id value_object.StreamID, state StreamState) StreamState {
	c.stream = id
	return c.SetState(state)
}

// SetState moves the stream to state and returns the previous state.
func (c *Circuit) SetState(state StreamState) StreamState {
	prev := c.state
	c.state = state
	return prev
}

// RecordDigestFailure counts an inbound digest mismatch.
func (c *Circuit) RecordDigestFailure() { c.digestFailures++ }

func (c *Circuit) DigestFailures() uint64 { return c.digestFailures }

func (c *Circuit) String() string {
	return fmt.Sprintf("Circuit(%s) members=%d stream=%d state=%s",
		c.id, len(c.members), c.stream, c.state)
}
