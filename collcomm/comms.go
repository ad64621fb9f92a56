// Package collcomm provides the point-to-point plumbing
// that collective operations are built on.
//
// Every rank owns one Endpoint wrapping a Link to the
// other ranks. Each collective operation talks through its
// own Comms, identified by a tag. Ranks allocate tags in
// the order they issue collectives, so tags line up across
// ranks exactly when the ranks issue the same sequence of
// collective calls.
package collcomm

import (
	"github.com/pkg/errors"
)

// ErrClosed is returned when communicating over a closed
// Link or Endpoint.
var ErrClosed = errors.New("collcomm: link closed")

// A Message is a chunk of data sent between ranks.
type Message struct {
	// Tag identifies the collective operation that the
	// message belongs to.
	Tag uint64

	// Source is the rank of the sender.
	Source int

	// Kind is an algorithm-specific message type.
	Kind uint8

	Payload []float64
}

// A Link moves messages between the ranks of a group from
// a single rank's point of view.
type Link interface {
	// Send delivers a message to the rank dst.
	//
	// Send must not wait for the receiver to call Recv.
	// The caller may reuse msg.Payload once Send returns.
	Send(dst int, msg *Message) error

	// Recv waits for the next message sent to this rank.
	Recv() (*Message, error)

	// Close shuts down the link.
	// Pending and future Recv calls fail with an error.
	Close() error
}

// Comms is a single rank's view of the group during one
// collective operation.
// A new Comms object should be used for each operation,
// thus automatically handling multiplexing.
type Comms struct {
	endpoint *Endpoint
	tag      uint64
}

// Tag gets the tag of the operation.
func (c *Comms) Tag() uint64 {
	return c.tag
}

// Size gets the number of ranks.
func (c *Comms) Size() int {
	return c.endpoint.Size()
}

// Index returns the current rank.
func (c *Comms) Index() int {
	return c.endpoint.Rank()
}

// Bcast sends a vector to every other rank.
func (c *Comms) Bcast(vec []float64) error {
	for i := 0; i < c.Size(); i++ {
		if i == c.Index() {
			continue
		}
		if err := c.Send(i, vec); err != nil {
			return err
		}
	}
	return nil
}

// Send sends a vector to the destination rank.
func (c *Comms) Send(dst int, vec []float64) error {
	return c.SendKind(dst, 0, vec)
}

// SendKind is like Send, but it tags the message with an
// algorithm-specific kind.
func (c *Comms) SendKind(dst int, kind uint8, vec []float64) error {
	return c.endpoint.send(dst, &Message{
		Tag:     c.tag,
		Source:  c.Index(),
		Kind:    kind,
		Payload: vec,
	})
}

// Recv receives the next vector and the rank it came
// from.
func (c *Comms) Recv() ([]float64, int, error) {
	msg, err := c.RecvMessage()
	if err != nil {
		return nil, 0, err
	}
	return msg.Payload, msg.Source, nil
}

// RecvMessage receives the next raw message.
func (c *Comms) RecvMessage() (*Message, error) {
	return c.endpoint.recv(c.tag)
}

// Release frees the resources used to route messages
// for this operation.
// It should be called once the operation is complete.
func (c *Comms) Release() {
	c.endpoint.release(c.tag)
}
