package collcomm

import (
	"sync"

	"github.com/pkg/errors"
)

// An Endpoint multiplexes the operations of one rank over
// a single Link.
//
// A background Goroutine reads from the Link and sorts
// messages into per-tag mailboxes, so messages for an
// operation may arrive before the rank has started it.
type Endpoint struct {
	rank int
	size int
	link Link

	lock      sync.Mutex
	cond      *sync.Cond
	mailboxes map[uint64][]*Message
	err       error

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewEndpoint creates an Endpoint and starts routing
// messages from the link.
func NewEndpoint(rank, size int, link Link) *Endpoint {
	if size < 1 || rank < 0 || rank >= size {
		panic("invalid rank or size")
	}
	e := &Endpoint{
		rank:      rank,
		size:      size,
		link:      link,
		mailboxes: map[uint64][]*Message{},
		done:      make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.lock)
	go e.dispatch()
	return e
}

// Rank gets the rank of the Endpoint.
func (e *Endpoint) Rank() int {
	return e.rank
}

// Size gets the number of ranks in the group.
func (e *Endpoint) Size() int {
	return e.size
}

// Comms creates the view for the operation with the
// given tag.
func (e *Endpoint) Comms(tag uint64) *Comms {
	return &Comms{endpoint: e, tag: tag}
}

// Close closes the underlying Link and waits for the
// routing Goroutine to exit.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.link.Close()
		<-e.done
	})
	return e.closeErr
}

func (e *Endpoint) dispatch() {
	defer close(e.done)
	for {
		msg, err := e.link.Recv()
		e.lock.Lock()
		if err != nil {
			e.err = err
			e.cond.Broadcast()
			e.lock.Unlock()
			return
		}
		e.mailboxes[msg.Tag] = append(e.mailboxes[msg.Tag], msg)
		e.cond.Broadcast()
		e.lock.Unlock()
	}
}

func (e *Endpoint) send(dst int, msg *Message) error {
	if dst < 0 || dst >= e.size {
		return errors.Errorf("collcomm: destination rank %d out of range [0, %d)", dst, e.size)
	}
	return errors.Wrapf(e.link.Send(dst, msg), "send to rank %d", dst)
}

func (e *Endpoint) recv(tag uint64) (*Message, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for len(e.mailboxes[tag]) == 0 && e.err == nil {
		e.cond.Wait()
	}
	box := e.mailboxes[tag]
	if len(box) == 0 {
		return nil, e.err
	}
	msg := box[0]
	box[0] = nil
	e.mailboxes[tag] = box[1:]
	return msg, nil
}

func (e *Endpoint) release(tag uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.mailboxes[tag]) == 0 {
		delete(e.mailboxes, tag)
	}
}
