package collcomm

import (
	"sync"

	"github.com/unixpickle/essentials"
)

// A queue is an unbounded FIFO of messages.
//
// Pushing never blocks, so a sender can never deadlock
// waiting on a receiver that is itself blocked sending.
type queue struct {
	lock   sync.Mutex
	cond   *sync.Cond
	items  []*Message
	closed bool
	err    error
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.lock)
	return q
}

func (q *queue) Push(msg *Message) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return q.err
	}
	q.items = append(q.items, msg)
	q.cond.Signal()
	return nil
}

// Pop waits for the next message.
//
// Messages queued before Close are still delivered; once
// the queue is drained, the close error is returned.
func (q *queue) Pop() (*Message, error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, q.err
	}
	msg := q.items[0]
	q.items[0] = nil
	essentials.OrderedDelete(&q.items, 0)
	return msg, nil
}

// Close stops the queue with the given error.
// Only the first call has an effect.
func (q *queue) Close(err error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	q.closed = true
	q.err = err
	q.cond.Broadcast()
}
