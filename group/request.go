package group

import (
	"fmt"

	"github.com/pkg/errors"
)

// A Request is an outstanding collective operation.
type Request struct {
	done chan struct{}
	err  error
}

// startRequest runs f in the background.
//
// Panics from f, such as protocol violations inside a
// reduction algorithm, become the request's error.
func startRequest(f func() error) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		defer func() {
			if p := recover(); p != nil {
				r.err = errors.Errorf("group: collective panicked: %s", fmt.Sprint(p))
			}
		}()
		r.err = f()
	}()
	return r
}

// Wait blocks until the operation completes.
func (r *Request) Wait() error {
	<-r.done
	return r.err
}

// WaitAll waits for every request and returns the first
// error, if any.
func WaitAll(reqs ...*Request) error {
	var firstErr error
	for _, r := range reqs {
		if err := r.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
