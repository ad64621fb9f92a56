// Package interrupt turns an OS interrupt into a stop
// request that the whole group agrees on.
//
// The first interrupt on a rank only marks it as pending.
// The driving loop calls Requested between collectives;
// it returns the same answer on every rank, so either all
// ranks stop or none do. A second interrupt while one is
// pending restores the default signal behavior and
// re-raises the signal, which normally kills the process.
package interrupt

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/unixpickle/rankcoord/group"
)

// ErrInstalled is returned when installing a Coordinator
// twice.
var ErrInstalled = errors.New("interrupt: handler already installed")

// An Option configures a Coordinator.
type Option func(c *Coordinator)

// WithSignal selects the signal to intercept.
// The default is os.Interrupt.
func WithSignal(sig os.Signal) Option {
	return func(c *Coordinator) {
		c.sig = sig
	}
}

// WithOutput sets where the notice for the first
// interrupt is written. The default is os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(c *Coordinator) {
		c.out = w
	}
}

// WithForceExit replaces what happens on a repeated
// interrupt. By default, the signal is re-raised with its
// default disposition.
func WithForceExit(f func(sig os.Signal)) Option {
	return func(c *Coordinator) {
		c.forceExit = f
	}
}

// A Coordinator tracks the interrupt state of one rank.
type Coordinator struct {
	comm      group.Communicator
	sig       os.Signal
	out       io.Writer
	forceExit func(sig os.Signal)

	pending atomic.Bool

	lock    sync.Mutex
	signals chan os.Signal
	done    chan struct{}
	stopped chan struct{}
}

// New creates a Coordinator in the cleared state.
// The OS handler is not touched until Install.
func New(comm group.Communicator, opts ...Option) *Coordinator {
	c := &Coordinator{
		comm:      comm,
		sig:       os.Interrupt,
		out:       os.Stderr,
		forceExit: reraise,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Install starts intercepting the signal.
//
// Every Install must be paired with a Close, typically
// deferred, which restores the previous behavior.
func (c *Coordinator) Install() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.signals != nil {
		return ErrInstalled
	}
	c.signals = make(chan os.Signal, 1)
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})
	signal.Notify(c.signals, c.sig)
	go c.watch(c.signals, c.done, c.stopped)
	return nil
}

// Close stops intercepting the signal.
// It is safe to call Close on a Coordinator that is not
// installed.
func (c *Coordinator) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.signals == nil {
		return nil
	}
	signal.Stop(c.signals)
	close(c.done)
	<-c.stopped
	c.signals = nil
	return nil
}

func (c *Coordinator) watch(signals <-chan os.Signal, done, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-signals:
			c.deliver()
		case <-done:
			return
		}
	}
}

// Trigger acts as if the signal had been delivered.
func (c *Coordinator) Trigger() {
	c.deliver()
}

func (c *Coordinator) deliver() {
	if c.pending.CompareAndSwap(false, true) {
		fmt.Fprintf(c.out, "[rank %d] interrupt received, stopping at the next safe point "+
			"(repeat to force quit)\n", c.comm.Rank())
		return
	}
	c.forceExit(c.sig)
}

// Pending checks the local flag without clearing it.
func (c *Coordinator) Pending() bool {
	return c.pending.Load()
}

// Requested reports whether any rank in the group has a
// pending interrupt.
//
// This is a collective: every rank must call it at the
// same point. Every rank's flag is cleared, whatever the
// outcome, and every rank gets the same answer.
func (c *Coordinator) Requested() (bool, error) {
	var local float64
	if c.pending.Swap(false) {
		local = 1
	}
	buf := []float64{local}
	if err := c.comm.AllreduceSum(buf); err != nil {
		return false, errors.Wrap(err, "interrupt consensus")
	}
	return buf[0] != 0, nil
}

// Guard installs a Coordinator, runs f, and closes the
// Coordinator however f exits.
func Guard(comm group.Communicator, f func(c *Coordinator) error, opts ...Option) (err error) {
	c := New(comm, opts...)
	if err := c.Install(); err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); err == nil {
			err = closeErr
		}
	}()
	return f(c)
}

// reraise restores the default disposition for sig and
// sends it to this process again.
func reraise(sig os.Signal) {
	signal.Reset(sig)
	p, err := os.FindProcess(os.Getpid())
	if err == nil {
		err = p.Signal(sig)
	}
	if err != nil {
		os.Exit(1)
	}
}
