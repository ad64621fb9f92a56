// Package group implements the process group of a run:
// rank identity plus collective reduce, broadcast and
// barrier operations.
//
// Collectives block until every rank in the group has
// issued the matching call. Ranks must issue the same
// sequence of collectives with buffers of matching
// lengths; a rank that takes a different code path, or
// that crashes, leaves the others blocked forever. This
// is not detected.
package group

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/unixpickle/rankcoord/collcomm"
	"github.com/unixpickle/rankcoord/collcomm/allreduce"
)

// Root is the rank that acts as the primary process and
// the default broadcast source.
const Root = 0

// ErrShapeMismatch is returned when a rank notices that
// its buffer does not match the data it received.
var ErrShapeMismatch = errors.New("group: buffer length mismatch")

// Identity is a process's position in its group.
type Identity interface {
	Rank() int
	Size() int
}

// Communicator is the set of collectives that the other
// coordination components need.
type Communicator interface {
	Identity

	AllreduceSum(buf []float64) error
	Broadcast(buf []float64, root int) error
	Barrier() error
}

// An Option configures a Group.
type Option func(g *Group)

// WithAllreducer selects the reduction algorithm.
// The default is allreduce.TreeAllreducer.
func WithAllreducer(a allreduce.Allreducer) Option {
	return func(g *Group) {
		g.reducer = a
	}
}

// A Group is one rank's handle on the process group.
//
// A Group may be used from multiple Goroutines, but the
// order in which collectives are issued must be the same
// on every rank.
type Group struct {
	endpoint *collcomm.Endpoint
	reducer  allreduce.Allreducer

	lock    sync.Mutex
	nextTag uint64
}

// New creates a Group on top of an Endpoint.
func New(e *collcomm.Endpoint, opts ...Option) *Group {
	g := &Group{
		endpoint: e,
		reducer:  allreduce.TreeAllreducer{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Rank returns the 0-based position of this process.
func (g *Group) Rank() int {
	return g.endpoint.Rank()
}

// Size returns the number of processes in the group.
func (g *Group) Size() int {
	return g.endpoint.Size()
}

// IsRoot checks if this is the primary rank.
func (g *Group) IsRoot() bool {
	return g.Rank() == Root
}

// Close shuts down the group's transport.
//
// Outstanding collectives on this rank fail; other ranks
// waiting on this one may block forever.
func (g *Group) Close() error {
	return g.endpoint.Close()
}

// comms allocates the next tag.
//
// Tags are handed out in issue order, which is how the
// same logical collective is matched across ranks.
func (g *Group) comms() *collcomm.Comms {
	g.lock.Lock()
	defer g.lock.Unlock()
	tag := g.nextTag
	g.nextTag++
	return g.endpoint.Comms(tag)
}
