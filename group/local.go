package group

import (
	"context"

	"github.com/unixpickle/rankcoord/collcomm"
	"golang.org/x/sync/errgroup"
)

// NewLocal creates n in-process ranks that form one
// group. Each rank should be driven from its own
// Goroutine.
func NewLocal(n int, opts ...Option) []*Group {
	endpoints := collcomm.NewLocalEndpoints(n)
	res := make([]*Group, n)
	for i, e := range endpoints {
		res[i] = New(e, opts...)
	}
	return res
}

// Single creates a group with one rank, for runs without
// any peers.
func Single(opts ...Option) *Group {
	return NewLocal(1, opts...)[0]
}

// SpawnLocal runs f on n in-process ranks, each in its
// own Goroutine, and returns the first error.
//
// When any rank fails, every rank's transport is closed
// so that ranks blocked in a collective fail rather than
// wait forever.
func SpawnLocal(n int, f func(g *Group) error, opts ...Option) error {
	groups := NewLocal(n, opts...)
	eg, ctx := errgroup.WithContext(context.Background())
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-finished:
		}
		for _, g := range groups {
			g.Close()
		}
	}()
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			return f(g)
		})
	}
	err := eg.Wait()
	close(finished)
	return err
}
