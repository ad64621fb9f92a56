package group

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/rankcoord/collcomm"
	"github.com/unixpickle/rankcoord/lattice"
)

// IAllreduce starts an in-place sum of buf across all
// ranks.
//
// buf must not be touched until the Request completes.
// Any number of requests may be outstanding at once.
func (g *Group) IAllreduce(buf []float64) *Request {
	c := g.comms()
	return startRequest(func() error {
		defer c.Release()
		res, err := g.reducer.Allreduce(c, buf, collcomm.Sum)
		if err != nil {
			return errors.Wrapf(err, "allreduce %d", c.Tag())
		}
		if len(res) != len(buf) {
			return ErrShapeMismatch
		}
		copy(buf, res)
		return nil
	})
}

// AllreduceSum replaces buf, on every rank, with the
// element-wise sum of every rank's buf.
func (g *Group) AllreduceSum(buf []float64) error {
	return g.IAllreduce(buf).Wait()
}

// AllreduceTensors sums every tensor across all ranks.
//
// One reduction is issued per tensor and all of them are
// in flight before this waits.
func (g *Group) AllreduceTensors(tensors ...lattice.Tensor) error {
	reqs := make([]*Request, len(tensors))
	for i, t := range tensors {
		reqs[i] = g.IAllreduce(t.Data())
	}
	return WaitAll(reqs...)
}

// AllreduceLattice sums every tensor of a lattice across
// all ranks, rows first, then columns.
func (g *Group) AllreduceLattice(l lattice.Lattice) error {
	return g.AllreduceTensors(l.Tensors()...)
}

// IBroadcast starts copying root's buf into every other
// rank's buf.
func (g *Group) IBroadcast(buf []float64, root int) *Request {
	c := g.comms()
	return startRequest(func() error {
		defer c.Release()
		if root < 0 || root >= c.Size() {
			return errors.Errorf("group: broadcast root %d out of range", root)
		}
		if c.Index() == root {
			return errors.Wrapf(c.Bcast(buf), "broadcast %d", c.Tag())
		}
		vec, _, err := c.Recv()
		if err != nil {
			return errors.Wrapf(err, "broadcast %d", c.Tag())
		}
		if len(vec) != len(buf) {
			return ErrShapeMismatch
		}
		copy(buf, vec)
		return nil
	})
}

// Broadcast copies root's buf into every other rank's
// buf. Use Root for the conventional source.
func (g *Group) Broadcast(buf []float64, root int) error {
	return g.IBroadcast(buf, root).Wait()
}

// BroadcastTensors broadcasts every tensor from root.
func (g *Group) BroadcastTensors(root int, tensors ...lattice.Tensor) error {
	reqs := make([]*Request, len(tensors))
	for i, t := range tensors {
		reqs[i] = g.IBroadcast(t.Data(), root)
	}
	return WaitAll(reqs...)
}

// BroadcastLattice broadcasts every tensor of a lattice
// from root.
func (g *Group) BroadcastLattice(l lattice.Lattice, root int) error {
	return g.BroadcastTensors(root, l.Tensors()...)
}

// Barrier blocks until every rank has reached it.
func (g *Group) Barrier() error {
	return errors.Wrap(g.AllreduceSum([]float64{0}), "barrier")
}
