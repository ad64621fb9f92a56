// Package allreduce implements algorithms for summing
// vectors across every rank of a group.
package allreduce

import "github.com/unixpickle/rankcoord/collcomm"

// Allreducer is an algorithm that can apply a ReduceFn to
// vectors that are distributed across ranks.
//
// Every rank must call Allreduce() with the same Comms
// tag and a vector of the same length. A rank that never
// makes the call blocks every other rank forever.
//
// It is not safe to call Allreduce() multiple times in a
// row with the same Comms object.
// A new tag must be used every time to avoid interference.
type Allreducer interface {
	Allreduce(c *collcomm.Comms, data []float64, fn collcomm.ReduceFn) ([]float64, error)
}
