package allreduce

import "github.com/unixpickle/rankcoord/collcomm"

// A TreeAllreducer arranges the ranks in a binary tree
// and performs a reduction by going up the tree to a
// root rank, and then back down the tree to the leaves.
type TreeAllreducer struct{}

// Allreduce calls fn on vectors along a tree and returns
// the resulting reduced vector.
func (t TreeAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	parent, children := positionInTree(c)

	messages := [][]float64{data}
	for range children {
		msg, _, err := c.Recv()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	finalVector := fn(messages...)
	if parent >= 0 {
		if err := c.Send(parent, finalVector); err != nil {
			return nil, err
		}
		var err error
		finalVector, _, err = c.Recv()
		if err != nil {
			return nil, err
		}
	}

	for _, child := range children {
		if err := c.Send(child, finalVector); err != nil {
			return nil, err
		}
	}

	return finalVector, nil
}

// positionInTree returns the child ranks and parent rank
// for a rank in the reduction tree.
//
// There may be no children.
// The parent is -1 for the root rank.
func positionInTree(c *collcomm.Comms) (parent int, children []int) {
	idx := c.Index()
	parent = -1
	for depth := uint(0); true; depth++ {
		rowSize := 1 << depth
		rowStart := rowSize - 1
		if idx >= rowStart+rowSize {
			continue
		}
		rowIdx := idx - rowStart
		if depth > 0 {
			parent = rowIdx/2 + (rowSize/2 - 1)
		}
		firstChild := rowIdx*2 + (rowSize*2 - 1)
		for i := 0; i < 2; i++ {
			if firstChild+i < c.Size() {
				children = append(children, firstChild+i)
			}
		}
		return
	}
	panic("unreachable")
}
