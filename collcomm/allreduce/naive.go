package allreduce

import "github.com/unixpickle/rankcoord/collcomm"

// A NaiveAllreducer sends every vector from every rank to
// every other rank.
type NaiveAllreducer struct{}

// Allreduce runs fn() on all of the ranks' vectors on
// every rank.
func (n NaiveAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	gatheredVecs := make([][]float64, c.Size())

	if err := c.Bcast(data); err != nil {
		return nil, err
	}

	for i := 0; i < len(gatheredVecs)-1; i++ {
		incoming, source, err := c.Recv()
		if err != nil {
			return nil, err
		}
		gatheredVecs[source] = incoming
	}

	gatheredVecs[c.Index()] = data

	return fn(gatheredVecs...), nil
}
