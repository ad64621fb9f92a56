package collcomm

import "gonum.org/v1/gonum/floats"

// A ReduceFn is an operation that reduces many vectors
// into a single vector.
//
// The result must not alias any of the inputs.
type ReduceFn func(vecs ...[]float64) []float64

// Sum is a ReduceFn that computes a vector sum.
func Sum(vecs ...[]float64) []float64 {
	for _, v := range vecs[1:] {
		if len(v) != len(vecs[0]) {
			panic("mismatching lengths")
		}
	}
	res := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		floats.Add(res, v)
	}
	return res
}
