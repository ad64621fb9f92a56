// Package lattice defines the numeric objects that
// collective operations work on.
//
// The coordination layer only needs a Tensor to expose a
// mutable, contiguous buffer. It never allocates or frees
// tensors; it only rewrites their contents in place.
package lattice

// A Tensor is a numeric object with a fixed-size,
// contiguous buffer.
type Tensor interface {
	// Data returns a mutable view of exactly Len()
	// elements.
	Data() []float64

	// Len returns the number of elements.
	Len() int
}

// A Lattice is a 2D grid of tensors, indexed by row then
// column.
//
// Every rank must hold a Lattice of the same shape, with
// matching tensor lengths, before calling a collective on
// it. Mismatched lattices make collectives hang or fail.
type Lattice [][]Tensor

// New creates a rows x cols lattice by calling f for
// every position, row by row.
func New(rows, cols int, f func(row, col int) Tensor) Lattice {
	res := make(Lattice, rows)
	for i := range res {
		res[i] = make([]Tensor, cols)
		for j := range res[i] {
			res[i][j] = f(i, j)
		}
	}
	return res
}

// Rows returns the number of rows.
func (l Lattice) Rows() int {
	return len(l)
}

// Cols returns the number of columns, or 0 for an empty
// lattice.
func (l Lattice) Cols() int {
	if len(l) == 0 {
		return 0
	}
	return len(l[0])
}

// Tensors lists every tensor, rows first, then columns.
func (l Lattice) Tensors() []Tensor {
	var res []Tensor
	for _, row := range l {
		res = append(res, row...)
	}
	return res
}

// A Vector is the simplest Tensor: a plain slice.
type Vector []float64

// Scalar creates a single-element Vector.
func Scalar(x float64) Vector {
	return Vector{x}
}

func (v Vector) Data() []float64 {
	return v
}

func (v Vector) Len() int {
	return len(v)
}
