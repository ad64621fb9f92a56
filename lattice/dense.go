package lattice

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dense is a Tensor backed by a gonum matrix.
//
// It implements encoding.BinaryMarshaler, so lattices of
// Dense blocks can be written to checkpoints with gob.
type Dense struct {
	m *mat.Dense
}

// NewDense creates a zero rows x cols block.
func NewDense(rows, cols int) *Dense {
	return &Dense{m: mat.NewDense(rows, cols, nil)}
}

// WrapDense wraps an existing matrix.
//
// The matrix must be contiguous, i.e. its stride must
// equal its column count; views into a larger matrix
// are rejected.
func WrapDense(m *mat.Dense) (*Dense, error) {
	raw := m.RawMatrix()
	if raw.Stride != raw.Cols {
		return nil, errors.Errorf("lattice: matrix is not contiguous (stride %d, cols %d)",
			raw.Stride, raw.Cols)
	}
	return &Dense{m: m}, nil
}

// Matrix returns the underlying matrix.
func (d *Dense) Matrix() *mat.Dense {
	return d.m
}

func (d *Dense) Data() []float64 {
	raw := d.m.RawMatrix()
	return raw.Data[:raw.Rows*raw.Cols]
}

func (d *Dense) Len() int {
	r, c := d.m.Dims()
	return r * c
}

func (d *Dense) MarshalBinary() ([]byte, error) {
	return d.m.MarshalBinary()
}

func (d *Dense) UnmarshalBinary(data []byte) error {
	var m mat.Dense
	if err := m.UnmarshalBinary(data); err != nil {
		return errors.Wrap(err, "unmarshal dense block")
	}
	d.m = &m
	return nil
}
