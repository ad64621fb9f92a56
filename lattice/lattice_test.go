package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLatticeOrder(t *testing.T) {
	l := New(2, 3, func(row, col int) Tensor {
		return Scalar(float64(row*10 + col))
	})
	assert.Equal(t, 2, l.Rows())
	assert.Equal(t, 3, l.Cols())

	var order []float64
	for _, tensor := range l.Tensors() {
		order = append(order, tensor.Data()[0])
	}
	assert.Equal(t, []float64{0, 1, 2, 10, 11, 12}, order)
	assert.Equal(t, 0, Lattice{}.Cols())
}

func TestDenseDataIsView(t *testing.T) {
	d := NewDense(2, 2)
	require.Equal(t, 4, d.Len())
	data := d.Data()
	data[3] = 7
	assert.Equal(t, 7.0, d.Matrix().At(1, 1))
}

func TestWrapDense(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	d, err := WrapDense(m)
	require.NoError(t, err)
	assert.Equal(t, 9, d.Len())

	view := m.Slice(0, 2, 0, 2).(*mat.Dense)
	_, err = WrapDense(view)
	assert.Error(t, err)
}

func TestDenseBinary(t *testing.T) {
	d := NewDense(2, 3)
	copy(d.Data(), []float64{1, 2, 3, 4, 5, 6})
	data, err := d.MarshalBinary()
	require.NoError(t, err)

	var decoded Dense
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.True(t, mat.Equal(d.Matrix(), decoded.Matrix()))
}
