package tensor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStackFromDense(t *testing.T) {
	m := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
	})

	s, err := StackFromDense(m, 2, 2)
	require.NoError(t, err)

	n, r, c := s.Shape()
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{7, 8}, s.Row(1, 1))

	_, err = StackFromDense(m, 3, 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestStackFromDenseSlicedView(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 9,
		3, 4, 9,
	})
	view := m.Slice(0, 2, 0, 2).(*mat.Dense)

	s, err := StackFromDense(view, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, s.Row(1, 0))
}

func TestMatMul(t *testing.T) {
	t.Run("batched", func(t *testing.T) {
		a, err := StackFromDense(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), 1, 2)
		require.NoError(t, err)
		b, err := StackFromDense(mat.NewDense(2, 2, []float64{1, 1, 2, 0}), 2, 1)
		require.NoError(t, err)

		out, err := MatMul(a, b)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Len())
		assert.Equal(t, 3.0, out.Matrix(0).At(0, 0))
		assert.Equal(t, 6.0, out.Matrix(1).At(0, 0))
	})

	t.Run("broadcast right", func(t *testing.T) {
		a, err := StackFromDense(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), 1, 2)
		require.NoError(t, err)
		b := Broadcast(mat.NewDense(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		}))

		out, err := MatMul(a, b)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, out.Row(0, 0))
		assert.Equal(t, []float64{4, 5, 6}, out.Row(1, 0))
	})

	t.Run("broadcast left", func(t *testing.T) {
		a := Broadcast(mat.NewDense(3, 2, []float64{
			1, 0,
			0, 1,
			1, 1,
		}))
		b, err := StackFromDense(mat.NewDense(1, 2, []float64{2, 5}), 2, 1)
		require.NoError(t, err)

		out, err := MatMul(a, b)
		require.NoError(t, err)
		r, c := out.Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 1, c)
		assert.Equal(t, 7.0, out.Matrix(0).At(2, 0))
	})

	t.Run("inner dimension mismatch", func(t *testing.T) {
		a := NewStack(1, 2, 3)
		b := NewStack(1, 2, 3)
		_, err := MatMul(a, b)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})

	t.Run("batch mismatch", func(t *testing.T) {
		a := NewStack(2, 1, 2)
		b := NewStack(3, 2, 1)
		_, err := MatMul(a, b)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})
}

func TestBroadcastTransposed(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	s := BroadcastTransposed(m)

	r, c := s.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{2, 4, 6}, s.Row(0, 1))
}

func TestRenorm(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		norm float64
	}{
		{"above bound", []float64{3, 4}, 1},
		{"below bound", []float64{0.3, 0.4}, 0.5},
		{"zero", []float64{0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := append([]float64(nil), tt.in...)
			Renorm(v, 1)
			assert.InDelta(t, tt.norm, Norm(v), 1e-6)
			for _, x := range v {
				assert.False(t, math.IsNaN(x))
			}
		})
	}
}

func TestRenormIdempotent(t *testing.T) {
	v := []float64{2, -7, 1.5, 0.25}
	Renorm(v, 1)
	once := append([]float64(nil), v...)
	Renorm(v, 1)
	assert.Equal(t, once, v)
}

func TestNormalizeRows(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		3, 4,
		0, 0,
		0.1, 0,
	})
	NormalizeRows(m)

	assert.InDelta(t, 1.0, Norm(m.RawRowView(0)), 1e-12)
	assert.Equal(t, []float64{0, 0}, m.RawRowView(1))
	assert.InDelta(t, 1.0, m.At(2, 0), 1e-12)
}

func TestFlatten(t *testing.T) {
	s := NewStack(2, 1, 3)
	copy(s.Row(1, 0), []float64{1, 2, 3})

	m := s.Flatten()
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 2.0, m.At(1, 1))
}
