package tensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when operand shapes cannot be combined
var ErrShapeMismatch = errors.New("tensor: shape mismatch")

// normEpsilon keeps renorm scaling strictly below the bound so a second
// application is a no-op
const normEpsilon = 1e-7

// Stack is a batch of equally shaped row-major matrices backed by one flat buffer.
// A stack of length 1 broadcasts against a batch of any size.
type Stack struct {
	n    int
	rows int
	cols int
	data []float64
}

// NewStack allocates a zeroed stack of n matrices of shape rows x cols
func NewStack(n, rows, cols int) *Stack {
	if n <= 0 || rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("tensor: invalid stack shape (%d,%d,%d)", n, rows, cols))
	}
	return &Stack{n: n, rows: rows, cols: cols, data: make([]float64, n*rows*cols)}
}

// StackFromDense views every row of m as one rows x cols matrix.
// The row length of m must equal rows*cols.
func StackFromDense(m *mat.Dense, rows, cols int) (*Stack, error) {
	r, c := m.Dims()
	if c != rows*cols {
		return nil, fmt.Errorf("%w: row length %d cannot be viewed as %dx%d", ErrShapeMismatch, c, rows, cols)
	}
	raw := m.RawMatrix()
	if raw.Stride == c {
		return &Stack{n: r, rows: rows, cols: cols, data: raw.Data[:r*c]}, nil
	}
	s := NewStack(r, rows, cols)
	for i := 0; i < r; i++ {
		copy(s.data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return s, nil
}

// Broadcast wraps m as a single-matrix stack that pairs with every batch element
func Broadcast(m *mat.Dense) *Stack {
	r, c := m.Dims()
	raw := m.RawMatrix()
	if raw.Stride == c {
		return &Stack{n: 1, rows: r, cols: c, data: raw.Data[:r*c]}
	}
	s := NewStack(1, r, c)
	for i := 0; i < r; i++ {
		copy(s.data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return s
}

// BroadcastTransposed is Broadcast applied to the transpose of m
func BroadcastTransposed(m *mat.Dense) *Stack {
	r, c := m.Dims()
	s := NewStack(1, c, r)
	t := mat.NewDense(c, r, s.data)
	t.Copy(m.T())
	return s
}

// Len returns the batch length
func (s *Stack) Len() int { return s.n }

// Dims returns the shape of each matrix in the stack
func (s *Stack) Dims() (rows, cols int) { return s.rows, s.cols }

// Shape returns (batch, rows, cols)
func (s *Stack) Shape() (n, rows, cols int) { return s.n, s.rows, s.cols }

// index resolves a batch position, broadcasting single-matrix stacks
func (s *Stack) index(i int) int {
	if s.n == 1 {
		return 0
	}
	return i
}

func (s *Stack) general(i int) blas64.General {
	size := s.rows * s.cols
	off := s.index(i) * size
	return blas64.General{Rows: s.rows, Cols: s.cols, Stride: s.cols, Data: s.data[off : off+size]}
}

// Matrix returns a view of the i-th matrix. Writes go through to the stack.
func (s *Stack) Matrix(i int) *mat.Dense {
	g := s.general(i)
	return mat.NewDense(g.Rows, g.Cols, g.Data)
}

// Row returns the r-th row of the i-th matrix as a shared slice
func (s *Stack) Row(i, r int) []float64 {
	off := s.index(i)*s.rows*s.cols + r*s.cols
	return s.data[off : off+s.cols]
}

// batchLen resolves the broadcast batch length of two operands
func batchLen(a, b int) (int, error) {
	switch {
	case a == b:
		return a, nil
	case a == 1:
		return b, nil
	case b == 1:
		return a, nil
	}
	return 0, fmt.Errorf("%w: batch sizes %d and %d do not broadcast", ErrShapeMismatch, a, b)
}

// MatMul computes the batched product a[i] @ b[i], broadcasting single-matrix operands
func MatMul(a, b *Stack) (*Stack, error) {
	n, err := batchLen(a.n, b.n)
	if err != nil {
		return nil, err
	}
	if a.cols != b.rows {
		return nil, fmt.Errorf("%w: cannot multiply %dx%d by %dx%d", ErrShapeMismatch, a.rows, a.cols, b.rows, b.cols)
	}

	out := NewStack(n, a.rows, b.cols)
	for i := 0; i < n; i++ {
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, a.general(i), b.general(i), 0, out.general(i))
	}
	return out, nil
}

// Norm returns the Euclidean norm of v
func Norm(v []float64) float64 {
	return math.Sqrt(vek.Dot(v, v))
}

// Renorm scales v in place so its Euclidean norm does not exceed maxNorm.
// Vectors already within the bound, including the zero vector, are left alone.
func Renorm(v []float64, maxNorm float64) {
	norm := Norm(v)
	if norm > maxNorm {
		vek.MulNumber_Inplace(v, maxNorm/(norm+normEpsilon))
	}
}

// RenormRows applies Renorm to every row of m
func RenormRows(m *mat.Dense, maxNorm float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		Renorm(m.RawRowView(i), maxNorm)
	}
}

// Normalize scales v in place to unit Euclidean norm. Zero vectors stay zero.
func Normalize(v []float64) {
	norm := Norm(v)
	if norm > 1e-12 {
		vek.MulNumber_Inplace(v, 1/norm)
	}
}

// NormalizeRows applies Normalize to every row of m
func NormalizeRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		Normalize(m.RawRowView(i))
	}
}

// Flatten returns the stack as a (batch, rows*cols) matrix sharing its buffer
func (s *Stack) Flatten() *mat.Dense {
	return mat.NewDense(s.n, s.rows*s.cols, s.data)
}
