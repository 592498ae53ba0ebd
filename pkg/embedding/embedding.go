// Package embedding provides the lookup tables that back entity and relation
// representations.
package embedding

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kgscore/pkg/tensor"
)

var (
	// ErrIndexOutOfRange is returned when a lookup id falls outside the table
	ErrIndexOutOfRange = errors.New("embedding: index out of range")

	// ErrInvalidShape is returned when a table is created with a non-positive dimension
	ErrInvalidShape = errors.New("embedding: invalid shape")
)

// Table is the capability the scoring models depend on.
// Reads (Lookup, All) and writes (Update, Renormalize, ClipMaxNorm) must not
// overlap; callers own that exclusion.
type Table interface {
	// Num returns the number of rows
	Num() int
	// Dim returns the row length
	Dim() int
	// Lookup gathers the rows for ids, preserving their order
	Lookup(ids []int64) (*mat.Dense, error)
	// All returns a read view of the whole table
	All() *mat.Dense
	// Renormalize scales every row to unit Euclidean norm in place
	Renormalize()
	// ClipMaxNorm scales rows whose norm exceeds maxNorm back onto the bound
	ClipMaxNorm(maxNorm float64)
	// Update grants write access to the underlying weights
	Update(fn func(w *mat.Dense))
	// Version increases on every write
	Version() uint64
}

// Dense is an in-memory Table backed by a gonum matrix
type Dense struct {
	mu      sync.RWMutex
	weight  *mat.Dense
	version atomic.Uint64
}

var _ Table = (*Dense)(nil)

// NewDense creates a zeroed num x dim table
func NewDense(num, dim int) (*Dense, error) {
	if num <= 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrInvalidShape, num, dim)
	}
	return &Dense{weight: mat.NewDense(num, dim, nil)}, nil
}

// FromRows creates a table holding a copy of rows
func FromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty rows", ErrInvalidShape)
	}
	dim := len(rows[0])
	d, err := NewDense(len(rows), dim)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has length %d, expected %d", ErrInvalidShape, i, len(row), dim)
		}
		d.weight.SetRow(i, row)
	}
	return d, nil
}

// Num returns the number of rows
func (d *Dense) Num() int {
	r, _ := d.weight.Dims()
	return r
}

// Dim returns the row width
func (d *Dense) Dim() int {
	_, c := d.weight.Dims()
	return c
}

// Lookup gathers rows into a fresh len(ids) x dim matrix
func (d *Dense) Lookup(ids []int64) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty id list", ErrInvalidShape)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	num, dim := d.weight.Dims()
	out := mat.NewDense(len(ids), dim, nil)
	for i, id := range ids {
		if id < 0 || id >= int64(num) {
			return nil, fmt.Errorf("%w: id %d not in [0, %d)", ErrIndexOutOfRange, id, num)
		}
		copy(out.RawRowView(i), d.weight.RawRowView(int(id)))
	}
	return out, nil
}

// All returns the live weight matrix. Callers must not write through it.
func (d *Dense) All() *mat.Dense {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.weight
}

// Renormalize scales every non-zero row to unit length
func (d *Dense) Renormalize() {
	d.Update(tensor.NormalizeRows)
}

// ClipMaxNorm rescales rows whose norm exceeds maxNorm
func (d *Dense) ClipMaxNorm(maxNorm float64) {
	d.Update(func(w *mat.Dense) {
		tensor.RenormRows(w, maxNorm)
	})
}

// Update runs fn on the weights under the write lock and bumps the version
func (d *Dense) Update(fn func(w *mat.Dense)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.weight)
	d.version.Add(1)
}

// Version counts writes; it changes whenever the weights may have changed
func (d *Dense) Version() uint64 {
	return d.version.Load()
}

// XavierUniform fills t from U(-b, b) with b = sqrt(6 / (num + dim)).
// rng must not be nil.
func XavierUniform(t Table, rng *rand.Rand) {
	bound := math.Sqrt(6.0 / float64(t.Num()+t.Dim()))
	t.Update(func(w *mat.Dense) {
		raw := w.RawMatrix()
		for i := 0; i < raw.Rows; i++ {
			row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
			for j := range row {
				row[j] = (2*rng.Float64() - 1) * bound
			}
		}
	})
}

// Normal fills t from N(0, std^2). rng must not be nil.
func Normal(t Table, rng *rand.Rand, std float64) {
	t.Update(func(w *mat.Dense) {
		raw := w.RawMatrix()
		for i := 0; i < raw.Rows; i++ {
			row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
			for j := range row {
				row[j] = rng.NormFloat64() * std
			}
		}
	})
}
