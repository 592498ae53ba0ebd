// Package regularizer accumulates penalty terms from the operands touched
// during scoring. The training side reads Term after a batch pass and
// calls Reset before the next one.
package regularizer

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/cnclabs/kgscore/pkg/tensor"
)

// Regularizer is the accumulator handle a model reports its operands to
type Regularizer interface {
	Accumulate(operands ...*tensor.Stack)
	Term() float64
	Reset()
}

// Lp penalizes the mean p-norm over the last axis of every operand
type Lp struct {
	Weight    float64
	P         float64
	Normalize bool

	mu   sync.Mutex
	sum  float64
	hits int
}

// NewLp creates an Lp regularizer
func NewLp(weight, p float64, normalize bool) *Lp {
	return &Lp{Weight: weight, P: p, Normalize: normalize}
}

// NewNickel2011 returns the RESCAL default: weight 10, L2, normalized.
// The weight follows the kinships example of the reference RESCAL code.
func NewNickel2011() *Lp {
	return NewLp(10, 2, true)
}

// Accumulate adds one penalty per operand
func (l *Lp) Accumulate(operands ...*tensor.Stack) {
	var add float64
	for _, op := range operands {
		if op != nil {
			add += l.penalty(op)
		}
	}

	l.mu.Lock()
	l.sum += add
	l.hits++
	l.mu.Unlock()
}

func (l *Lp) penalty(op *tensor.Stack) float64 {
	n, rows, cols := op.Shape()
	var total float64
	for i := 0; i < n; i++ {
		for r := 0; r < rows; r++ {
			total += floats.Norm(op.Row(i, r), l.P)
		}
	}
	value := total / float64(n*rows)
	if l.Normalize {
		value /= math.Pow(float64(cols), 1/l.P)
	}
	return value
}

// Term returns the weighted accumulated penalty
func (l *Lp) Term() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Weight * l.sum
}

// Calls returns how many Accumulate calls happened since the last Reset
func (l *Lp) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits
}

// Reset clears the accumulated penalty and call count
func (l *Lp) Reset() {
	l.mu.Lock()
	l.sum = 0
	l.hits = 0
	l.mu.Unlock()
}

// Nop discards every operand
type Nop struct{}

func (Nop) Accumulate(...*tensor.Stack) {}
func (Nop) Term() float64                { return 0 }
func (Nop) Reset()                       {}
