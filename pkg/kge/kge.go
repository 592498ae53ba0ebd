// Package kge defines the scoring contract shared by the knowledge graph
// embedding models.
//
// Every model exposes three entry points. ScoreHRT scores complete triples,
// ScoreT scores (head, relation) pairs against every candidate tail and ScoreH
// scores (relation, tail) pairs against every candidate head. Internally a
// model expands any of them into a Query, a fixed-slot descriptor saying
// which of head/relation/tail are bound per row and which range over the
// whole entity table.
package kge

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotInitialized is returned when a model is used before its tables exist
	ErrNotInitialized = errors.New("kge: model not initialized")

	// ErrDimensionMismatch is returned when a table disagrees with the configured dimensions
	ErrDimensionMismatch = errors.New("kge: dimension mismatch")

	// ErrInvalidConfig is returned for unusable model settings
	ErrInvalidConfig = errors.New("kge: invalid config")

	// ErrEmptyBatch is returned when a scoring call receives no rows
	ErrEmptyBatch = errors.New("kge: empty batch")
)

// HRT is a (head, relation, tail) id record
type HRT [3]int64

// HR is a (head, relation) id record used to rank all tails
type HR [2]int64

// RT is a (relation, tail) id record used to rank all heads
type RT [2]int64

// Scorer is implemented by every model
type Scorer interface {
	// ScoreHRT returns a (batch, 1) matrix
	ScoreHRT(batch []HRT) (*mat.Dense, error)
	// ScoreT returns a (batch, numEntities) matrix
	ScoreT(batch []HR) (*mat.Dense, error)
	// ScoreH returns a (batch, numEntities) matrix
	ScoreH(batch []RT) (*mat.Dense, error)

	NumEntities() int
	NumRelations() int
}

// PostUpdater is implemented by models that restore invariants after an
// optimizer step
type PostUpdater interface {
	PostParameterUpdate()
}

// Mode says which slot of the triple ranges over all entities
type Mode int

const (
	// ModeHRT binds every slot
	ModeHRT Mode = iota
	// ModeT ranges the tail over all entities
	ModeT
	// ModeH ranges the head over all entities
	ModeH
)

// String returns the short mode name
func (m Mode) String() string {
	switch m {
	case ModeHRT:
		return "hrt"
	case ModeT:
		return "t"
	case ModeH:
		return "h"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Query is the column-split form of a batch. Heads is nil when the head
// ranges over all entities, Tails is nil when the tail does.
type Query struct {
	Mode      Mode
	Heads     []int64
	Relations []int64
	Tails     []int64
}

// QueryHRT splits a triple batch
func QueryHRT(batch []HRT) (Query, error) {
	if len(batch) == 0 {
		return Query{}, ErrEmptyBatch
	}
	q := Query{
		Mode:      ModeHRT,
		Heads:     make([]int64, len(batch)),
		Relations: make([]int64, len(batch)),
		Tails:     make([]int64, len(batch)),
	}
	for i, row := range batch {
		q.Heads[i], q.Relations[i], q.Tails[i] = row[0], row[1], row[2]
	}
	return q, nil
}

// QueryT splits a (head, relation) batch
func QueryT(batch []HR) (Query, error) {
	if len(batch) == 0 {
		return Query{}, ErrEmptyBatch
	}
	q := Query{
		Mode:      ModeT,
		Heads:     make([]int64, len(batch)),
		Relations: make([]int64, len(batch)),
	}
	for i, row := range batch {
		q.Heads[i], q.Relations[i] = row[0], row[1]
	}
	return q, nil
}

// QueryH splits a (relation, tail) batch
func QueryH(batch []RT) (Query, error) {
	if len(batch) == 0 {
		return Query{}, ErrEmptyBatch
	}
	q := Query{
		Mode:      ModeH,
		Relations: make([]int64, len(batch)),
		Tails:     make([]int64, len(batch)),
	}
	for i, row := range batch {
		q.Relations[i], q.Tails[i] = row[0], row[1]
	}
	return q, nil
}

// Len returns the number of batch rows
func (q Query) Len() int { return len(q.Relations) }

// Columns returns the output width for a table of numEntities candidates
func (q Query) Columns(numEntities int) int {
	if q.Mode == ModeHRT {
		return 1
	}
	return numEntities
}
