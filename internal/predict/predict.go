// Package predict ranks candidate entities, relations and triples with a kge.Scorer
package predict

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kgscore/pkg/kge"
)

var (
	// ErrInvalidK is returned for a non-positive k
	ErrInvalidK = errors.New("predict: k must be positive")

	// ErrInvalidTarget is returned for a target id outside the candidate range
	ErrInvalidTarget = errors.New("predict: target out of range")
)

// Filter reports known triples, e.g. the training set
type Filter interface {
	Contains(head, relation, tail int64) bool
}

// TripleSet is a Filter over a fixed list of triples
type TripleSet map[kge.HRT]struct{}

// NewTripleSet builds a set from id triples
func NewTripleSet(triples []kge.HRT) TripleSet {
	s := make(TripleSet, len(triples))
	for _, t := range triples {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports whether (head, relation, tail) is in the set
func (s TripleSet) Contains(head, relation, tail int64) bool {
	_, ok := s[kge.HRT{head, relation, tail}]
	return ok
}

// Prediction is one ranked candidate
type Prediction struct {
	ID         int64
	Score      float64
	InTraining bool
	InTesting  bool
}

// Options controls candidate selection and known-triple handling
type Options struct {
	// Known marks or removes triples already in the graph
	Known Filter
	// Testing marks or removes held-out triples
	Testing Filter
	// RemoveKnown drops candidates found in Known or Testing instead of marking them
	RemoveKnown bool
	// Targets restricts the candidates to these ids; empty means all
	Targets []int64
}

// TopK returns the k best columns of scores' row, highest score first,
// ties broken by ascending id. k larger than the row returns the whole row.
func TopK(scores *mat.Dense, row, k int) ([]Prediction, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	values := scores.RawRowView(row)
	out := make([]Prediction, len(values))
	for id, s := range values {
		out[id] = Prediction{ID: int64(id), Score: s}
	}
	sortPredictions(out)
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func sortPredictions(p []Prediction) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].Score != p[j].Score {
			return p[i].Score > p[j].Score
		}
		return p[i].ID < p[j].ID
	})
}

// Tails ranks every entity (or opts.Targets) as tail of (head, relation)
func Tails(s kge.Scorer, head, relation int64, k int, opts Options) ([]Prediction, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	ids, err := candidates(opts.Targets, s.NumEntities())
	if err != nil {
		return nil, err
	}
	scores, err := s.ScoreT([]kge.HR{{head, relation}})
	if err != nil {
		return nil, fmt.Errorf("score tails: %w", err)
	}
	return rank(ids, gather(scores.RawRowView(0), ids), k, opts, func(id int64) kge.HRT {
		return kge.HRT{head, relation, id}
	}), nil
}

// Heads ranks every entity (or opts.Targets) as head of (relation, tail)
func Heads(s kge.Scorer, relation, tail int64, k int, opts Options) ([]Prediction, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	ids, err := candidates(opts.Targets, s.NumEntities())
	if err != nil {
		return nil, err
	}
	scores, err := s.ScoreH([]kge.RT{{relation, tail}})
	if err != nil {
		return nil, fmt.Errorf("score heads: %w", err)
	}
	return rank(ids, gather(scores.RawRowView(0), ids), k, opts, func(id int64) kge.HRT {
		return kge.HRT{id, relation, tail}
	}), nil
}

// Relations ranks every relation (or opts.Targets) linking head to tail
func Relations(s kge.Scorer, head, tail int64, k int, opts Options) ([]Prediction, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	ids, err := candidates(opts.Targets, s.NumRelations())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	batch := make([]kge.HRT, len(ids))
	for i, r := range ids {
		batch[i] = kge.HRT{head, r, tail}
	}
	scores, err := s.ScoreHRT(batch)
	if err != nil {
		return nil, fmt.Errorf("score relations: %w", err)
	}
	return rank(ids, mat.Col(nil, 0, scores), k, opts, func(id int64) kge.HRT {
		return kge.HRT{head, id, tail}
	}), nil
}

// candidates returns the deduplicated targets, or every id below n
func candidates(targets []int64, n int) ([]int64, error) {
	if len(targets) == 0 {
		ids := make([]int64, n)
		for i := range ids {
			ids[i] = int64(i)
		}
		return ids, nil
	}
	seen := make(map[int64]struct{}, len(targets))
	ids := make([]int64, 0, len(targets))
	for _, id := range targets {
		if id < 0 || id >= int64(n) {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidTarget, id, n)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func gather(row []float64, ids []int64) []float64 {
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = row[id]
	}
	return out
}

func rank(ids []int64, values []float64, k int, opts Options, triple func(id int64) kge.HRT) []Prediction {
	all := make([]Prediction, len(ids))
	for i, id := range ids {
		all[i] = Prediction{ID: id, Score: values[i]}
	}
	sortPredictions(all)

	out := make([]Prediction, 0, min(k, len(all)))
	for _, p := range all {
		t := triple(p.ID)
		p.InTraining = opts.Known != nil && opts.Known.Contains(t[0], t[1], t[2])
		p.InTesting = opts.Testing != nil && opts.Testing.Contains(t[0], t[1], t[2])
		if opts.RemoveKnown && (p.InTraining || p.InTesting) {
			continue
		}
		out = append(out, p)
		if len(out) == k {
			break
		}
	}
	return out
}

// Triples scores triples in chunks of batchSize and returns one score per triple
func Triples(s kge.Scorer, triples []kge.HRT, batchSize int) ([]float64, error) {
	if batchSize <= 0 {
		batchSize = len(triples)
	}
	out := make([]float64, 0, len(triples))
	for start := 0; start < len(triples); start += batchSize {
		end := start + batchSize
		if end > len(triples) {
			end = len(triples)
		}
		scores, err := s.ScoreHRT(triples[start:end])
		if err != nil {
			return nil, fmt.Errorf("score triples %d-%d: %w", start, end, err)
		}
		out = append(out, mat.Col(nil, 0, scores)...)
	}
	return out, nil
}
