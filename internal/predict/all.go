package predict

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/cnclabs/kgscore/pkg/kge"
)

// ScoredTriple is one entry of a graph-wide ranking
type ScoredTriple struct {
	Triple kge.HRT
	Score  float64
}

// worse orders by ascending score, then descending triple, so the
// heap root is the entry to evict first
func worse(a, b ScoredTriple) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return tripleLess(b.Triple, a.Triple)
}

func tripleLess(a, b kge.HRT) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// resultHeap keeps the k best triples seen so far, worst at the root
type resultHeap []ScoredTriple

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(ScoredTriple)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *resultHeap) offer(t ScoredTriple, k int) {
	if h.Len() < k {
		heap.Push(h, t)
		return
	}
	if worse((*h)[0], t) {
		(*h)[0] = t
		heap.Fix(h, 0)
	}
}

// All returns the k highest scoring triples over every (head, relation)
// pair and every tail. Tail scores are computed batchSize pairs at a
// time; batchSize <= 0 scores all pairs in one call. Ties are broken by
// ascending (head, relation, tail).
func All(s kge.Scorer, k, batchSize int) ([]ScoredTriple, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	numEntities, numRelations := s.NumEntities(), s.NumRelations()
	pairs := numEntities * numRelations
	if pairs == 0 {
		return nil, nil
	}
	if batchSize <= 0 || batchSize > pairs {
		batchSize = pairs
	}

	results := make(resultHeap, 0, k)
	batch := make([]kge.HR, 0, batchSize)
	for start := 0; start < pairs; start += batchSize {
		end := min(start+batchSize, pairs)
		batch = batch[:0]
		for p := start; p < end; p++ {
			batch = append(batch, kge.HR{int64(p / numRelations), int64(p % numRelations)})
		}

		scores, err := s.ScoreT(batch)
		if err != nil {
			return nil, fmt.Errorf("score pairs %d-%d: %w", start, end, err)
		}
		for i, hr := range batch {
			for tail, score := range scores.RawRowView(i) {
				results.offer(ScoredTriple{Triple: kge.HRT{hr[0], hr[1], int64(tail)}, Score: score}, k)
			}
		}
	}

	out := []ScoredTriple(results)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out, nil
}
