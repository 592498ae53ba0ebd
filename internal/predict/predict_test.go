package predict

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kgscore/pkg/kge"
)

// fixedScorer scores candidate e as weights[e] regardless of the query,
// and a full triple as head + 10*relation + 100*tail
type fixedScorer struct {
	weights   []float64
	relations int
	calls     int
}

func (f *fixedScorer) row(n int) *mat.Dense {
	out := mat.NewDense(n, len(f.weights), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, f.weights)
	}
	return out
}

func (f *fixedScorer) ScoreHRT(batch []kge.HRT) (*mat.Dense, error) {
	f.calls++
	if len(batch) == 0 {
		return nil, kge.ErrEmptyBatch
	}
	out := mat.NewDense(len(batch), 1, nil)
	for i, t := range batch {
		out.Set(i, 0, float64(t[0]+10*t[1]+100*t[2]))
	}
	return out, nil
}

func (f *fixedScorer) ScoreT(batch []kge.HR) (*mat.Dense, error) { return f.row(len(batch)), nil }
func (f *fixedScorer) ScoreH(batch []kge.RT) (*mat.Dense, error) { return f.row(len(batch)), nil }
func (f *fixedScorer) NumEntities() int                          { return len(f.weights) }
func (f *fixedScorer) NumRelations() int                         { return max(f.relations, 1) }

type knownSet map[kge.HRT]bool

func (k knownSet) Contains(h, r, t int64) bool { return k[kge.HRT{h, r, t}] }

func ids(p []Prediction) []int64 {
	out := make([]int64, len(p))
	for i := range p {
		out[i] = p[i].ID
	}
	return out
}

func TestTopK(t *testing.T) {
	scores := mat.NewDense(1, 5, []float64{0.1, 0.9, 0.5, 0.9, -1})

	got, err := TopK(scores, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, ids(got))
	assert.Equal(t, 0.9, got[0].Score)

	got, err = TopK(scores, 0, 50)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	_, err = TopK(scores, 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidK))
}

func TestTails(t *testing.T) {
	s := &fixedScorer{weights: []float64{0.3, 0.8, 0.1, 0.6}}
	known := knownSet{{0, 0, 1}: true}

	t.Run("mark known", func(t *testing.T) {
		got, err := Tails(s, 0, 0, 2, Options{Known: known})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, ids(got))
		assert.True(t, got[0].InTraining)
		assert.False(t, got[1].InTraining)
	})

	t.Run("remove known", func(t *testing.T) {
		got, err := Tails(s, 0, 0, 2, Options{Known: known, RemoveKnown: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 0}, ids(got))
	})

	t.Run("no filter", func(t *testing.T) {
		got, err := Tails(s, 0, 0, 10, Options{})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 0, 2}, ids(got))
	})
}

func TestHeads(t *testing.T) {
	s := &fixedScorer{weights: []float64{0.3, 0.8, 0.1, 0.6}}
	known := knownSet{{3, 0, 2}: true}

	got, err := Heads(s, 0, 2, 3, Options{Known: known, RemoveKnown: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0, 2}, ids(got))
}

func TestTriplesChunks(t *testing.T) {
	s := &fixedScorer{weights: []float64{0}}
	triples := []kge.HRT{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {2, 2, 2}, {3, 0, 0}}

	got, err := Triples(s, triples, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 10, 100, 222, 3}, got)
	assert.Equal(t, 3, s.calls)
}

func TestTriplesPropagatesError(t *testing.T) {
	s := &fixedScorer{weights: []float64{0}}
	_, err := Triples(s, nil, 0)
	require.NoError(t, err)

	_, err = Tails(s, 0, 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrInvalidK))
}

func TestTailsTargets(t *testing.T) {
	s := &fixedScorer{weights: []float64{0.3, 0.8, 0.1, 0.6}}

	got, err := Tails(s, 0, 0, 10, Options{Targets: []int64{2, 0, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, ids(got))
	assert.Equal(t, 0.3, got[0].Score)

	_, err = Tails(s, 0, 0, 10, Options{Targets: []int64{4}})
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	_, err = Heads(s, 0, 0, 10, Options{Targets: []int64{-1}})
	assert.True(t, errors.Is(err, ErrInvalidTarget))
}

func TestTestingFilter(t *testing.T) {
	s := &fixedScorer{weights: []float64{0.3, 0.8, 0.1, 0.6}}
	training := knownSet{{0, 0, 1}: true}
	testing := NewTripleSet([]kge.HRT{{0, 0, 3}})

	got, err := Tails(s, 0, 0, 3, Options{Known: training, Testing: testing})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 0}, ids(got))
	assert.True(t, got[0].InTraining)
	assert.False(t, got[0].InTesting)
	assert.False(t, got[1].InTraining)
	assert.True(t, got[1].InTesting)
	assert.False(t, got[2].InTraining || got[2].InTesting)

	got, err = Tails(s, 0, 0, 3, Options{Known: training, Testing: testing, RemoveKnown: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, ids(got))
}

func TestRelations(t *testing.T) {
	// ScoreHRT grows with the relation id
	s := &fixedScorer{weights: []float64{0, 0, 0}, relations: 4}
	known := knownSet{{1, 3, 2}: true}

	got, err := Relations(s, 1, 2, 2, Options{Known: known})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, ids(got))
	assert.Equal(t, float64(1+30+200), got[0].Score)
	assert.True(t, got[0].InTraining)
	assert.Equal(t, 1, s.calls)

	got, err = Relations(s, 1, 2, 10, Options{Known: known, RemoveKnown: true, Targets: []int64{0, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, ids(got))

	_, err = Relations(s, 1, 2, 10, Options{Targets: []int64{4}})
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	_, err = Relations(s, 1, 2, 0, Options{})
	assert.True(t, errors.Is(err, ErrInvalidK))
}

// gridScorer scores (h, r, t) from a closure in every mode
type gridScorer struct {
	entities, relations int
	score               func(h, r, t int64) float64
	tCalls              int
}

func (g *gridScorer) ScoreHRT(batch []kge.HRT) (*mat.Dense, error) {
	out := mat.NewDense(len(batch), 1, nil)
	for i, t := range batch {
		out.Set(i, 0, g.score(t[0], t[1], t[2]))
	}
	return out, nil
}

func (g *gridScorer) ScoreT(batch []kge.HR) (*mat.Dense, error) {
	g.tCalls++
	if len(batch) == 0 {
		return nil, kge.ErrEmptyBatch
	}
	out := mat.NewDense(len(batch), g.entities, nil)
	for i, hr := range batch {
		for e := 0; e < g.entities; e++ {
			out.Set(i, e, g.score(hr[0], hr[1], int64(e)))
		}
	}
	return out, nil
}

func (g *gridScorer) ScoreH(batch []kge.RT) (*mat.Dense, error) {
	out := mat.NewDense(len(batch), g.entities, nil)
	for i, rt := range batch {
		for e := 0; e < g.entities; e++ {
			out.Set(i, e, g.score(int64(e), rt[0], rt[1]))
		}
	}
	return out, nil
}

func (g *gridScorer) NumEntities() int  { return g.entities }
func (g *gridScorer) NumRelations() int { return g.relations }

func TestAll(t *testing.T) {
	g := &gridScorer{entities: 4, relations: 3, score: func(h, r, t int64) float64 {
		return float64((h*7+r*5+t*3)%11) - 0.01*float64(h)
	}}

	var brute []ScoredTriple
	for h := int64(0); h < 4; h++ {
		for r := int64(0); r < 3; r++ {
			for tl := int64(0); tl < 4; tl++ {
				brute = append(brute, ScoredTriple{Triple: kge.HRT{h, r, tl}, Score: g.score(h, r, tl)})
			}
		}
	}
	sortTriples(brute)

	for _, tc := range []struct {
		name      string
		batchSize int
		calls     int
	}{
		{"one call", 0, 1},
		{"batched", 5, 3},
		{"single pairs", 1, 12},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g.tCalls = 0
			got, err := All(g, 7, tc.batchSize)
			require.NoError(t, err)
			assert.Equal(t, brute[:7], got)
			assert.Equal(t, tc.calls, g.tCalls)
		})
	}

	got, err := All(g, 1000, 4)
	require.NoError(t, err)
	assert.Equal(t, brute, got)
}

func TestAllTies(t *testing.T) {
	g := &gridScorer{entities: 2, relations: 2, score: func(h, r, t int64) float64 { return 1 }}

	got, err := All(g, 3, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, kge.HRT{0, 0, 0}, got[0].Triple)
	assert.Equal(t, kge.HRT{0, 0, 1}, got[1].Triple)
	assert.Equal(t, kge.HRT{0, 1, 0}, got[2].Triple)

	_, err = All(g, 0, 1)
	assert.True(t, errors.Is(err, ErrInvalidK))

	got, err = All(&gridScorer{}, 5, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func sortTriples(s []ScoredTriple) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && worse(s[j-1], s[j]); j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
