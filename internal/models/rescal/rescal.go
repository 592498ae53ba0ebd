package rescal

import (
	"fmt"
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kgscore/pkg/embedding"
	"github.com/cnclabs/kgscore/pkg/kge"
	"github.com/cnclabs/kgscore/pkg/regularizer"
	"github.com/cnclabs/kgscore/pkg/tensor"
)

// DefaultEmbeddingDim is used when Config.EmbeddingDim is zero
const DefaultEmbeddingDim = 50

// RESCAL implements the bilinear RESCAL model (Nickel et al., 2011)
// Every relation is a full d x d matrix R and a triple scores h · R · t
type RESCAL struct {
	numEntities  int
	numRelations int
	dim          int

	// Embeddings
	entities  embedding.Table // (numEntities, d)
	relations embedding.Table // (numRelations, d*d), viewed as d x d

	reg regularizer.Regularizer
}

var (
	_ kge.Scorer      = (*RESCAL)(nil)
	_ kge.PostUpdater = (*RESCAL)(nil)
)

// Config holds the construction parameters
type Config struct {
	NumEntities  int
	NumRelations int
	EmbeddingDim int

	// Regularizer receives (h, R, t) once per scoring call.
	// Nil selects regularizer.NewNickel2011; pass regularizer.Nop{} to disable.
	Regularizer regularizer.Regularizer

	// Optional pre-built tables. Nil tables are created by Initialize.
	Entities  embedding.Table
	Relations embedding.Table

	Logger *slog.Logger
}

// Uninitialized is a validated configuration whose tables are not populated yet
type Uninitialized struct {
	cfg Config
}

// New validates cfg and fills in defaults
func New(cfg Config) (*Uninitialized, error) {
	if cfg.NumEntities <= 0 || cfg.NumRelations <= 0 {
		return nil, fmt.Errorf("%w: need at least one entity and one relation, got %d and %d",
			kge.ErrInvalidConfig, cfg.NumEntities, cfg.NumRelations)
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.EmbeddingDim < 0 {
		return nil, fmt.Errorf("%w: embedding dimension %d", kge.ErrInvalidConfig, cfg.EmbeddingDim)
	}
	if cfg.Regularizer == nil {
		cfg.Regularizer = regularizer.NewNickel2011()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Uninitialized{cfg: cfg}, nil
}

// Initialize creates missing tables and fills them from N(0, 1)
func (u *Uninitialized) Initialize(rng *rand.Rand) (*RESCAL, error) {
	cfg := u.cfg
	d := cfg.EmbeddingDim
	if rng == nil && (cfg.Entities == nil || cfg.Relations == nil) {
		return nil, fmt.Errorf("%w: nil random source with tables to create", kge.ErrInvalidConfig)
	}

	entities, err := ensureTable(cfg.Entities, cfg.NumEntities, d, rng)
	if err != nil {
		return nil, fmt.Errorf("entity embeddings: %w", err)
	}
	relations, err := ensureTable(cfg.Relations, cfg.NumRelations, d*d, rng)
	if err != nil {
		return nil, fmt.Errorf("relation embeddings: %w", err)
	}

	cfg.Logger.Info("model setting",
		"model", "RESCAL",
		"entities", cfg.NumEntities,
		"relations", cfg.NumRelations,
		"dimension", d,
		"regularizer", fmt.Sprintf("%T", cfg.Regularizer),
	)

	return &RESCAL{
		numEntities:  cfg.NumEntities,
		numRelations: cfg.NumRelations,
		dim:          d,
		entities:     entities,
		relations:    relations,
		reg:          cfg.Regularizer,
	}, nil
}

func ensureTable(t embedding.Table, num, dim int, rng *rand.Rand) (embedding.Table, error) {
	if t != nil {
		if t.Num() != num || t.Dim() != dim {
			return nil, fmt.Errorf("%w: table is (%d, %d), expected (%d, %d)",
				kge.ErrDimensionMismatch, t.Num(), t.Dim(), num, dim)
		}
		return t, nil
	}
	dense, err := embedding.NewDense(num, dim)
	if err != nil {
		return nil, err
	}
	embedding.Normal(dense, rng, 1)
	return dense, nil
}

// NumEntities returns the number of scorable entities
func (m *RESCAL) NumEntities() int { return m.numEntities }

// NumRelations returns the number of relations
func (m *RESCAL) NumRelations() int { return m.numRelations }

// EmbeddingDim returns d, the entity dimension and the relation matrix side
func (m *RESCAL) EmbeddingDim() int { return m.dim }

// Entities returns the entity table for the optimizer collaborator
func (m *RESCAL) Entities() embedding.Table { return m.entities }

// Relations returns the flattened relation matrix table
func (m *RESCAL) Relations() embedding.Table { return m.relations }

// Regularizer returns the accumulator scoring calls report to
func (m *RESCAL) Regularizer() regularizer.Regularizer { return m.reg }

// PostParameterUpdate is a no-op: RESCAL keeps no norm constraints
func (m *RESCAL) PostParameterUpdate() {}

// ScoreHRT scores complete triples, shape (batch, 1)
func (m *RESCAL) ScoreHRT(batch []kge.HRT) (*mat.Dense, error) {
	q, err := kge.QueryHRT(batch)
	if err != nil {
		return nil, err
	}
	return m.score(q)
}

// ScoreT scores every entity as tail, shape (batch, numEntities)
func (m *RESCAL) ScoreT(batch []kge.HR) (*mat.Dense, error) {
	q, err := kge.QueryT(batch)
	if err != nil {
		return nil, err
	}
	return m.score(q)
}

// ScoreH scores every entity as head, shape (batch, numEntities)
func (m *RESCAL) ScoreH(batch []kge.RT) (*mat.Dense, error) {
	q, err := kge.QueryH(batch)
	if err != nil {
		return nil, err
	}
	return m.score(q)
}

// score evaluates h @ R @ t for any slot binding
func (m *RESCAL) score(q kge.Query) (*mat.Dense, error) {
	if m == nil || m.entities == nil || m.relations == nil {
		return nil, kge.ErrNotInitialized
	}

	// shape: (b, 1, d) or (1, N, d)
	h, err := m.heads(q.Heads)
	if err != nil {
		return nil, err
	}
	// shape: (b, d, d)
	r, err := m.lookup(m.relations, q.Relations, m.dim, m.dim)
	if err != nil {
		return nil, err
	}
	// shape: (b, d, 1) or (1, d, N)
	t, err := m.tails(q.Tails)
	if err != nil {
		return nil, err
	}

	// h @ (R @ t) when heads range over all entities, (h @ R) @ t otherwise
	var scores *tensor.Stack
	if q.Heads == nil {
		rt, err := tensor.MatMul(r, t)
		if err != nil {
			return nil, err
		}
		scores, err = tensor.MatMul(h, rt)
		if err != nil {
			return nil, err
		}
	} else {
		hr, err := tensor.MatMul(h, r)
		if err != nil {
			return nil, err
		}
		scores, err = tensor.MatMul(hr, t)
		if err != nil {
			return nil, err
		}
	}

	m.reg.Accumulate(h, r, t)

	// (b,1,1), (b,1,N) and (b,N,1) all flatten to (b, cols)
	return scores.Flatten(), nil
}

func (m *RESCAL) heads(ids []int64) (*tensor.Stack, error) {
	if ids == nil {
		return tensor.Broadcast(m.entities.All()), nil
	}
	return m.lookup(m.entities, ids, 1, m.dim)
}

func (m *RESCAL) tails(ids []int64) (*tensor.Stack, error) {
	if ids == nil {
		return tensor.BroadcastTransposed(m.entities.All()), nil
	}
	return m.lookup(m.entities, ids, m.dim, 1)
}

func (m *RESCAL) lookup(table embedding.Table, ids []int64, rows, cols int) (*tensor.Stack, error) {
	emb, err := table.Lookup(ids)
	if err != nil {
		return nil, err
	}
	s, err := tensor.StackFromDense(emb, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kge.ErrDimensionMismatch, err)
	}
	return s, nil
}
