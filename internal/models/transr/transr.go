package transr

import (
	"fmt"
	"log/slog"
	"math/rand"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kgscore/pkg/embedding"
	"github.com/cnclabs/kgscore/pkg/kge"
	"github.com/cnclabs/kgscore/pkg/regularizer"
)

const (
	// DefaultEmbeddingDim is the entity dimension used when Config.EmbeddingDim is zero
	DefaultEmbeddingDim = 50
	// DefaultRelationDim is the relation dimension used when Config.RelationDim is zero
	DefaultRelationDim = 30

	// maxNorm bounds entities, relations and projected entities
	maxNorm = 1.0
)

// TransR implements TransR (Lin et al., 2015)
// Entities live in R^de and every relation r owns a space R^dr with a
// projection matrix M_r (de x dr): h_r = h M_r, t_r = t M_r, h_r + r ≈ t_r
//
// Constraints:
//
//	||h||, ||r||, ||t|| <= 1
//	||h M_r||, ||t M_r|| <= 1
type TransR struct {
	numEntities  int
	numRelations int
	entityDim    int
	relationDim  int

	// Embeddings
	entities    embedding.Table // (numEntities, de)
	relations   embedding.Table // (numRelations, dr)
	projections embedding.Table // (numRelations, de*dr), viewed as de x dr

	reg     regularizer.Regularizer // optional
	workers int

	// projected entity tables keyed by relation and table versions
	cache *lru.Cache[projectionKey, *mat.Dense]
}

var (
	_ kge.Scorer      = (*TransR)(nil)
	_ kge.PostUpdater = (*TransR)(nil)
)

type projectionKey struct {
	relation          int64
	entityVersion     uint64
	projectionVersion uint64
}

// Config holds the construction parameters
type Config struct {
	NumEntities  int
	NumRelations int
	EmbeddingDim int
	RelationDim  int

	// Regularizer is optional; when set it receives the projected operands
	// once per scoring call
	Regularizer regularizer.Regularizer

	// Optional pre-built tables. Nil tables are created by Initialize.
	Entities    embedding.Table
	Relations   embedding.Table
	Projections embedding.Table

	// Workers bounds the goroutines used per scoring call, 0 means GOMAXPROCS
	Workers int

	// ProjectionCacheSize is the number of projected entity tables kept for
	// all-candidate scoring, 0 disables the cache
	ProjectionCacheSize int

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
	if cfg.RelationDim == 0 {
		cfg.RelationDim = DefaultRelationDim
	}
	if cfg.EmbeddingDim < 0 || cfg.RelationDim < 0 {
		return nil, fmt.Errorf("%w: dimensions (%d, %d)", kge.ErrInvalidConfig, cfg.EmbeddingDim, cfg.RelationDim)
	}
	if cfg.Workers < 0 || cfg.ProjectionCacheSize < 0 {
		return nil, fmt.Errorf("%w: workers %d, cache size %d", kge.ErrInvalidConfig, cfg.Workers, cfg.ProjectionCacheSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Uninitialized{cfg: cfg}, nil
}

// Initialize creates missing tables.
// Entities: Xavier uniform, clipped to norm 1.
// Relations: Xavier uniform, clipped to norm 1, then normalized to unit length.
// Projections: N(0, 1).
func (u *Uninitialized) Initialize(rng *rand.Rand) (*TransR, error) {
	cfg := u.cfg
	de, dr := cfg.EmbeddingDim, cfg.RelationDim
	if rng == nil && (cfg.Entities == nil || cfg.Relations == nil || cfg.Projections == nil) {
		return nil, fmt.Errorf("%w: nil random source with tables to create", kge.ErrInvalidConfig)
	}

	entities, err := ensureTable(cfg.Entities, cfg.NumEntities, de, func(t embedding.Table) {
		embedding.XavierUniform(t, rng)
		t.ClipMaxNorm(maxNorm)
	})
	if err != nil {
		return nil, fmt.Errorf("entity embeddings: %w", err)
	}

	relations, err := ensureTable(cfg.Relations, cfg.NumRelations, dr, func(t embedding.Table) {
		embedding.XavierUniform(t, rng)
		t.ClipMaxNorm(maxNorm)
		t.Renormalize()
	})
	if err != nil {
		return nil, fmt.Errorf("relation embeddings: %w", err)
	}

	projections, err := ensureTable(cfg.Projections, cfg.NumRelations, de*dr, func(t embedding.Table) {
		embedding.Normal(t, rng, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("relation projections: %w", err)
	}

	m := &TransR{
		numEntities:  cfg.NumEntities,
		numRelations: cfg.NumRelations,
		entityDim:    de,
		relationDim:  dr,
		entities:     entities,
		relations:    relations,
		projections:  projections,
		reg:          cfg.Regularizer,
		workers:      cfg.Workers,
	}
	if cfg.ProjectionCacheSize > 0 {
		m.cache, err = lru.New[projectionKey, *mat.Dense](cfg.ProjectionCacheSize)
		if err != nil {
			return nil, fmt.Errorf("projection cache: %w", err)
		}
	}

	cfg.Logger.Info("model setting",
		"model", "TransR",
		"entities", cfg.NumEntities,
		"relations", cfg.NumRelations,
		"entity_dimension", de,
		"relation_dimension", dr,
		"projection_cache", cfg.ProjectionCacheSize,
	)
	return m, nil
}

func ensureTable(t embedding.Table, num, dim int, fill func(embedding.Table)) (embedding.Table, error) {
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
	fill(dense)
	return dense, nil
}

// NumEntities returns the number of scorable entities
func (m *TransR) NumEntities() int { return m.numEntities }

// NumRelations returns the number of relations
func (m *TransR) NumRelations() int { return m.numRelations }

// EmbeddingDim returns the entity dimension d_e
func (m *TransR) EmbeddingDim() int { return m.entityDim }

// RelationDim returns the relation space dimension d_r
func (m *TransR) RelationDim() int { return m.relationDim }

// Entities returns the entity table for the optimizer collaborator
func (m *TransR) Entities() embedding.Table { return m.entities }

// Relations returns the relation vector table
func (m *TransR) Relations() embedding.Table { return m.relations }

// Projections returns the flattened projection matrix table
func (m *TransR) Projections() embedding.Table { return m.projections }

// PostParameterUpdate restores unit norm on every entity embedding.
// Must run after each optimizer step.
func (m *TransR) PostParameterUpdate() {
	if m.entities != nil {
		m.entities.Renormalize()
	}
}

// ScoreHRT scores complete triples, shape (batch, 1)
func (m *TransR) ScoreHRT(batch []kge.HRT) (*mat.Dense, error) {
	q, err := kge.QueryHRT(batch)
	if err != nil {
		return nil, err
	}
	return m.score(q)
}

// ScoreT scores every entity as tail, shape (batch, numEntities)
func (m *TransR) ScoreT(batch []kge.HR) (*mat.Dense, error) {
	q, err := kge.QueryT(batch)
	if err != nil {
		return nil, err
	}
	return m.score(q)
}

// ScoreH scores every entity as head, shape (batch, numEntities)
func (m *TransR) ScoreH(batch []kge.RT) (*mat.Dense, error) {
	q, err := kge.QueryH(batch)
	if err != nil {
		return nil, err
	}
	return m.score(q)
}
