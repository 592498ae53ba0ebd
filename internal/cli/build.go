package cli

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cnclabs/kgscore/internal/config"
	"github.com/cnclabs/kgscore/internal/models/rescal"
	"github.com/cnclabs/kgscore/internal/models/transr"
	"github.com/cnclabs/kgscore/pkg/kge"
	"github.com/cnclabs/kgscore/pkg/knowledge"
	"github.com/cnclabs/kgscore/pkg/regularizer"
)

// buildScorer creates and initializes the configured model over the graph vocabulary
func buildScorer(cfg *config.Config, kg *knowledge.KnowledgeGraph, logger *slog.Logger) (kge.Scorer, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	reg := newRegularizer(cfg.Regularizer)

	switch cfg.Model {
	case config.ModelRESCAL:
		u, err := rescal.New(rescal.Config{
			NumEntities:  int(kg.NumEntities),
			NumRelations: int(kg.NumRelations),
			EmbeddingDim: cfg.EmbeddingDim,
			Regularizer:  reg,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		m, err := u.Initialize(rng)
		if err != nil {
			return nil, err
		}
		return m, nil

	case config.ModelTransR:
		u, err := transr.New(transr.Config{
			NumEntities:         int(kg.NumEntities),
			NumRelations:        int(kg.NumRelations),
			EmbeddingDim:        cfg.EmbeddingDim,
			RelationDim:         cfg.RelationDim,
			Regularizer:         reg,
			Workers:             cfg.Workers,
			ProjectionCacheSize: cfg.ProjectionCacheSize,
			Logger:              logger,
		})
		if err != nil {
			return nil, err
		}
		m, err := u.Initialize(rng)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown model %q", kge.ErrInvalidConfig, cfg.Model)
}

// newRegularizer returns nil for the model default
func newRegularizer(cfg config.RegularizerConfig) regularizer.Regularizer {
	switch cfg.Kind {
	case config.RegularizerNickel2011:
		return regularizer.NewNickel2011()
	case config.RegularizerLp:
		return regularizer.NewLp(cfg.Weight, cfg.P, cfg.Normalize)
	case config.RegularizerNone:
		return regularizer.Nop{}
	}
	return nil
}
