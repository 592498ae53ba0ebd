package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cnclabs/kgscore/internal/predict"
)

func newScoreCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Score every triple in the triples file",
		Long: `Score every triple in --triples and print one line per triple:

  head relation tail score

Higher scores mean more plausible triples for both models.`,
		Example: `  kgscore score --triples kg.txt
  kgscore score --triples kg.txt --model transr --config model.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.triplesPath == "" {
				return errors.New("--triples is required")
			}
			logger := opts.logger(cmd.ErrOrStderr())

			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			kg, err := opts.loadGraph(logger)
			if err != nil {
				return err
			}
			scorer, err := buildScorer(cfg, kg, logger)
			if err != nil {
				return err
			}

			start := time.Now()
			scores, err := predict.Triples(scorer, kg.MappedTriples(), cfg.BatchSize)
			if err != nil {
				return err
			}
			logger.Info("scored triples", "triples", len(scores), "elapsed", time.Since(start))

			out := cmd.OutOrStdout()
			for i, t := range kg.Triples {
				fmt.Fprintf(out, "%s\t%s\t%s\t%.6f\n",
					kg.GetEntityName(t.Head), kg.GetRelationName(t.Relation), kg.GetEntityName(t.Tail), scores[i])
			}
			return nil
		},
	}
}
