package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cnclabs/kgscore/internal/predict"
	"github.com/cnclabs/kgscore/pkg/knowledge"
)

type predictOptions struct {
	head        string
	relation    string
	tail        string
	topK        int
	removeKnown bool
	targets     []string
	testingPath string
}

func newPredictCommand(opts *options) *cobra.Command {
	p := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Rank candidate tails, heads, relations or whole triples",
		Long: `Rank candidates for a partial triple:

  --head and --relation     rank tails
  --relation and --tail     rank heads
  --head and --tail         rank relations
  none of them              rank every (head, relation, tail) triple

Candidates already present in --triples are marked with '*', those in
--testing with '+'. --remove-known drops both instead. --targets limits
the candidates to the given labels.`,
		Example: `  kgscore predict --triples kg.txt --head Barack_Obama --relation born_in
  kgscore predict --triples kg.txt --relation part_of --tail USA --top-k 3 --remove-known
  kgscore predict --triples kg.txt --head Barack_Obama --tail USA --testing test.txt
  kgscore predict --triples kg.txt --top-k 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.triplesPath == "" {
				return errors.New("--triples is required")
			}
			mode, err := p.mode()
			if err != nil {
				return err
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
			popts := predict.Options{Known: kg, RemoveKnown: p.removeKnown}
			if p.testingPath != "" {
				testing, err := loadTesting(kg, p.testingPath)
				if err != nil {
					return err
				}
				popts.Testing = testing
			}
			scorer, err := buildScorer(cfg, kg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if mode == modeAll {
				if len(p.targets) > 0 {
					return errors.New("--targets needs --head, --relation or --tail")
				}
				top, err := predict.All(scorer, p.topK, cfg.BatchSize)
				if err != nil {
					return err
				}
				printTriples(out, kg, popts, top)
				return nil
			}

			lookup, name := kg.EntityID, kg.GetEntityName
			if mode == modeRelations {
				lookup, name = kg.RelationID, kg.GetRelationName
			}
			for _, label := range p.targets {
				id, err := lookup(label)
				if err != nil {
					return err
				}
				popts.Targets = append(popts.Targets, id)
			}

			var preds []predict.Prediction
			switch mode {
			case modeTails:
				head, rel, err := resolve(kg.EntityID, p.head, kg.RelationID, p.relation)
				if err != nil {
					return err
				}
				preds, err = predict.Tails(scorer, head, rel, p.topK, popts)
				if err != nil {
					return err
				}
			case modeHeads:
				rel, tail, err := resolve(kg.RelationID, p.relation, kg.EntityID, p.tail)
				if err != nil {
					return err
				}
				preds, err = predict.Heads(scorer, rel, tail, p.topK, popts)
				if err != nil {
					return err
				}
			case modeRelations:
				head, tail, err := resolve(kg.EntityID, p.head, kg.EntityID, p.tail)
				if err != nil {
					return err
				}
				preds, err = predict.Relations(scorer, head, tail, p.topK, popts)
				if err != nil {
					return err
				}
			}

			for i, pr := range preds {
				fmt.Fprintf(out, "%d\t%s\t%.6f%s\n", i+1, name(pr.ID), pr.Score, mark(pr.InTraining, pr.InTesting))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.head, "head", "", "head entity label")
	f.StringVar(&p.relation, "relation", "", "relation label")
	f.StringVar(&p.tail, "tail", "", "tail entity label")
	f.IntVarP(&p.topK, "top-k", "k", 10, "number of candidates to print")
	f.BoolVar(&p.removeKnown, "remove-known", false, "drop candidates found in --triples or --testing")
	f.StringSliceVar(&p.targets, "targets", nil, "restrict candidates to these labels")
	f.StringVar(&p.testingPath, "testing", "", "held-out triples file, marked with '+'")
	return cmd
}

type predictMode int

const (
	modeTails predictMode = iota
	modeHeads
	modeRelations
	modeAll
)

func (p *predictOptions) mode() (predictMode, error) {
	h, r, t := p.head != "", p.relation != "", p.tail != ""
	switch {
	case h && r && !t:
		return modeTails, nil
	case !h && r && t:
		return modeHeads, nil
	case h && !r && t:
		return modeRelations, nil
	case !h && !r && !t:
		return modeAll, nil
	}
	return 0, errors.New("give two of --head, --relation and --tail, or none of them")
}

// printTriples writes graph-wide predictions; --remove-known filters after ranking
func printTriples(out io.Writer, kg *knowledge.KnowledgeGraph, popts predict.Options, top []predict.ScoredTriple) {
	rank := 0
	for _, st := range top {
		h, r, t := st.Triple[0], st.Triple[1], st.Triple[2]
		inTraining := kg.Contains(h, r, t)
		inTesting := popts.Testing != nil && popts.Testing.Contains(h, r, t)
		if popts.RemoveKnown && (inTraining || inTesting) {
			continue
		}
		rank++
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%.6f%s\n", rank,
			kg.GetEntityName(h), kg.GetRelationName(r), kg.GetEntityName(t), st.Score, mark(inTraining, inTesting))
	}
}

func resolve(first func(string) (int64, error), a string, second func(string) (int64, error), b string) (int64, int64, error) {
	x, err := first(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := second(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func mark(inTraining, inTesting bool) string {
	switch {
	case inTraining:
		return "*"
	case inTesting:
		return "+"
	}
	return ""
}

func loadTesting(kg *knowledge.KnowledgeGraph, path string) (predict.TripleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	triples, err := kg.MapTriples(f)
	if err != nil {
		return nil, fmt.Errorf("testing triples: %w", err)
	}
	return predict.NewTripleSet(triples), nil
}
