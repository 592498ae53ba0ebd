// Package cli implements the kgscore command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cnclabs/kgscore/internal/config"
	"github.com/cnclabs/kgscore/pkg/knowledge"
)

// options are the flags shared by every subcommand
type options struct {
	configPath  string
	triplesPath string
	model       string
	seed        int64
	verbose     bool
}

// NewRootCommand builds the kgscore command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "kgscore",
		Short: "Score knowledge graph triples with RESCAL or TransR",
		Long: `kgscore scores (head, relation, tail) triples with the RESCAL bilinear
model or the TransR projection model.

Input format (triples):
  head relation tail [weight]
  Example: Barack_Obama born_in Hawaii 1.0

Tables are initialized from --seed; there is no embedding file format.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML model configuration")
	pf.StringVar(&opts.triplesPath, "triples", "", "knowledge graph triples file")
	pf.StringVar(&opts.model, "model", config.ModelRESCAL, "model: rescal or transr")
	pf.Int64Var(&opts.seed, "seed", 1, "random seed for table initialization")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newScoreCommand(opts), newPredictCommand(opts))
	return root
}

// Execute runs the command tree with os.Args
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config and applies flag overrides
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("model") || o.configPath == "" {
		cfg.Model = o.model
	}
	if flags.Changed("seed") || o.configPath == "" {
		cfg.Seed = o.seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) loadGraph(logger *slog.Logger) (*knowledge.KnowledgeGraph, error) {
	kg := knowledge.NewKnowledgeGraph(logger)
	if err := kg.LoadTriples(o.triplesPath); err != nil {
		return nil, err
	}
	return kg, nil
}
