package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cnclabs/kgscore/pkg/kge"
)

// Model names
const (
	ModelRESCAL = "rescal"
	ModelTransR = "transr"
)

// Regularizer kinds. The empty kind selects the model default:
// nickel2011 for RESCAL, none for TransR.
const (
	RegularizerDefault    = ""
	RegularizerNickel2011 = "nickel2011"
	RegularizerLp         = "lp"
	RegularizerNone       = "none"
)

type Config struct {
	Model               string            `yaml:"model"`
	EmbeddingDim        int               `yaml:"embedding_dim"`
	RelationDim         int               `yaml:"relation_dim"`
	Seed                int64             `yaml:"seed"`
	Workers             int               `yaml:"workers"`
	BatchSize           int               `yaml:"batch_size"`
	ProjectionCacheSize int               `yaml:"projection_cache_size"`
	Regularizer         RegularizerConfig `yaml:"regularizer"`
}

type RegularizerConfig struct {
	Kind      string  `yaml:"kind"`
	Weight    float64 `yaml:"weight"`
	P         float64 `yaml:"p"`
	Normalize bool    `yaml:"normalize"`
}

// DefaultConfig returns the settings used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Model:               ModelRESCAL,
		EmbeddingDim:        50,
		RelationDim:         30,
		Seed:                1,
		Workers:             0,
		BatchSize:           256,
		ProjectionCacheSize: 64,
		Regularizer: RegularizerConfig{
			Kind:      RegularizerDefault,
			Weight:    10,
			P:         2,
			Normalize: true,
		},
	}
}

// Load overlays the YAML file at path on DefaultConfig
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the model name, dimensions and regularizer settings
func (c *Config) Validate() error {
	switch c.Model {
	case ModelRESCAL, ModelTransR:
	default:
		return fmt.Errorf("%w: unknown model %q", kge.ErrInvalidConfig, c.Model)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive", kge.ErrInvalidConfig)
	}
	if c.Model == ModelTransR && c.RelationDim <= 0 {
		return fmt.Errorf("%w: relation_dim must be positive", kge.ErrInvalidConfig)
	}
	if c.Workers < 0 || c.BatchSize <= 0 || c.ProjectionCacheSize < 0 {
		return fmt.Errorf("%w: workers, batch_size and projection_cache_size must not be negative, batch_size must be positive",
			kge.ErrInvalidConfig)
	}
	switch c.Regularizer.Kind {
	case RegularizerDefault, RegularizerNickel2011, RegularizerNone:
	case RegularizerLp:
		if c.Regularizer.P <= 0 {
			return fmt.Errorf("%w: regularizer p must be positive", kge.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown regularizer %q", kge.ErrInvalidConfig, c.Regularizer.Kind)
	}
	return nil
}
