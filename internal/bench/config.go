package bench

import (
	"fmt"

	"github.com/BurntSushi/toml"

	hwseg "github.com/jamesainslie/go-hwseg"
)

// Config is a bench run configuration, usually read from a TOML file:
//
//	corpus = "testdata/corpus"
//	workers = 8
//	max_hypotheses = 500
//
//	[combination]
//	rule = "weighted_log_sum"
//	structural_weight = 1.0
//	classifier_weight = 0.5
type Config struct {
	Corpus          string      `toml:"corpus"`
	PairModel       string      `toml:"pair_model"`
	SymbolModel     string      `toml:"symbol_model"`
	Labels          string      `toml:"labels"`
	Prior           string      `toml:"prior"`
	Workers         int         `toml:"workers"`
	MaxHypotheses   int         `toml:"max_hypotheses"`
	FailurePolicy   string      `toml:"failure_policy"`
	MissingBoundary string      `toml:"missing_boundary"`
	Sharded         bool        `toml:"sharded"`
	Combination     Combination `toml:"combination"`
	Sweep           SweepConfig `toml:"sweep"`
}

// Combination selects the re-ranking rule.
type Combination struct {
	Rule             string  `toml:"rule"`
	StructuralWeight float64 `toml:"structural_weight"`
	ClassifierWeight float64 `toml:"classifier_weight"`
}

// SweepConfig is the structural weight range of a sweep.
type SweepConfig struct {
	Min  float64 `toml:"min"`
	Max  float64 `toml:"max"`
	Step float64 `toml:"step"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Corpus:          "testdata/corpus",
		Workers:         4,
		MaxHypotheses:   500,
		FailurePolicy:   "lowest",
		MissingBoundary: hwseg.MissingUnknown,
		Combination: Combination{
			Rule:             "product",
			StructuralWeight: 1,
			ClassifierWeight: 1,
		},
		Sweep: SweepConfig{Min: 0.1, Max: 2.0, Step: 0.1},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys missing from the
// file keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("decode %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Options converts the configuration into segmenter options.
func (c Config) Options() []hwseg.Option {
	return []hwseg.Option{
		hwseg.WithMaxHypotheses(c.MaxHypotheses),
		hwseg.WithCombination(c.Combination.Rule, c.Combination.StructuralWeight, c.Combination.ClassifierWeight),
		hwseg.WithFailurePolicy(c.FailurePolicy),
		hwseg.WithMissingBoundary(c.MissingBoundary),
		hwseg.WithShardedSearch(c.Sharded),
	}
}
