package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// priorEpsilon is the probability of a (symbol, stroke count) pair the prior
// has never seen.
const priorEpsilon = 1e-8

// StrokeCountPrior holds, per symbol, the probability of it being written
// with a given number of strokes.
type StrokeCountPrior struct {
	probs map[string]map[int]float64
}

// NewStrokeCountPrior wraps an in-memory table.
func NewStrokeCountPrior(probs map[string]map[int]float64) *StrokeCountPrior {
	return &StrokeCountPrior{probs: probs}
}

// ParseStrokeCountPrior parses a YAML document of the form
//
//	'\alpha':
//	  1: 0.92
//	  2: 0.08
func ParseStrokeCountPrior(data []byte) (*StrokeCountPrior, error) {
	var probs map[string]map[int]float64
	if err := yaml.Unmarshal(data, &probs); err != nil {
		return nil, fmt.Errorf("parsing stroke count prior: %w", err)
	}
	for symbol, counts := range probs {
		for n, p := range counts {
			if n < 1 || p < 0 || p > 1 {
				return nil, fmt.Errorf("stroke count prior: invalid entry %q %d: %v", symbol, n, p)
			}
		}
	}
	return &StrokeCountPrior{probs: probs}, nil
}

// LoadStrokeCountPrior reads a prior from a YAML file.
func LoadStrokeCountPrior(path string) (*StrokeCountPrior, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stroke count prior: %w", err)
	}
	return ParseStrokeCountPrior(data)
}

// Prob returns the probability that symbol is written with count strokes.
func (p *StrokeCountPrior) Prob(symbol string, count int) float64 {
	if p == nil {
		return 1
	}
	if v, ok := p.probs[symbol][count]; ok && v > 0 {
		return v
	}
	return priorEpsilon
}
