package hwseg

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/jamesainslie/go-hwseg/classify"
)

// Missing-boundary policies.
const (
	// MissingUnknown scores a boundary the scorer failed on as 0.5.
	MissingUnknown = "unknown"
	// MissingForbidCut never cuts at a boundary the scorer failed on.
	MissingForbidCut = "forbid_cut"
)

// Option configures a Segmenter.
type Option func(*config)

type config struct {
	MaxHypotheses    int     `validate:"min=1"`
	Rule             string  `validate:"oneof=product weighted_log_sum"`
	StructuralWeight float64 `validate:"gte=0"`
	ClassifierWeight float64 `validate:"gte=0"`
	TieBreak         string  `validate:"oneof=fewer_groups_then_lexical"`
	FailurePolicy    string  `validate:"oneof=lowest drop"`
	MissingBoundary  string  `validate:"oneof=unknown forbid_cut"`
	PoolSize         int     `validate:"min=1"`
	Concurrency      int     `validate:"min=1"`
	Sharded          bool
	Prior            *classify.StrokeCountPrior
	Logger           *slog.Logger `validate:"required"`
}

func defaultConfig() config {
	return config{
		MaxHypotheses:    500,
		Rule:             "product",
		StructuralWeight: 1,
		ClassifierWeight: 1,
		TieBreak:         "fewer_groups_then_lexical",
		FailurePolicy:    "lowest",
		MissingBoundary:  MissingUnknown,
		PoolSize:         runtime.NumCPU(),
		Concurrency:      runtime.NumCPU(),
		Logger:           slog.Default(),
	}
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func (c *config) validate() error {
	validatorOnce.Do(func() {
		validatorInst = validator.New(validator.WithRequiredStructEnabled())
	})

	err := validatorInst.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// WithMaxHypotheses sets how many partitions are kept per recording
// (default: 500).
func WithMaxHypotheses(k int) Option {
	return func(c *config) {
		c.MaxHypotheses = k
	}
}

// WithCombination sets the re-ranking rule, "product" or
// "weighted_log_sum", and its weights (default: product, 1, 1). Weights are
// ignored by the product rule.
func WithCombination(rule string, structural, classifier float64) Option {
	return func(c *config) {
		c.Rule = rule
		c.StructuralWeight = structural
		c.ClassifierWeight = classifier
	}
}

// WithTieBreak sets the order of equally scored partitions. Only
// "fewer_groups_then_lexical" is supported.
func WithTieBreak(name string) Option {
	return func(c *config) {
		c.TieBreak = name
	}
}

// WithFailurePolicy sets what happens to a hypothesis with an unclassifiable
// group: "lowest" keeps it at the bottom, "drop" removes it
// (default: lowest).
func WithFailurePolicy(name string) Option {
	return func(c *config) {
		c.FailurePolicy = name
	}
}

// WithMissingBoundary sets how a boundary the scorer failed on is treated:
// MissingUnknown or MissingForbidCut (default: MissingUnknown).
func WithMissingBoundary(policy string) Option {
	return func(c *config) {
		c.MissingBoundary = policy
	}
}

// WithPoolSize sets the ONNX session pool size used by Open
// (default: runtime.NumCPU()).
func WithPoolSize(n int) Option {
	return func(c *config) {
		c.PoolSize = n
	}
}

// WithConcurrency bounds concurrent scorer and classifier calls per
// recording (default: runtime.NumCPU()).
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.Concurrency = n
	}
}

// WithShardedSearch splits the partition search in two concurrently searched
// halves. Results are identical to the sequential search.
func WithShardedSearch(on bool) Option {
	return func(c *config) {
		c.Sharded = on
	}
}

// WithStrokeCountPrior scales classifier confidences by the probability of
// each symbol being written with its group's stroke count.
func WithStrokeCountPrior(p *classify.StrokeCountPrior) Option {
	return func(c *config) {
		c.Prior = p
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.Logger = l
		}
	}
}
