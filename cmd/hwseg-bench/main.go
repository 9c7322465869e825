package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	hwseg "github.com/jamesainslie/go-hwseg"
	"github.com/jamesainslie/go-hwseg/classify"
	"github.com/jamesainslie/go-hwseg/inference"
	"github.com/jamesainslie/go-hwseg/ink"
	"github.com/jamesainslie/go-hwseg/internal/bench"
)

func main() {
	// .env supplies model path defaults; a missing file is fine
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "Path to TOML run configuration")
		corpusDir  = flag.String("corpus", "testdata/corpus", "Directory containing recordings (.json, .inkpb)")
		pairModel  = flag.String("pair", os.Getenv("HWSEG_PAIR_MODEL"), "Path to pairwise merge ONNX model (default: geometric scorer)")
		symbol     = flag.String("symbol", os.Getenv("HWSEG_SYMBOL_MODEL"), "Path to symbol classifier ONNX model")
		labels     = flag.String("labels", os.Getenv("HWSEG_LABELS"), "Path to symbol labels file")
		priorPath  = flag.String("prior", "", "Path to stroke count prior YAML")
		workers    = flag.Int("workers", 4, "Recordings segmented in parallel")
		maxHyps    = flag.Int("k", 500, "Maximum number of hypotheses")
		rule       = flag.String("rule", "product", "Combination rule: product or weighted_log_sum")
		ws         = flag.Float64("ws", 1.0, "Structural weight")
		wc         = flag.Float64("wc", 1.0, "Classifier weight")
		sweep      = flag.Bool("sweep", false, "Run structural weight sweep")
		sweepMin   = flag.Float64("sweep-min", 0.1, "Sweep minimum structural weight")
		sweepMax   = flag.Float64("sweep-max", 2.0, "Sweep maximum structural weight")
		sweepStep  = flag.Float64("sweep-step", 0.1, "Sweep step size")
		out        = flag.String("out", "", "Write per-recording records to this msgpack file")
		merge      = flag.String("merge", "", "Comma-separated records files to summarize instead of running")
		verbose    = flag.Bool("v", false, "Log debug output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	runID := uuid.NewString()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("run", runID)

	if *merge != "" {
		runMerge(strings.Split(*merge, ","))
		return
	}

	cfg := bench.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = bench.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Explicit flags override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "corpus":
			cfg.Corpus = *corpusDir
		case "pair":
			cfg.PairModel = *pairModel
		case "symbol":
			cfg.SymbolModel = *symbol
		case "labels":
			cfg.Labels = *labels
		case "prior":
			cfg.Prior = *priorPath
		case "workers":
			cfg.Workers = *workers
		case "k":
			cfg.MaxHypotheses = *maxHyps
		case "rule":
			cfg.Combination.Rule = *rule
		case "ws":
			cfg.Combination.StructuralWeight = *ws
		case "wc":
			cfg.Combination.ClassifierWeight = *wc
		case "sweep-min":
			cfg.Sweep.Min = *sweepMin
		case "sweep-max":
			cfg.Sweep.Max = *sweepMax
		case "sweep-step":
			cfg.Sweep.Step = *sweepStep
		}
	})
	if cfg.PairModel == "" {
		cfg.PairModel = *pairModel
	}
	if cfg.SymbolModel == "" {
		cfg.SymbolModel = *symbol
	}
	if cfg.Labels == "" {
		cfg.Labels = *labels
	}

	recordings, err := bench.LoadCorpus(cfg.Corpus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading corpus: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Run %s: loaded %d recordings from %s\n\n", runID, len(recordings), cfg.Corpus)

	scorer, clf, closers, err := loadModels(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading models: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	opts := append(cfg.Options(), hwseg.WithLogger(logger))
	if cfg.Prior != "" {
		prior, err := classify.LoadStrokeCountPrior(cfg.Prior)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading prior: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, hwseg.WithStrokeCountPrior(prior))
	}

	ctx := context.Background()

	if *sweep {
		runSweep(ctx, scorer, clf, recordings, cfg, logger)
		return
	}

	seg, err := hwseg.New(scorer, clf, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating segmenter: %v\n", err)
		os.Exit(1)
	}

	records, err := bench.Run(ctx, seg, recordings, cfg.Workers, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running benchmark: %v\n", err)
		os.Exit(1)
	}
	if *out != "" {
		if err := bench.SaveRecords(*out, runID, records); err != nil {
			fmt.Fprintf(os.Stderr, "error writing records: %v\n", err)
			os.Exit(1)
		}
	}

	printSummary(bench.Aggregate(records))
}

// loadModels builds the scorer and classifier named by cfg. A missing pair
// model selects the geometric scorer; a missing symbol model disables
// re-ranking.
func loadModels(cfg bench.Config) (classify.MergeScorer, classify.SymbolClassifier, []io.Closer, error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	var scorer classify.MergeScorer
	if cfg.PairModel != "" {
		pool, err := inference.NewPool(cfg.PairModel, inference.DefaultIO(), cfg.Workers)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("pair model: %w", err)
		}
		closers = append(closers, pool)
		scorer = classify.NewONNXMergeScorer(pool, nil)
	}

	var clf classify.SymbolClassifier
	if cfg.SymbolModel != "" {
		if cfg.Labels == "" {
			closeAll()
			return nil, nil, nil, errors.New("symbol model needs a labels file")
		}
		labels, err := classify.LoadLabels(cfg.Labels)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		pool, err := inference.NewPool(cfg.SymbolModel, inference.DefaultIO(), cfg.Workers)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("symbol model: %w", err)
		}
		closers = append(closers, pool)
		clf = classify.NewONNXSymbolClassifier(pool, labels, nil)
	}

	return scorer, clf, closers, nil
}

func runSweep(ctx context.Context, scorer classify.MergeScorer, clf classify.SymbolClassifier, recordings []ink.Recording, cfg bench.Config, logger *slog.Logger) {
	weights := bench.SweepWeights(cfg.Sweep.Min, cfg.Sweep.Max, cfg.Sweep.Step)

	fmt.Printf("Structural Weight Sweep (wc=%.2f)\n", cfg.Combination.ClassifierWeight)
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("%-8s %-8s %-8s %-8s %-8s\n", "ws", "TOP-1", "TOP-3", "TOP-10", "Mean")

	results, err := bench.Sweep(ctx, scorer, clf, recordings, cfg, weights, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error during sweep: %v\n", err)
		os.Exit(1)
	}

	// Print sorted by weight for readability
	for _, w := range weights {
		for _, r := range results {
			if r.StructuralWeight == w {
				fmt.Printf("%-8.2f %-8.2f %-8.2f %-8.2f %-8.2f\n",
					w, r.Summary.Accuracy(1), r.Summary.Accuracy(3), r.Summary.Accuracy(10), r.Summary.MeanRank)
				break
			}
		}
	}

	fmt.Println(strings.Repeat("-", 50))
	if len(results) > 0 {
		best := results[0]
		fmt.Printf("Optimal: %.2f (TOP-1: %.2f)\n", best.StructuralWeight, best.Summary.Accuracy(1))
	}
}

func runMerge(paths []string) {
	var records []bench.Record
	for _, path := range paths {
		runID, recs, err := bench.LoadRecords(strings.TrimSpace(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Run %s: %d records from %s\n", runID, len(recs), path)
		records = append(records, recs...)
	}
	fmt.Println()
	printSummary(bench.Aggregate(records))
}

func printSummary(s bench.Summary) {
	fmt.Println(strings.Repeat("-", 40))
	for _, n := range bench.TopN {
		fmt.Printf("TOP-%-3d %6.2f%%  (%d/%d)\n", n, 100*s.Accuracy(n), s.Top[n], s.Evaluated)
	}
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Mean rank:       %.2f\n", s.MeanRank)
	fmt.Printf("Median rank:     %.2f\n", s.MedianRank)
	fmt.Printf("Not found:       %d\n", s.Evaluated-s.Found)
	fmt.Printf("Over-segmented:  %d\n", s.OverSegmented)
	fmt.Printf("Under-segmented: %d\n", s.UnderSegmented)
	fmt.Printf("Over and under:  %d\n", s.OverAndUnder)
	fmt.Printf("Out of order:    %d\n", s.OutOfOrder)
	fmt.Printf("Failed:          %d\n", s.Failed)
	fmt.Printf("Recordings:      %d\n", s.Recordings)
}
