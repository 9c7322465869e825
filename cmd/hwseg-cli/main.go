package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	hwseg "github.com/jamesainslie/go-hwseg"
	"github.com/jamesainslie/go-hwseg/classify"
	"github.com/jamesainslie/go-hwseg/ink"
)

func main() {
	// .env supplies model path defaults; a missing file is fine
	_ = godotenv.Load()

	pairModel := flag.String("pair", os.Getenv("HWSEG_PAIR_MODEL"), "Path to pairwise merge ONNX model (default: geometric scorer)")
	symbolModel := flag.String("symbol", os.Getenv("HWSEG_SYMBOL_MODEL"), "Path to symbol classifier ONNX model")
	labelsPath := flag.String("labels", os.Getenv("HWSEG_LABELS"), "Path to symbol labels file")
	priorPath := flag.String("prior", "", "Path to stroke count prior YAML")
	maxHyps := flag.Int("k", 500, "Maximum number of hypotheses")
	rule := flag.String("rule", "product", "Combination rule: product or weighted_log_sum")
	ws := flag.Float64("ws", 1.0, "Structural weight (weighted_log_sum)")
	wc := flag.Float64("wc", 1.0, "Classifier weight (weighted_log_sum)")
	missing := flag.String("missing", hwseg.MissingUnknown, "Failed boundaries: unknown or forbid_cut")
	top := flag.Int("top", 10, "Number of hypotheses to print")
	verbose := flag.Bool("v", false, "Log debug output")

	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: hwseg-cli [OPTIONS] RECORDING...")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []hwseg.Option{
		hwseg.WithMaxHypotheses(*maxHyps),
		hwseg.WithCombination(*rule, *ws, *wc),
		hwseg.WithMissingBoundary(*missing),
		hwseg.WithLogger(logger),
	}
	if *priorPath != "" {
		prior, err := classify.LoadStrokeCountPrior(*priorPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, hwseg.WithStrokeCountPrior(prior))
	}

	var seg *hwseg.Segmenter
	var err error
	if *pairModel != "" {
		seg, err = hwseg.Open(*pairModel, *symbolModel, *labelsPath, opts...)
	} else {
		if *symbolModel != "" {
			logger.Warn("symbol model needs a pair model; ranking by structure only")
		}
		seg, err = hwseg.New(nil, nil, opts...)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating segmenter: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = seg.Close() }() // Cleanup error ignored in CLI

	ctx := context.Background()

	status := 0
	for _, path := range flag.Args() {
		rec, err := ink.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = 1
			continue
		}
		res, err := seg.Segment(ctx, rec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = 1
			continue
		}
		printResult(res, *top)
	}
	os.Exit(status)
}

func printResult(res *hwseg.Result, top int) {
	fmt.Printf("Recording: %s\n", res.RecordingID)
	fmt.Printf("Strokes: %d  Hypotheses: %d", len(res.Order), len(res.Hypotheses))
	if res.ScorerFailures > 0 || res.ClassifierFailures > 0 {
		fmt.Printf("  (scorer failures: %d, classifier failures: %d)", res.ScorerFailures, res.ClassifierFailures)
	}
	fmt.Println()

	for i, h := range res.Hypotheses {
		if i == top {
			break
		}
		symbols := make([]string, len(h.Symbols))
		for j, p := range h.Symbols {
			symbols[j] = p.Symbol
			if symbols[j] == "" {
				symbols[j] = "?"
			}
		}
		fmt.Printf("  %3d: %v  structural=%.4g  final=%.4g", i+1, res.InputGroups(i), h.Structural(), h.Final())
		if len(symbols) > 0 {
			fmt.Printf("  %s", strings.Join(symbols, " "))
		}
		fmt.Println()
	}
}
