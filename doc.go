// Package hwseg segments on-line handwritten mathematics into symbols.
//
// A recording is a sequence of pen strokes. Segmentation groups the strokes
// into symbols. For the n-1 gaps between consecutive strokes a merge scorer
// estimates the probability that both strokes belong to the same symbol;
// every way of cutting the strokes into contiguous groups then has a
// structural score, the product of p for every gap kept and 1-p for every
// gap cut. The best partitions are found without enumerating all 2^(n-1)
// of them and are re-ranked with a symbol classifier.
//
// # Quick Start
//
//	seg, err := hwseg.Open("merge.onnx", "symbols.onnx", "labels.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer seg.Close()
//
//	rec, err := ink.LoadFile("recording.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := seg.Segment(ctx, rec)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i, h := range res.Hypotheses {
//	    fmt.Printf("%d %v %.4f\n", i+1, res.InputGroups(i), h.Final())
//	}
//
// Without model files, New(nil, nil) segments with a geometric merge scorer
// and no symbol classifier.
//
// # Thread Safety
//
// Segmenter is safe for concurrent use. Boundary scoring and group
// classification run concurrently within one recording, bounded by
// WithConcurrency; ONNX sessions are pooled, sized by WithPoolSize.
//
// # Stroke Order
//
// Strokes are segmented in canonical order, sorted by start time. Result.Order
// maps canonical positions back to the input.
package hwseg
