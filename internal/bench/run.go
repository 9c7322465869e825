package bench

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	hwseg "github.com/jamesainslie/go-hwseg"
	"github.com/jamesainslie/go-hwseg/ink"
)

// Segmenter is the part of *hwseg.Segmenter a run needs.
type Segmenter interface {
	Segment(ctx context.Context, rec ink.Recording) (*hwseg.Result, error)
}

// Run segments and evaluates recordings with up to workers recordings in
// flight. Records are returned in input order. A recording that fails to
// segment yields a record with Error set; only cancellation stops the run.
func Run(ctx context.Context, seg Segmenter, recordings []ink.Recording, workers int, logger *slog.Logger) ([]Record, error) {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	records := make([]Record, len(recordings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range recordings {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := seg.Segment(gctx, rec)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warn("segmentation failed", "id", rec.ID, "error", err)
				r := Evaluate(nil, rec)
				r.Error = err.Error()
				records[i] = r
				return nil
			}
			records[i] = Evaluate(res, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
