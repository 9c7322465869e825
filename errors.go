package hwseg

import (
	"errors"

	"github.com/jamesainslie/go-hwseg/ink"
)

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrMalformedRecording indicates a recording with an empty stroke, a
	// stroke whose timestamps go backwards, or ground truth that does not
	// cover its strokes.
	ErrMalformedRecording = ink.ErrMalformed

	// ErrScorerUnavailable marks a boundary whose merge probability could
	// not be computed. Segment substitutes the configured default for it.
	ErrScorerUnavailable = errors.New("hwseg: merge scorer unavailable")

	// ErrModelNotFound indicates a model or labels file does not exist.
	ErrModelNotFound = errors.New("hwseg: model file not found")

	// ErrInvalidModel indicates the model file exists but cannot be loaded.
	ErrInvalidModel = errors.New("hwseg: invalid model format")

	// ErrInvalidConfig indicates an option value outside its allowed range.
	ErrInvalidConfig = errors.New("hwseg: invalid configuration")
)
