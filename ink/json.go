package ink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// jsonRecording is the write-math layout: strokes as point lists plus the
// segmentation as stroke index groups with a parallel list of symbol ids.
type jsonRecording struct {
	ID           string    `json:"id,omitempty"`
	Strokes      [][]Point `json:"strokes"`
	Segmentation [][]int   `json:"segmentation,omitempty"`
	Symbols      []string  `json:"symbols,omitempty"`
}

// DecodeJSON parses a recording. Both the object layout and a bare array of
// strokes are accepted.
func DecodeJSON(data []byte) (Recording, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Recording{}, fmt.Errorf("decoding recording: empty input")
	}

	var jr jsonRecording
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &jr.Strokes); err != nil {
			return Recording{}, fmt.Errorf("decoding strokes: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &jr); err != nil {
		return Recording{}, fmt.Errorf("decoding recording: %w", err)
	}

	if len(jr.Symbols) > 0 && len(jr.Symbols) != len(jr.Segmentation) {
		return Recording{}, fmt.Errorf("%w: %d symbols for %d groups", ErrMalformed, len(jr.Symbols), len(jr.Segmentation))
	}

	rec := Recording{ID: jr.ID, Strokes: make([]Stroke, len(jr.Strokes))}
	for i, pts := range jr.Strokes {
		rec.Strokes[i] = Stroke{Points: pts}
	}
	for i, group := range jr.Segmentation {
		sym := Symbol{Strokes: group}
		if len(jr.Symbols) > 0 {
			sym.Label = jr.Symbols[i]
		}
		rec.Truth = append(rec.Truth, sym)
	}
	return rec, nil
}

// EncodeJSON writes a recording in the object layout.
func EncodeJSON(w io.Writer, rec Recording) error {
	jr := jsonRecording{ID: rec.ID, Strokes: make([][]Point, len(rec.Strokes))}
	for i, s := range rec.Strokes {
		jr.Strokes[i] = s.Points
		if jr.Strokes[i] == nil {
			jr.Strokes[i] = []Point{}
		}
	}
	labelled := false
	for _, sym := range rec.Truth {
		jr.Segmentation = append(jr.Segmentation, sym.Strokes)
		jr.Symbols = append(jr.Symbols, sym.Label)
		if sym.Label != "" {
			labelled = true
		}
	}
	if !labelled {
		jr.Symbols = nil
	}

	enc := json.NewEncoder(w)
	return enc.Encode(jr)
}

// LoadFile reads a recording from disk. Files ending in BinaryExt use the
// binary codec, everything else is parsed as JSON. A recording without an
// ID is named after the file.
func LoadFile(path string) (Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("read file: %w", err)
	}

	var rec Recording
	if filepath.Ext(path) == BinaryExt {
		err = rec.UnmarshalBinary(data)
	} else {
		rec, err = DecodeJSON(data)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("%s: %w", path, err)
	}

	if rec.ID == "" {
		base := filepath.Base(path)
		rec.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return rec, nil
}
