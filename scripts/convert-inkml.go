//go:build ignore

// Convert CROHME-style InkML files into benchmark corpus recordings.
// Each <trace> becomes a stroke and the nested <traceGroup> annotations
// become the ground-truth segmentation. Traces without timestamps get
// synthetic ones that keep the recorded stroke order.
// Usage: go run ./scripts/convert-inkml.go -in testdata/inkml -out testdata/corpus
package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesainslie/go-hwseg/ink"
)

type inkDoc struct {
	Annotations []annotation `xml:"annotation"`
	Traces      []trace      `xml:"trace"`
	Groups      []traceGroup `xml:"traceGroup"`
}

type annotation struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type trace struct {
	ID   string `xml:"id,attr"`
	Data string `xml:",chardata"`
}

type traceGroup struct {
	Annotations []annotation `xml:"annotation"`
	Views       []traceView  `xml:"traceView"`
	Groups      []traceGroup `xml:"traceGroup"`
}

type traceView struct {
	Ref string `xml:"traceDataRef,attr"`
}

func main() {
	inDir := flag.String("in", "testdata/inkml", "Directory containing .inkml files")
	outDir := flag.String("out", "testdata/corpus", "Directory to write .json recordings to")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", *outDir, err)
		os.Exit(1)
	}

	paths, err := filepath.Glob(filepath.Join(*inDir, "*.inkml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing %s: %v\n", *inDir, err)
		os.Exit(1)
	}

	var converted, skipped int
	for _, path := range paths {
		rec, err := convert(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", path, err)
			skipped++
			continue
		}

		outFile := filepath.Join(*outDir, rec.ID+".json")
		if err := writeRecording(outFile, rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outFile, err)
			skipped++
			continue
		}
		converted++
	}

	fmt.Printf("Converted %d recordings into %s (%d skipped)\n", converted, *outDir, skipped)
}

func convert(path string) (ink.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ink.Recording{}, err
	}

	var doc inkDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ink.Recording{}, fmt.Errorf("parsing xml: %w", err)
	}

	base := filepath.Base(path)
	rec := ink.Recording{ID: strings.TrimSuffix(base, filepath.Ext(base))}

	index := make(map[string]int, len(doc.Traces))
	for i, t := range doc.Traces {
		stroke, err := parseTrace(t.Data, i)
		if err != nil {
			return ink.Recording{}, fmt.Errorf("trace %s: %w", t.ID, err)
		}
		index[t.ID] = i
		rec.Strokes = append(rec.Strokes, stroke)
	}

	for _, g := range doc.Groups {
		collectSymbols(g, index, &rec.Truth)
	}

	if err := rec.Validate(); err != nil {
		return ink.Recording{}, err
	}
	return rec, nil
}

// collectSymbols walks nested trace groups; every group that references
// traces directly is one symbol.
func collectSymbols(g traceGroup, index map[string]int, out *[]ink.Symbol) {
	if len(g.Views) > 0 {
		sym := ink.Symbol{}
		for _, a := range g.Annotations {
			if a.Type == "truth" {
				sym.Label = strings.TrimSpace(a.Value)
			}
		}
		for _, v := range g.Views {
			if i, ok := index[v.Ref]; ok {
				sym.Strokes = append(sym.Strokes, i)
			}
		}
		if len(sym.Strokes) > 0 {
			*out = append(*out, sym)
		}
	}
	for _, child := range g.Groups {
		collectSymbols(child, index, out)
	}
}

// parseTrace reads "x y[ t], x y[ t], ...". Missing times are synthesized
// from the stroke index so strokes keep their file order.
func parseTrace(data string, strokeIdx int) (ink.Stroke, error) {
	var s ink.Stroke
	for j, chunk := range strings.Split(data, ",") {
		fields := strings.Fields(chunk)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return ink.Stroke{}, fmt.Errorf("point %d: %q", j, chunk)
		}

		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return ink.Stroke{}, fmt.Errorf("point %d x: %w", j, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return ink.Stroke{}, fmt.Errorf("point %d y: %w", j, err)
		}

		t := int64(strokeIdx)*1000 + int64(j)
		if len(fields) >= 3 {
			if v, err := strconv.ParseFloat(fields[2], 64); err == nil {
				t = int64(v)
			}
		}
		s.Points = append(s.Points, ink.Point{X: x, Y: y, Time: t})
	}
	return s, nil
}

func writeRecording(path string, rec ink.Recording) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ink.EncodeJSON(f, rec); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
