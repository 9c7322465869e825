// Package bench evaluates segmentation quality over a corpus of recordings
// with ground truth.
package bench

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/go-hwseg/ink"
)

// LoadCorpus loads every .json and .inkpb recording in dir, in file name
// order. Recordings without an ID are named after their file.
func LoadCorpus(dir string) ([]ink.Recording, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var recordings []ink.Recording
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ink.BinaryExt:
		default:
			continue
		}

		rec, err := ink.LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", entry.Name(), err)
		}
		recordings = append(recordings, rec)
	}

	return recordings, nil
}
