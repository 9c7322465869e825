package bench

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// recordsHeader starts every records file.
type recordsHeader struct {
	RunID   string `msgpack:"run_id"`
	Records int    `msgpack:"records"`
}

// WriteRecords writes a run's records to w as a msgpack stream: a header
// followed by one value per record.
func WriteRecords(w io.Writer, runID string, records []Record) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(recordsHeader{RunID: runID, Records: len(records)}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

// ReadRecords reads a stream written by WriteRecords.
func ReadRecords(r io.Reader) (runID string, records []Record, err error) {
	dec := msgpack.NewDecoder(r)

	var h recordsHeader
	if err := dec.Decode(&h); err != nil {
		return "", nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Records < 0 {
		return "", nil, fmt.Errorf("decode header: negative record count %d", h.Records)
	}

	records = make([]Record, 0, min(h.Records, 1<<16))
	for i := 0; i < h.Records; i++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil, fmt.Errorf("decode record %d: %w", i, io.ErrUnexpectedEOF)
			}
			return "", nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return h.RunID, records, nil
}

// SaveRecords writes records to a file.
func SaveRecords(path, runID string, records []Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create records file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return WriteRecords(f, runID, records)
}

// LoadRecords reads records from a file.
func LoadRecords(path string) (string, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open records file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadRecords(f)
}
