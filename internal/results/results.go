// Package results reads and writes the per-condition result files: one
// append-only CSV of record_id,label,confidence per experimental
// condition.
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"descbench/internal/domain"
)

var header = []string{"record_id", "label", "confidence"}

// Path returns the result file for a condition inside dir.
func Path(dir string, cond domain.Condition) string {
	return filepath.Join(dir, fmt.Sprintf("classified_%s.csv", cond))
}

// Append adds rows to the result file, creating it (with a header) on
// first write. Callers are responsible for not appending a record id
// twice; Load tolerates duplicates by keeping the first occurrence.
func Append(path string, rows []domain.ClassificationResult) error {
	if len(rows) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening result file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := w.Write([]string{r.RecordID, r.Label, strconv.Itoa(r.Confidence)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Load reads a result file into a map keyed by record id. A missing file
// yields an empty map; the first row wins on duplicate ids.
func Load(path string) (map[string]domain.ClassificationResult, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]domain.ClassificationResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	out := make(map[string]domain.ClassificationResult)
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading result file %s: %w", path, err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == header[0] {
				continue
			}
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("result file %s: row has %d fields, want 3", path, len(row))
		}
		id := row[0]
		if _, ok := out[id]; ok {
			continue
		}
		conf, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("result file %s: bad confidence %q for record %s", path, row[2], id)
		}
		out[id] = domain.ClassificationResult{RecordID: id, Label: row[1], Confidence: conf}
	}
	return out, nil
}
