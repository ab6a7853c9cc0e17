package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"descbench/internal/domain"
	"descbench/internal/results"
	"descbench/internal/storage/sqlite"
)

// Labels maps the model's binary verdict onto the configured label set
// and bounds the accepted confidence scale.
type Labels struct {
	Positive string
	Negative string
	ConfMin  int
	ConfMax  int
}

// Collector downloads per-record outputs for COMPLETED batches and
// appends them to the run's result file. Collection is idempotent per
// batch: already-collected batches are skipped via the persisted
// collected set, and record ids already in the file are never rewritten.
type Collector struct {
	db          *sql.DB
	api         JobAPI
	resultsPath string
	labels      Labels
}

func NewCollector(db *sql.DB, api JobAPI, resultsPath string, labels Labels) *Collector {
	return &Collector{db: db, api: api, resultsPath: resultsPath, labels: labels}
}

// CollectBatch fetches and appends results for one COMPLETED batch.
// Returns rows written and records skipped (per-record errors or
// duplicates). Re-collecting a collected batch is a no-op.
func (c *Collector) CollectBatch(ctx context.Context, b domain.Batch) (written, skipped int, err error) {
	if b.Status != domain.BatchCompleted {
		return 0, 0, fmt.Errorf("batch %d is %s, only COMPLETED batches collect", b.Index, b.Status)
	}
	done, err := sqlite.IsCollected(c.db, b.RunID, b.Index)
	if err != nil {
		return 0, 0, err
	}
	if done {
		log.Printf("collect skipped run=%s batch=%d: already collected", b.RunID, b.Index)
		return 0, 0, nil
	}

	ids, err := sqlite.GetBatchRecordIDs(c.db, b.RunID, b.Index)
	if err != nil {
		return 0, 0, err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	existing, err := results.Load(c.resultsPath)
	if err != nil {
		return 0, 0, err
	}

	outputs, err := c.api.JobResults(ctx, b.JobID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching results for batch %d: %w", b.Index, err)
	}

	var rows []domain.ClassificationResult
	for _, out := range outputs {
		if out.Err != "" {
			log.Printf("collect skipped record run=%s batch=%d record=%s: request %s", b.RunID, b.Index, out.RecordID, out.Err)
			skipped++
			continue
		}
		if !known[out.RecordID] {
			log.Printf("collect parse error: %v", &ParseError{RecordID: out.RecordID, Reason: "not part of this batch"})
			skipped++
			continue
		}
		res, perr := ParseVerdict(out.RecordID, out.Text, c.labels)
		if perr != nil {
			log.Printf("collect parse error: %v", perr)
			skipped++
			continue
		}
		if _, dup := existing[res.RecordID]; dup {
			skipped++
			continue
		}
		existing[res.RecordID] = res
		rows = append(rows, res)
	}

	if err := results.Append(c.resultsPath, rows); err != nil {
		return 0, skipped, err
	}
	if err := sqlite.MarkCollected(c.db, b.RunID, b.Index); err != nil {
		return len(rows), skipped, err
	}
	log.Printf("collected run=%s batch=%d written=%d skipped=%d", b.RunID, b.Index, len(rows), skipped)
	return len(rows), skipped, nil
}

// CollectCompleted collects every COMPLETED batch of the run that is not
// yet in the collected set.
func (c *Collector) CollectCompleted(ctx context.Context, runID string) (written, skipped int, err error) {
	completed, err := sqlite.GetBatchesByStatus(c.db, runID, domain.BatchCompleted)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range completed {
		w, s, err := c.CollectBatch(ctx, b)
		written += w
		skipped += s
		if err != nil {
			return written, skipped, err
		}
	}
	return written, skipped, nil
}

// verdict is the JSON object the system prompt instructs the model to
// answer with.
type verdict struct {
	CompanyID  string          `json:"company_id"`
	AINative   json.RawMessage `json:"ai_native"`
	Confidence json.RawMessage `json:"confidence"`
}

// ParseVerdict decodes one model response into a classification result.
// Markdown fences are tolerated, the ai_native flag may arrive as a
// number, bool, or string, and confidence must land on the configured
// scale.
func ParseVerdict(recordID, text string, labels Labels) (domain.ClassificationResult, *ParseError) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return domain.ClassificationResult{}, &ParseError{RecordID: recordID, Reason: fmt.Sprintf("undecodable verdict: %v", err)}
	}

	positive, ok := parseFlag(v.AINative)
	if !ok {
		return domain.ClassificationResult{}, &ParseError{RecordID: recordID, Reason: fmt.Sprintf("unrecognized ai_native value %s", string(v.AINative))}
	}
	conf, ok := parseInt(v.Confidence)
	if !ok || conf < labels.ConfMin || conf > labels.ConfMax {
		return domain.ClassificationResult{}, &ParseError{RecordID: recordID, Reason: fmt.Sprintf("confidence %s outside scale %d..%d", string(v.Confidence), labels.ConfMin, labels.ConfMax)}
	}

	label := labels.Negative
	if positive {
		label = labels.Positive
	}
	return domain.ClassificationResult{RecordID: recordID, Label: label, Confidence: conf}, nil
}

// Models answer the flag as 1/0, true/false, or a quoted variant.
func parseFlag(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == 0 || n == 1 {
			return n == 1, true
		}
		return false, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes":
			return true, true
		case "0", "false", "no":
			return false, true
		}
	}
	return false, false
}

func parseInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}
