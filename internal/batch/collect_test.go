package batch

import (
	"context"
	"path/filepath"
	"testing"

	"descbench/internal/domain"
	"descbench/internal/integrations/llm"
	"descbench/internal/results"
	"descbench/internal/storage/sqlite"
)

var testLabels = Labels{Positive: "ai-native", Negative: "not-ai-native", ConfMin: 1, ConfMax: 5}

func verdictJSON(id string, flag string, conf string) string {
	return `{"company_id": "` + id + `", "ai_native": ` + flag + `, "confidence": ` + conf + `}`
}

func TestCollectBatchWritesResults(t *testing.T) {
	db := newTestDB(t)
	seedBatch(t, db, "run-1", 0, "job-0", domain.BatchCompleted, []string{"a", "b"})

	api := &fakeJobAPI{results: func(string) ([]llm.JobResult, error) {
		return []llm.JobResult{
			{RecordID: "a", Text: verdictJSON("a", "true", "4")},
			{RecordID: "b", Text: "```json\n" + verdictJSON("b", "0", "2") + "\n```"},
		}, nil
	}}

	path := filepath.Join(t.TempDir(), "classified_short.csv")
	c := NewCollector(db, api, path, testLabels)

	b := domain.Batch{RunID: "run-1", Index: 0, JobID: "job-0", Status: domain.BatchCompleted}
	written, skipped, err := c.CollectBatch(context.Background(), b)
	if err != nil {
		t.Fatalf("CollectBatch failed: %v", err)
	}
	if written != 2 || skipped != 0 {
		t.Errorf("written=%d skipped=%d, want 2/0", written, skipped)
	}

	rows, err := results.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rows["a"].Label != "ai-native" || rows["a"].Confidence != 4 {
		t.Errorf("record a = %+v", rows["a"])
	}
	if rows["b"].Label != "not-ai-native" || rows["b"].Confidence != 2 {
		t.Errorf("record b = %+v", rows["b"])
	}
}

func TestCollectBatchIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	seedBatch(t, db, "run-1", 0, "job-0", domain.BatchCompleted, []string{"a"})

	api := &fakeJobAPI{results: func(string) ([]llm.JobResult, error) {
		return []llm.JobResult{{RecordID: "a", Text: verdictJSON("a", "1", "5")}}, nil
	}}
	path := filepath.Join(t.TempDir(), "classified_short.csv")
	c := NewCollector(db, api, path, testLabels)
	b := domain.Batch{RunID: "run-1", Index: 0, JobID: "job-0", Status: domain.BatchCompleted}

	if _, _, err := c.CollectBatch(context.Background(), b); err != nil {
		t.Fatalf("first CollectBatch failed: %v", err)
	}
	written, _, err := c.CollectBatch(context.Background(), b)
	if err != nil {
		t.Fatalf("second CollectBatch failed: %v", err)
	}
	if written != 0 {
		t.Errorf("re-collection wrote %d rows, want 0", written)
	}

	rows, err := results.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("result file has %d records, want 1", len(rows))
	}
}

func TestCollectBatchSkipsBadOutputs(t *testing.T) {
	db := newTestDB(t)
	seedBatch(t, db, "run-1", 0, "job-0", domain.BatchCompleted, []string{"a", "b", "c", "d"})

	api := &fakeJobAPI{results: func(string) ([]llm.JobResult, error) {
		return []llm.JobResult{
			{RecordID: "a", Text: verdictJSON("a", "true", "3")},
			{RecordID: "b", Err: "errored"},
			{RecordID: "c", Text: "not json at all"},
			{RecordID: "zz", Text: verdictJSON("zz", "true", "3")}, // not in this batch
		}, nil
	}}
	path := filepath.Join(t.TempDir(), "classified_short.csv")
	c := NewCollector(db, api, path, testLabels)
	b := domain.Batch{RunID: "run-1", Index: 0, JobID: "job-0", Status: domain.BatchCompleted}

	written, skipped, err := c.CollectBatch(context.Background(), b)
	if err != nil {
		t.Fatalf("CollectBatch failed: %v", err)
	}
	if written != 1 || skipped != 3 {
		t.Errorf("written=%d skipped=%d, want 1/3", written, skipped)
	}

	// A skip never blocks the batch from being marked collected.
	done, err := sqlite.IsCollected(db, "run-1", 0)
	if err != nil {
		t.Fatalf("IsCollected failed: %v", err)
	}
	if !done {
		t.Errorf("batch with skipped records was not marked collected")
	}
}

func TestCollectBatchRejectsNonCompleted(t *testing.T) {
	db := newTestDB(t)
	c := NewCollector(db, &fakeJobAPI{}, filepath.Join(t.TempDir(), "r.csv"), testLabels)

	b := domain.Batch{RunID: "run-1", Index: 0, Status: domain.BatchInProgress}
	if _, _, err := c.CollectBatch(context.Background(), b); err == nil {
		t.Errorf("expected error collecting a non-COMPLETED batch")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantLbl  string
		wantConf int
		wantErr  bool
	}{
		{"plain json true", verdictJSON("x", "true", "5"), "ai-native", 5, false},
		{"numeric flag", verdictJSON("x", "1", "3"), "ai-native", 3, false},
		{"numeric zero", verdictJSON("x", "0", "2"), "not-ai-native", 2, false},
		{"string flag", verdictJSON("x", `"yes"`, "4"), "ai-native", 4, false},
		{"string numeric confidence", verdictJSON("x", "false", `"2"`), "not-ai-native", 2, false},
		{"fenced json", "```json\n" + verdictJSON("x", "true", "5") + "\n```", "ai-native", 5, false},
		{"bare fence", "```\n" + verdictJSON("x", "false", "1") + "\n```", "not-ai-native", 1, false},
		{"not json", "the company is ai native", "", 0, true},
		{"flag out of domain", verdictJSON("x", "2", "3"), "", 0, true},
		{"unrecognized string flag", verdictJSON("x", `"maybe"`, "3"), "", 0, true},
		{"confidence too high", verdictJSON("x", "true", "6"), "", 0, true},
		{"confidence too low", verdictJSON("x", "true", "0"), "", 0, true},
		{"missing fields", `{"company_id": "x"}`, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict("x", tt.text, testLabels)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected parse error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict failed: %v", err)
			}
			if got.Label != tt.wantLbl || got.Confidence != tt.wantConf {
				t.Errorf("got %s/%d, want %s/%d", got.Label, got.Confidence, tt.wantLbl, tt.wantConf)
			}
		})
	}
}
