package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"descbench/internal/domain"
	"descbench/internal/integrations/llm"
	"descbench/internal/storage/sqlite"
)

// High rate so the limiter never slows tests down.
const testSubmitsPerMinute = 60000

func buildTestMsg(rec domain.Record) string { return "INPUT: " + rec.ID }

func TestSubmitRunSubmitsAllBatches(t *testing.T) {
	db := newTestDB(t)
	api := &fakeJobAPI{}
	s := NewSubmitter(db, api, testSubmitsPerMinute, 1)
	run := domain.Run{ID: "run-1", Condition: domain.ConditionShort}

	submitted, err := s.SubmitRun(context.Background(), run, makeRecords(25), 10, buildTestMsg)
	if err != nil {
		t.Fatalf("SubmitRun failed: %v", err)
	}
	if submitted != 3 {
		t.Errorf("submitted = %d, want 3", submitted)
	}

	batches, err := sqlite.GetBatches(db, "run-1")
	if err != nil {
		t.Fatalf("GetBatches failed: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	total := 0
	for _, b := range batches {
		if b.Status != domain.BatchSubmitted {
			t.Errorf("batch %d status = %s, want SUBMITTED", b.Index, b.Status)
		}
		if b.JobID == "" {
			t.Errorf("batch %d has no job id", b.Index)
		}
		total += b.RecordCount
	}
	if total != 25 {
		t.Errorf("record counts sum to %d, want 25", total)
	}
}

func TestSubmitRunResumesPendingOnly(t *testing.T) {
	db := newTestDB(t)
	run := domain.Run{ID: "run-1", Condition: domain.ConditionBoth}
	records := makeRecords(30)

	// First attempt dies on the second batch.
	calls := 0
	failing := &fakeJobAPI{submit: func(reqs []llm.Request) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("upstream unavailable")
		}
		return fmt.Sprintf("job-%d", calls), nil
	}}
	_, err := NewSubmitter(db, failing, testSubmitsPerMinute, 1).SubmitRun(context.Background(), run, records, 10, buildTestMsg)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}

	pending, err := sqlite.GetBatchesByStatus(db, "run-1", domain.BatchPending)
	if err != nil {
		t.Fatalf("GetBatchesByStatus failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending batches after interruption, want 2", len(pending))
	}

	// Second attempt submits only the pending remainder.
	api := &fakeJobAPI{}
	submitted, err := NewSubmitter(db, api, testSubmitsPerMinute, 1).SubmitRun(context.Background(), run, records, 10, buildTestMsg)
	if err != nil {
		t.Fatalf("resumed SubmitRun failed: %v", err)
	}
	if submitted != 3 {
		t.Errorf("submitted = %d, want all 3 batches SUBMITTED", submitted)
	}
	if len(api.submitCalls) != 2 {
		t.Errorf("resume made %d submit calls, want 2 (already-submitted batch must not resubmit)", len(api.submitCalls))
	}

	batches, err := sqlite.GetBatches(db, "run-1")
	if err != nil {
		t.Fatalf("GetBatches failed: %v", err)
	}
	if batches[0].JobID != "job-1" {
		t.Errorf("batch 0 job id changed on resume: %s", batches[0].JobID)
	}
}

func TestSubmitRunSplitsOversizedBatch(t *testing.T) {
	db := newTestDB(t)
	run := domain.Run{ID: "run-1", Condition: domain.ConditionShort}
	records := makeRecords(5)

	jobs := 0
	api := &fakeJobAPI{submit: func(reqs []llm.Request) (string, error) {
		if len(reqs) > 2 {
			return "", errors.New("batch request too large")
		}
		jobs++
		return fmt.Sprintf("job-%d", jobs), nil
	}}

	submitted, err := NewSubmitter(db, api, testSubmitsPerMinute, 1).SubmitRun(context.Background(), run, records, 5, buildTestMsg)
	if err != nil {
		t.Fatalf("SubmitRun failed: %v", err)
	}
	if submitted != 3 {
		t.Errorf("submitted = %d, want 3 batches after splitting", submitted)
	}

	batches, err := sqlite.GetBatches(db, "run-1")
	if err != nil {
		t.Fatalf("GetBatches failed: %v", err)
	}
	seen := map[string]bool{}
	for _, b := range batches {
		if b.Status != domain.BatchSubmitted {
			t.Errorf("batch %d status = %s, want SUBMITTED", b.Index, b.Status)
		}
		if b.RecordCount > 2 {
			t.Errorf("batch %d still carries %d records after splitting", b.Index, b.RecordCount)
		}
		ids, err := sqlite.GetBatchRecordIDs(db, b.RunID, b.Index)
		if err != nil {
			t.Fatalf("GetBatchRecordIDs failed: %v", err)
		}
		for _, id := range ids {
			if seen[id] {
				t.Errorf("record %s assigned to two batches", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("splitting lost records: %d of 5 assigned", len(seen))
	}
}

func TestSubmitRunSingleRecordRejection(t *testing.T) {
	db := newTestDB(t)
	run := domain.Run{ID: "run-1", Condition: domain.ConditionShort}

	api := &fakeJobAPI{submit: func([]llm.Request) (string, error) {
		return "", errors.New("request too large")
	}}

	_, err := NewSubmitter(db, api, testSubmitsPerMinute, 1).SubmitRun(context.Background(), run, makeRecords(1), 1, buildTestMsg)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("single-record rejection must surface a SubmissionError, got %v", err)
	}
}
