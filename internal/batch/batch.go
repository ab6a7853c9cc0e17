// Package batch drives the asynchronous classification job lifecycle:
// partitioning records into jobs, submitting them, polling their state,
// and collecting per-record results. All state mutations are written
// through to SQLite so a run survives process restarts.
package batch

import (
	"context"

	"descbench/internal/domain"
	"descbench/internal/integrations/llm"
)

// JobAPI is the external asynchronous job API: submit a batch of
// requests, poll a job's status, fetch its per-record results.
type JobAPI interface {
	SubmitBatch(ctx context.Context, reqs []llm.Request) (string, error)
	JobStatus(ctx context.Context, jobID string) (llm.JobStatus, error)
	JobResults(ctx context.Context, jobID string) ([]llm.JobResult, error)
}

// Partition splits records into contiguous chunks of at most maxSize,
// preserving input order. len(chunks) == ceil(len(records)/maxSize).
func Partition(records []domain.Record, maxSize int) [][]domain.Record {
	if maxSize < 1 || len(records) == 0 {
		return nil
	}
	chunks := make([][]domain.Record, 0, (len(records)+maxSize-1)/maxSize)
	for start := 0; start < len(records); start += maxSize {
		end := start + maxSize
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
