package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"descbench/internal/domain"
	"descbench/internal/integrations/llm"
	"descbench/internal/storage/sqlite"
)

// Submitter partitions the working dataset into batches and submits each
// one as a single asynchronous job, persisting every batch before and
// after submission.
type Submitter struct {
	db          *sql.DB
	api         JobAPI
	limiter     *rate.Limiter
	concurrency int

	// Serializes batch-index allocation when a split happens during
	// concurrent submission.
	mu sync.Mutex
}

func NewSubmitter(db *sql.DB, api JobAPI, submitsPerMinute, concurrency int) *Submitter {
	if submitsPerMinute < 1 {
		submitsPerMinute = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Submitter{
		db:          db,
		api:         api,
		limiter:     rate.NewLimiter(rate.Limit(float64(submitsPerMinute)/60.0), 1),
		concurrency: concurrency,
	}
}

// SubmitRun partitions records on the run's first submission, persists
// the partition as PENDING batches, then submits every PENDING batch.
// Re-running after an interruption picks up only the PENDING remainder;
// SUBMITTED and terminal batches are never re-submitted.
func (s *Submitter) SubmitRun(ctx context.Context, run domain.Run, records []domain.Record, batchSize int, buildMsg func(domain.Record) string) (int, error) {
	byID := make(map[string]domain.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	next, err := sqlite.NextBatchIndex(s.db, run.ID)
	if err != nil {
		return 0, err
	}
	if next == 0 {
		for i, chunk := range Partition(records, batchSize) {
			ids := make([]string, len(chunk))
			for j, rec := range chunk {
				ids[j] = rec.ID
			}
			b := domain.Batch{RunID: run.ID, Index: i, Status: domain.BatchPending}
			if err := sqlite.InsertBatch(s.db, b, ids); err != nil {
				return 0, err
			}
		}
	}

	pending, err := sqlite.GetBatchesByStatus(s.db, run.ID, domain.BatchPending)
	if err != nil {
		return 0, err
	}
	log.Printf("submit run=%s condition=%s pending=%d concurrency=%d", run.ID, run.Condition, len(pending), s.concurrency)

	if s.concurrency > 1 {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, b := range pending {
			b := b
			g.Go(func() error {
				return s.submitPending(gCtx, b, byID, buildMsg)
			})
		}
		if err := g.Wait(); err != nil {
			return s.submittedCount(run.ID), err
		}
	} else {
		for _, b := range pending {
			if err := s.submitPending(ctx, b, byID, buildMsg); err != nil {
				return s.submittedCount(run.ID), err
			}
		}
	}
	return s.submittedCount(run.ID), nil
}

func (s *Submitter) submittedCount(runID string) int {
	batches, err := sqlite.GetBatchesByStatus(s.db, runID, domain.BatchSubmitted)
	if err != nil {
		return 0
	}
	return len(batches)
}

func (s *Submitter) submitPending(ctx context.Context, b domain.Batch, byID map[string]domain.Record, buildMsg func(domain.Record) string) error {
	ids, err := sqlite.GetBatchRecordIDs(s.db, b.RunID, b.Index)
	if err != nil {
		return err
	}

	reqs := make([]llm.Request, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			return fmt.Errorf("batch %d references record %q not present in the dataset", b.Index, id)
		}
		reqs = append(reqs, llm.Request{RecordID: id, UserMessage: buildMsg(rec)})
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	jobID, err := s.api.SubmitBatch(ctx, reqs)
	if err != nil {
		if isTooLarge(err) && len(ids) > 1 {
			return s.splitAndSubmit(ctx, b, ids, byID, buildMsg)
		}
		return &SubmissionError{BatchIndex: b.Index, Err: err}
	}
	log.Printf("batch submitted run=%s index=%d job=%s records=%d", b.RunID, b.Index, jobID, len(ids))
	return sqlite.MarkSubmitted(s.db, b.RunID, b.Index, jobID)
}

// splitAndSubmit replaces a rejected batch with two halves and submits
// them, splitting further as needed.
func (s *Submitter) splitAndSubmit(ctx context.Context, b domain.Batch, ids []string, byID map[string]domain.Record, buildMsg func(domain.Record) string) error {
	log.Printf("batch rejected as too large run=%s index=%d records=%d, splitting", b.RunID, b.Index, len(ids))

	s.mu.Lock()
	var halves []domain.Batch
	err := func() error {
		if err := sqlite.DeleteBatch(s.db, b.RunID, b.Index); err != nil {
			return err
		}
		mid := len(ids) / 2
		for _, part := range [][]string{ids[:mid], ids[mid:]} {
			idx, err := sqlite.NextBatchIndex(s.db, b.RunID)
			if err != nil {
				return err
			}
			nb := domain.Batch{RunID: b.RunID, Index: idx, Status: domain.BatchPending}
			if err := sqlite.InsertBatch(s.db, nb, part); err != nil {
				return err
			}
			halves = append(halves, nb)
		}
		return nil
	}()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, nb := range halves {
		if err := s.submitPending(ctx, nb, byID, buildMsg); err != nil {
			return err
		}
	}
	return nil
}

func isTooLarge(err error) bool {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) && apierr.StatusCode == 413 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "too large")
}
