package batch

import (
	"context"
	"database/sql"
	"log"

	"descbench/internal/domain"
	"descbench/internal/integrations/llm"
	"descbench/internal/storage/sqlite"
)

// Transition maps a remote job status onto the batch lifecycle. Pure so
// the state machine is testable without a live API; the tracker's Poll
// does the surrounding I/O.
func Transition(b domain.Batch, s llm.JobStatus) domain.Batch {
	switch s.State {
	case llm.JobInProgress, llm.JobCanceling:
		if b.Status == domain.BatchSubmitted {
			b.Status = domain.BatchInProgress
		}
	case llm.JobEnded:
		if s.Succeeded > 0 {
			b.Status = domain.BatchCompleted
		} else {
			b.Status = domain.BatchFailed
		}
	}
	return b
}

// Tracker owns the poll side of the batch lifecycle for one run.
type Tracker struct {
	db    *sql.DB
	api   JobAPI
	runID string
}

func NewTracker(db *sql.DB, api JobAPI, runID string) *Tracker {
	return &Tracker{db: db, api: api, runID: runID}
}

// Poll checks every submitted non-terminal batch against the API,
// persists status changes, and returns the batches that just reached a
// terminal state. Transient status-check failures are logged and left
// for the next cycle; a failed batch never blocks the others. Calling
// Poll after the run is complete is a no-op.
func (t *Tracker) Poll(ctx context.Context) ([]domain.Batch, error) {
	open, err := sqlite.GetNonTerminalBatches(t.db, t.runID)
	if err != nil {
		return nil, err
	}

	var terminal []domain.Batch
	for _, b := range open {
		if b.Status == domain.BatchPending || b.JobID == "" {
			// Not submitted yet; nothing to poll.
			continue
		}
		status, err := t.api.JobStatus(ctx, b.JobID)
		if err != nil {
			log.Printf("poll transient error run=%s batch=%d: %v", t.runID, b.Index, &PollTransientError{BatchIndex: b.Index, Err: err})
			continue
		}

		next := Transition(b, status)
		if next.Status == b.Status {
			continue
		}
		if err := sqlite.UpdateBatchStatus(t.db, t.runID, b.Index, next.Status); err != nil {
			return terminal, err
		}
		log.Printf("batch status run=%s batch=%d job=%s %s -> %s (succeeded=%d errored=%d)",
			t.runID, b.Index, b.JobID, b.Status, next.Status, status.Succeeded, status.Errored)
		if next.Status == domain.BatchFailed {
			log.Printf("batch failed, flagged for manual resubmission: %v", &BatchFailedError{RunID: t.runID, BatchIndex: b.Index, JobID: b.JobID})
		}
		if next.Status.Terminal() {
			terminal = append(terminal, next)
		}
	}
	return terminal, nil
}

// IsComplete reports whether every batch of the run is terminal.
func (t *Tracker) IsComplete() (bool, error) {
	open, err := sqlite.GetNonTerminalBatches(t.db, t.runID)
	if err != nil {
		return false, err
	}
	return len(open) == 0, nil
}
