package batch

import "fmt"

// SubmissionError: the API rejected a batch payload. Recoverable: the
// submitter splits the batch and retries the halves; only a single-record
// batch that still gets rejected surfaces this to the caller.
type SubmissionError struct {
	BatchIndex int
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting batch %d: %v", e.BatchIndex, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTransientError: a status check failed (network, timeout). The batch
// keeps its state and is retried on the next poll cycle.
type PollTransientError struct {
	BatchIndex int
	Err        error
}

func (e *PollTransientError) Error() string {
	return fmt.Sprintf("polling batch %d: %v", e.BatchIndex, e.Err)
}

func (e *PollTransientError) Unwrap() error { return e.Err }

// BatchFailedError: the API reported the job terminally failed. Recorded
// and surfaced; the batch is not retried automatically.
type BatchFailedError struct {
	RunID      string
	BatchIndex int
	JobID      string
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("batch %d (job %s) of run %s failed", e.BatchIndex, e.JobID, e.RunID)
}

// ParseError: one result payload could not be mapped to a known record
// or a recognized verdict. The record is logged and skipped; the batch
// still collects.
type ParseError struct {
	RecordID string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("result for record %q: %s", e.RecordID, e.Reason)
}
