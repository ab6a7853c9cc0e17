package domain

import "time"

// Condition is the experimental condition a run was classified under.
type Condition string

const (
	// ConditionBoth feeds the model both descriptions (baseline).
	ConditionBoth Condition = "both"
	// ConditionShort feeds the model the short description only.
	ConditionShort Condition = "short"
)

func ParseCondition(s string) (Condition, bool) {
	switch Condition(s) {
	case ConditionBoth:
		return ConditionBoth, true
	case ConditionShort:
		return ConditionShort, true
	}
	return "", false
}

// Record is one startup row from the working dataset. Immutable after load;
// the filtered dataset guarantees both descriptions are present.
type Record struct {
	ID               string
	Name             string
	ShortDescription string
	LongDescription  string
	Keywords         string
	YearFounded      string
}

type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchSubmitted  BatchStatus = "SUBMITTED"
	BatchInProgress BatchStatus = "IN_PROGRESS"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

// Terminal reports whether the status is one of the two end states.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Batch is one group of records submitted together as a single
// asynchronous classification job. Mutated only by the tracker in
// response to poll responses.
type Batch struct {
	RunID       string
	Index       int
	JobID       string
	Status      BatchStatus
	RecordCount int
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Run groups the batches of one classification pass over the dataset
// under one experimental condition.
type Run struct {
	ID        string
	Condition Condition
	Model     string
	Dataset   string
	CreatedAt time.Time
}

// ClassificationResult is one classified record. Immutable once recorded;
// unique per record id within a result set.
type ClassificationResult struct {
	RecordID   string
	Label      string
	Confidence int
}

// ComparisonRow joins the baseline and optimized results for one record
// the two conditions disagreed on.
type ComparisonRow struct {
	RecordID            string
	LabelBaseline       string
	LabelOptimized      string
	ConfidenceBaseline  int
	ConfidenceOptimized int
}
