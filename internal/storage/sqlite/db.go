// Package sqlite persists run and batch state so an interrupted run can
// resume from its last durable state.
package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"descbench/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		condition  TEXT NOT NULL,
		model      TEXT NOT NULL,
		dataset    TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_condition ON runs(condition, created_at);

	CREATE TABLE IF NOT EXISTS batches (
		run_id       TEXT NOT NULL,
		batch_index  INTEGER NOT NULL,
		job_id       TEXT DEFAULT '',
		status       TEXT NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0,
		submitted_at DATETIME,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, batch_index)
	);
	CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(run_id, status);

	CREATE TABLE IF NOT EXISTS batch_records (
		run_id      TEXT NOT NULL,
		batch_index INTEGER NOT NULL,
		position    INTEGER NOT NULL,
		record_id   TEXT NOT NULL,
		PRIMARY KEY (run_id, batch_index, position)
	);

	CREATE TABLE IF NOT EXISTS collected_batches (
		run_id       TEXT NOT NULL,
		batch_index  INTEGER NOT NULL,
		collected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, batch_index)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// --- Runs ---

func InsertRun(db *sql.DB, run domain.Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (id, condition, model, dataset) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Condition), run.Model, run.Dataset,
	)
	return err
}

func GetRun(db *sql.DB, id string) (domain.Run, error) {
	var run domain.Run
	var cond string
	err := db.QueryRow(
		`SELECT id, condition, model, dataset, created_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &cond, &run.Model, &run.Dataset, &run.CreatedAt)
	run.Condition = domain.Condition(cond)
	return run, err
}

// LatestRunByCondition returns the most recently created run for the
// condition, so commands can omit --run for the common case.
func LatestRunByCondition(db *sql.DB, cond domain.Condition) (domain.Run, error) {
	var run domain.Run
	var c string
	// created_at has second resolution; rowid breaks ties in insertion
	// order so runs created within the same second resolve correctly.
	err := db.QueryRow(
		`SELECT id, condition, model, dataset, created_at FROM runs
		 WHERE condition = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		string(cond),
	).Scan(&run.ID, &c, &run.Model, &run.Dataset, &run.CreatedAt)
	run.Condition = domain.Condition(c)
	return run, err
}

// --- Batches ---

// InsertBatch records a freshly partitioned batch (status PENDING) along
// with its ordered record ids in one transaction.
func InsertBatch(db *sql.DB, b domain.Batch, recordIDs []string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO batches (run_id, batch_index, job_id, status, record_count)
		 VALUES (?, ?, ?, ?, ?)`,
		b.RunID, b.Index, b.JobID, string(b.Status), len(recordIDs),
	); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO batch_records (run_id, batch_index, position, record_id) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, id := range recordIDs {
		if _, err := stmt.Exec(b.RunID, b.Index, pos, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkSubmitted attaches the job handle and moves the batch to SUBMITTED.
func MarkSubmitted(db *sql.DB, runID string, index int, jobID string) error {
	_, err := db.Exec(
		`UPDATE batches SET job_id = ?, status = ?, submitted_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE run_id = ? AND batch_index = ?`,
		jobID, string(domain.BatchSubmitted), time.Now().UTC(), runID, index,
	)
	return err
}

func UpdateBatchStatus(db *sql.DB, runID string, index int, status domain.BatchStatus) error {
	_, err := db.Exec(
		`UPDATE batches SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE run_id = ? AND batch_index = ?`,
		string(status), runID, index,
	)
	return err
}

func scanBatches(rows *sql.Rows) ([]domain.Batch, error) {
	defer rows.Close()
	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var status string
		var submittedAt sql.NullTime
		if err := rows.Scan(&b.RunID, &b.Index, &b.JobID, &status, &b.RecordCount, &submittedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Status = domain.BatchStatus(status)
		if submittedAt.Valid {
			b.SubmittedAt = submittedAt.Time
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func GetBatches(db *sql.DB, runID string) ([]domain.Batch, error) {
	rows, err := db.Query(
		`SELECT run_id, batch_index, job_id, status, record_count, submitted_at, updated_at
		 FROM batches WHERE run_id = ? ORDER BY batch_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

func GetBatchesByStatus(db *sql.DB, runID string, status domain.BatchStatus) ([]domain.Batch, error) {
	rows, err := db.Query(
		`SELECT run_id, batch_index, job_id, status, record_count, submitted_at, updated_at
		 FROM batches WHERE run_id = ? AND status = ? ORDER BY batch_index`,
		runID, string(status),
	)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

// GetNonTerminalBatches returns every batch still awaiting a terminal
// poll verdict, in index order.
func GetNonTerminalBatches(db *sql.DB, runID string) ([]domain.Batch, error) {
	rows, err := db.Query(
		`SELECT run_id, batch_index, job_id, status, record_count, submitted_at, updated_at
		 FROM batches WHERE run_id = ? AND status NOT IN (?, ?) ORDER BY batch_index`,
		runID, string(domain.BatchCompleted), string(domain.BatchFailed),
	)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

func NextBatchIndex(db *sql.DB, runID string) (int, error) {
	var next int
	err := db.QueryRow(
		`SELECT COALESCE(MAX(batch_index), -1) + 1 FROM batches WHERE run_id = ?`, runID,
	).Scan(&next)
	return next, err
}

func GetBatchRecordIDs(db *sql.DB, runID string, index int) ([]string, error) {
	rows, err := db.Query(
		`SELECT record_id FROM batch_records
		 WHERE run_id = ? AND batch_index = ? ORDER BY position`,
		runID, index,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteBatch removes a batch and its record list. Used when a rejected
// batch is replaced by smaller splits and when a failed batch is
// replaced for resubmission.
func DeleteBatch(db *sql.DB, runID string, index int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM batches WHERE run_id = ? AND batch_index = ?`, runID, index); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM batch_records WHERE run_id = ? AND batch_index = ?`, runID, index); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Collected set ---

func MarkCollected(db *sql.DB, runID string, index int) error {
	_, err := db.Exec(
		`INSERT OR IGNORE INTO collected_batches (run_id, batch_index) VALUES (?, ?)`,
		runID, index,
	)
	return err
}

func IsCollected(db *sql.DB, runID string, index int) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM collected_batches WHERE run_id = ? AND batch_index = ?`,
		runID, index,
	).Scan(&count)
	return count > 0, err
}
