// Package app wires the pipeline stages together behind the CLI:
// prepare the working dataset, submit a run, watch it to completion,
// collect results, and compare the two conditions.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"descbench/internal/batch"
	"descbench/internal/compare"
	"descbench/internal/config"
	"descbench/internal/dataset"
	"descbench/internal/domain"
	"descbench/internal/integrations/llm"
	"descbench/internal/notify"
	"descbench/internal/prompt"
	"descbench/internal/report"
	"descbench/internal/results"
	"descbench/internal/storage/sqlite"
)

type App struct {
	cfg      config.Config
	db       *sql.DB
	notifier *notify.Notifier
}

func New(cfg config.Config) (*App, error) {
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return &App{
		cfg:      cfg,
		db:       db,
		notifier: notify.New(cfg.SlackBotToken, cfg.SlackChannelID),
	}, nil
}

func (a *App) Close() error { return a.db.Close() }

func (a *App) jobAPI() (batch.JobAPI, error) {
	sys, err := prompt.LoadSystemPrompt(a.cfg.SystemPromptPath)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(a.cfg.AnthropicAPIKey, a.cfg.Model, sys, a.cfg.MaxTokens), nil
}

func (a *App) labels() batch.Labels {
	return batch.Labels{
		Positive: a.cfg.PositiveLabel,
		Negative: a.cfg.NegativeLabel,
		ConfMin:  a.cfg.ConfidenceMin,
		ConfMax:  a.cfg.ConfidenceMax,
	}
}

// ResolveRun finds the run to operate on: an explicit id wins, otherwise
// the latest run for the condition.
func (a *App) ResolveRun(runID string, cond string) (domain.Run, error) {
	if runID != "" {
		return sqlite.GetRun(a.db, runID)
	}
	c, ok := domain.ParseCondition(cond)
	if !ok {
		return domain.Run{}, fmt.Errorf("either --run or --condition (short|both) is required")
	}
	run, err := sqlite.LatestRunByCondition(a.db, c)
	if err == sql.ErrNoRows {
		return domain.Run{}, fmt.Errorf("no run found for condition %q", c)
	}
	return run, err
}

// Prepare filters the raw dataset to records carrying both descriptions
// and writes the working dataset both conditions will classify.
func (a *App) Prepare() error {
	if a.cfg.DatasetPath == "" {
		return fmt.Errorf("dataset_path is not configured")
	}
	records, stats, err := dataset.Load(a.cfg.DatasetPath)
	if err != nil {
		return err
	}
	if err := dataset.WriteFiltered(a.cfg.FilteredDatasetPath, records); err != nil {
		return err
	}
	log.Printf("prepare total=%d with_short=%d with_long=%d with_both=%d retained=%.1f%% out=%s",
		stats.Total, stats.WithShort, stats.WithLong, stats.WithBoth, stats.Retained()*100, a.cfg.FilteredDatasetPath)
	return nil
}

// Submit creates a run for the condition (or resumes the given run) and
// submits every batch that is not already submitted.
func (a *App) Submit(ctx context.Context, cond string, resumeRunID string) (domain.Run, error) {
	var run domain.Run
	if resumeRunID != "" {
		var err error
		run, err = sqlite.GetRun(a.db, resumeRunID)
		if err != nil {
			return domain.Run{}, fmt.Errorf("loading run %s: %w", resumeRunID, err)
		}
	} else {
		c, ok := domain.ParseCondition(cond)
		if !ok {
			return domain.Run{}, fmt.Errorf("invalid condition %q, want short or both", cond)
		}
		run = domain.Run{
			ID:        uuid.New().String(),
			Condition: c,
			Model:     a.cfg.Model,
			Dataset:   a.cfg.FilteredDatasetPath,
		}
		if err := sqlite.InsertRun(a.db, run); err != nil {
			return domain.Run{}, err
		}
		log.Printf("run created id=%s condition=%s model=%s", run.ID, run.Condition, run.Model)
	}

	records, _, err := dataset.Load(run.Dataset)
	if err != nil {
		return run, err
	}
	if len(records) == 0 {
		return run, fmt.Errorf("working dataset %s has no records; run prepare first", run.Dataset)
	}

	api, err := a.jobAPI()
	if err != nil {
		return run, err
	}
	submitter := batch.NewSubmitter(a.db, api, a.cfg.SubmitsPerMinute, a.cfg.SubmitConcurrency)
	buildMsg := func(rec domain.Record) string {
		return prompt.UserMessage(rec, run.Condition)
	}

	submitted, err := submitter.SubmitRun(ctx, run, records, a.cfg.BatchSize, buildMsg)
	if err != nil {
		return run, err
	}
	log.Printf("submit done run=%s batches_submitted=%d records=%d", run.ID, submitted, len(records))
	a.notifier.Post(fmt.Sprintf("Run %s (%s): %d batches submitted for %d records.", run.ID, run.Condition, submitted, len(records)))
	return run, nil
}

// Watch polls the run on the configured schedule until every batch is
// terminal, collecting each batch as it completes. Safe to interrupt and
// re-run: it resumes from persisted state.
func (a *App) Watch(ctx context.Context, run domain.Run) error {
	api, err := a.jobAPI()
	if err != nil {
		return err
	}
	tracker := batch.NewTracker(a.db, api, run.ID)
	collector := batch.NewCollector(a.db, api, results.Path(a.cfg.ResultsDir, run.Condition), a.labels())

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(a.cfg.PollSchedule)
	if err != nil {
		return fmt.Errorf("invalid poll_schedule '%s': %w", a.cfg.PollSchedule, err)
	}

	log.Printf("watch run=%s schedule=%q", run.ID, a.cfg.PollSchedule)
	for cycle := 1; ; cycle++ {
		terminal, err := tracker.Poll(ctx)
		if err != nil {
			return err
		}
		for _, b := range terminal {
			switch b.Status {
			case domain.BatchCompleted:
				written, skipped, err := collector.CollectBatch(ctx, b)
				if err != nil {
					return err
				}
				a.notifier.Post(fmt.Sprintf("Run %s: batch %d completed, %d results collected (%d skipped).", run.ID, b.Index, written, skipped))
			case domain.BatchFailed:
				a.notifier.Post(fmt.Sprintf("Run %s: batch %d FAILED (job %s) — resubmit manually.", run.ID, b.Index, b.JobID))
			}
		}

		done, err := tracker.IsComplete()
		if err != nil {
			return err
		}
		if done {
			break
		}

		now := time.Now()
		next := sched.Next(now)
		log.Printf("watch cycle=%d run=%s next poll at %s (in %s)", cycle, run.ID, next.Format("15:04:05"), next.Sub(now).Round(time.Second))
		select {
		case <-time.After(next.Sub(now)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Batches that completed before this watch started still need
	// collecting.
	written, skipped, err := collector.CollectCompleted(ctx, run.ID)
	if err != nil {
		return err
	}
	if written > 0 || skipped > 0 {
		log.Printf("watch final collect run=%s written=%d skipped=%d", run.ID, written, skipped)
	}

	summary, err := a.runSummary(run.ID)
	if err != nil {
		return err
	}
	log.Printf("watch done run=%s %s", run.ID, summary)
	a.notifier.Post(fmt.Sprintf("Run %s (%s) finished: %s", run.ID, run.Condition, summary))
	return nil
}

// Status performs one poll cycle and reports batch counts by state.
func (a *App) Status(ctx context.Context, run domain.Run) (string, error) {
	api, err := a.jobAPI()
	if err != nil {
		return "", err
	}
	if _, err := batch.NewTracker(a.db, api, run.ID).Poll(ctx); err != nil {
		return "", err
	}
	return a.runSummary(run.ID)
}

func (a *App) runSummary(runID string) (string, error) {
	batches, err := sqlite.GetBatches(a.db, runID)
	if err != nil {
		return "", err
	}
	counts := map[domain.BatchStatus]int{}
	for _, b := range batches {
		counts[b.Status]++
	}
	return fmt.Sprintf("%d batches: %d pending, %d submitted, %d in progress, %d completed, %d failed",
		len(batches),
		counts[domain.BatchPending], counts[domain.BatchSubmitted], counts[domain.BatchInProgress],
		counts[domain.BatchCompleted], counts[domain.BatchFailed]), nil
}

// Collect fetches results for any COMPLETED batch not yet collected.
func (a *App) Collect(ctx context.Context, run domain.Run) error {
	api, err := a.jobAPI()
	if err != nil {
		return err
	}
	collector := batch.NewCollector(a.db, api, results.Path(a.cfg.ResultsDir, run.Condition), a.labels())
	written, skipped, err := collector.CollectCompleted(ctx, run.ID)
	if err != nil {
		return err
	}
	log.Printf("collect run=%s written=%d skipped=%d", run.ID, written, skipped)
	a.notifier.Post(fmt.Sprintf("Run %s: collected %d results (%d skipped).", run.ID, written, skipped))
	return nil
}

// Resubmit replaces every FAILED batch with a fresh PENDING batch over
// the same records and submits the pending set.
func (a *App) Resubmit(ctx context.Context, run domain.Run) error {
	failed, err := sqlite.GetBatchesByStatus(a.db, run.ID, domain.BatchFailed)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		log.Printf("resubmit run=%s: no failed batches", run.ID)
		return nil
	}

	for _, b := range failed {
		ids, err := sqlite.GetBatchRecordIDs(a.db, run.ID, b.Index)
		if err != nil {
			return err
		}
		idx, err := sqlite.NextBatchIndex(a.db, run.ID)
		if err != nil {
			return err
		}
		nb := domain.Batch{RunID: run.ID, Index: idx, Status: domain.BatchPending}
		if err := sqlite.InsertBatch(a.db, nb, ids); err != nil {
			return err
		}
		if err := sqlite.DeleteBatch(a.db, run.ID, b.Index); err != nil {
			return err
		}
		log.Printf("resubmit run=%s failed batch %d replaced by pending batch %d (%d records)", run.ID, b.Index, idx, len(ids))
	}

	_, err = a.Submit(ctx, string(run.Condition), run.ID)
	return err
}

// Compare loads both result files, computes agreement statistics, and
// writes the markdown report plus the disagreement CSV export.
func (a *App) Compare(baselinePath, optimizedPath string) (string, error) {
	if baselinePath == "" {
		baselinePath = results.Path(a.cfg.ResultsDir, domain.ConditionBoth)
	}
	if optimizedPath == "" {
		optimizedPath = results.Path(a.cfg.ResultsDir, domain.ConditionShort)
	}

	baseline, err := results.Load(baselinePath)
	if err != nil {
		return "", err
	}
	optimized, err := results.Load(optimizedPath)
	if err != nil {
		return "", err
	}

	buckets := compare.Buckets{LowMax: a.cfg.ConfidenceLowMax, MediumMax: a.cfg.ConfidenceMediumMax}
	summary, err := compare.Compare(baseline, optimized, buckets, a.cfg.PositiveLabel)
	if err != nil {
		return "", fmt.Errorf("comparing %s and %s: %w", baselinePath, optimizedPath, err)
	}

	now := time.Now()
	content := report.Render(summary, report.Meta{BaselinePath: baselinePath, OptimizedPath: optimizedPath}, now)
	path, err := report.WriteReportFile(content, a.cfg.ReportOutputDir, now)
	if err != nil {
		return "", err
	}
	if len(summary.Disagreements) > 0 {
		if _, err := report.WriteDisagreementsFile(summary, a.cfg.ReportOutputDir, now); err != nil {
			return "", err
		}
	}
	log.Printf("compare agreement=%.2f%% compared=%d incomplete=%d delta=%+.2f%% report=%s",
		summary.AgreementRate()*100, summary.Compared, summary.Incomplete(), summary.RateDelta()*100, path)
	return path, nil
}
