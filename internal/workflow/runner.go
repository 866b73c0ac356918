package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/chocosync/internal/logging"
	"github.com/nhle/chocosync/internal/metrics"
	"github.com/nhle/chocosync/internal/model"
)

// Report is the result of one batch run.
type Report struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	DryRun    bool
	Summaries []Summary
}

// Err returns the first workflow-level error of the run, if any.
func (r Report) Err() error {
	for _, s := range r.Summaries {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Totals sums the per-workflow counters.
func (r Report) Totals() Summary {
	var t Summary
	for _, s := range r.Summaries {
		t.Conversations += s.Conversations
		t.Processed += s.Processed
		t.Applied += s.Applied
		t.Incomplete += s.Incomplete
		t.Failed += s.Failed
		t.NotFound += s.NotFound
		t.Skipped += s.Skipped
	}
	return t
}

// Runner runs the workflows of one batch in order.
type Runner struct {
	workflows []Workflow
	logger    *logging.Logger
	metrics   *metrics.Metrics
	dryRun    bool
	now       func() time.Time
}

// NewRunner runs workflows in the given order.
func NewRunner(d Deps, workflows ...Workflow) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{
		workflows: workflows,
		logger:    logger,
		metrics:   d.Metrics,
		dryRun:    d.DryRun,
		now:       time.Now,
	}
}

// NewBatch wires the confirmation, cancellation and notice workflows from
// configuration, in that order.
func NewBatch(cfg *model.AppConfig, d Deps) *Runner {
	return NewRunner(d,
		NewConfirmationImporter(d, cfg.Sender, cfg.Subjects.Confirmation),
		NewCancellationReconciler(d, cfg.Sender, cfg.Subjects.Cancellation, cfg.Extraction.CancelMargin()),
		NewNoticeAcknowledger(d, cfg.Sender, cfg.Subjects.Notice),
	)
}

// Run executes every workflow. A workflow that fails to search is recorded
// in its summary and does not stop the ones after it.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{
		RunID:   uuid.New().String(),
		Started: r.now(),
		DryRun:  r.dryRun,
	}
	ctx = logging.ContextWithRunID(ctx, report.RunID)
	log := r.logger.WithContext(ctx)

	log.Info("batch started", "dry_run", r.dryRun)

	for _, wf := range r.workflows {
		sum, err := wf.Run(ctx)
		sum.Workflow = wf.Name()
		if err != nil {
			sum.Err = err
			log.Error("workflow failed", "workflow", string(wf.Name()), "error", err)
		}
		report.Summaries = append(report.Summaries, sum)
	}

	report.Finished = r.now()
	r.metrics.ObserveRun(report.Finished, report.Finished.Sub(report.Started))

	totals := report.Totals()
	log.Info("batch finished",
		"processed", totals.Processed,
		"applied", totals.Applied,
		"incomplete", totals.Incomplete,
		"failed", totals.Failed,
		"took", report.Finished.Sub(report.Started),
	)
	return report
}
