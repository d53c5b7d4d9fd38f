// Package batch runs the similarity pipeline over a file of comparison
// records, strictly one record at a time, and reports progress through the
// task tracker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/knakano/jsonsim/internal/ai"
	"github.com/knakano/jsonsim/internal/progress"
	"github.com/knakano/jsonsim/internal/similarity"
)

// RecordResult is the outcome for one input record. Exactly one of Result
// and Error is set.
type RecordResult struct {
	Index  int                `json:"index"`
	ID     string             `json:"id,omitempty"`
	Result *similarity.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Report is the outcome of one batch run.
type Report struct {
	TaskID  string
	File    string
	Method  ai.Method
	Results []RecordResult
}

// Runner drives the scorer over a batch sequentially. Remote rate limits
// are respected by never having more than one record in flight.
type Runner struct {
	scorer  *similarity.Scorer
	method  ai.Method
	tracker *progress.Tracker
	logger  *zap.Logger

	taskID atomic.Value
}

func NewRunner(scorer *similarity.Scorer, method ai.Method, tracker *progress.Tracker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scorer:  scorer,
		method:  method,
		tracker: tracker,
		logger:  logger,
	}
}

// Run scores every record in order. Recoverable per-record failures are
// recorded on the affected row and the run continues. Configuration-level
// failures abort the run and fail the task with one terminal error.
func (r *Runner) Run(ctx context.Context, file string, records []ComparisonRecord) (*Report, error) {
	taskID := r.tracker.Create(len(records))
	r.taskID.Store(taskID)
	report := &Report{
		TaskID:  taskID,
		File:    file,
		Method:  r.method,
		Results: make([]RecordResult, 0, len(records)),
	}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			_ = r.tracker.Complete(taskID, err.Error())
			return nil, err
		}

		result, err := r.scorer.Score(ctx, record.Left, record.Right)
		switch {
		case err == nil:
			report.Results = append(report.Results, RecordResult{
				Index:  record.Index,
				ID:     record.ID,
				Result: result,
			})
		case recoverable(err):
			r.logger.Warn("record skipped",
				zap.Int("index", record.Index),
				zap.String("id", record.ID),
				zap.Error(err),
			)
			report.Results = append(report.Results, RecordResult{
				Index: record.Index,
				ID:    record.ID,
				Error: err.Error(),
			})
		default:
			_ = r.tracker.Complete(taskID, err.Error())
			return nil, fmt.Errorf("record %d: %w", record.Index, err)
		}

		if err := r.tracker.Update(taskID, i+1); err != nil {
			return nil, err
		}
	}

	if err := r.tracker.Complete(taskID, ""); err != nil {
		return nil, err
	}
	return report, nil
}

// Progress returns a snapshot of the current run. Before the first run
// starts there is no task to report on.
func (r *Runner) Progress() (*progress.Snapshot, error) {
	id, _ := r.taskID.Load().(string)
	if id == "" {
		return nil, ai.ErrTaskNotFound
	}
	return r.tracker.Get(id)
}

// recoverable reports whether a per-record failure should be recorded and
// skipped rather than abort the batch. Backend outages are not recoverable,
// a half-scored batch with silently missing rows would not be comparable.
func recoverable(err error) bool {
	if errors.Is(err, ai.ErrParseFailed) {
		return true
	}
	var verr *ai.ValidationError
	return errors.As(err, &verr)
}
