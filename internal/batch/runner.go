package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"codeberg.org/snonux/backtrans/internal/translation"
)

// DefaultWorkers is the number of items processed at once
const DefaultWorkers = 4

// BackTranslator is the part of the translation client the runner needs
type BackTranslator interface {
	BackTranslate(ctx context.Context, text, sourceLang, intermediateLang string) (*translation.BackTranslation, error)
}

// ItemObserver counts finished items
type ItemObserver interface {
	ObserveBatchItem(status string)
}

// Status of a processed item
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Result is the outcome of one item
type Result struct {
	Item     Item
	Status   string
	Result   *translation.BackTranslation
	Err      error
	Duration time.Duration
}

// Summary describes a finished run. Results keep the order of the items.
type Summary struct {
	ID          string
	Results     []Result
	Succeeded   int
	Failed      int
	Cancelled   int
	AverageBLEU float64
	Duration    time.Duration
}

// Runner backtranslates items with a bounded number of workers
type Runner struct {
	client   BackTranslator
	workers  int
	observer ItemObserver
	logger   *slog.Logger
	// OnResult, if set, is called after each item from the worker goroutine
	OnResult func(Result)
}

// NewRunner creates a runner. workers <= 0 selects DefaultWorkers; a nil
// observer or logger is allowed.
func NewRunner(client BackTranslator, workers int, observer ItemObserver, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, workers: workers, observer: observer, logger: logger}
}

// Run processes items until all are done or ctx is cancelled. Failed items
// do not stop the run; items not started before cancellation are marked
// cancelled. The returned error is ctx.Err() if the run was cut short.
func (r *Runner) Run(ctx context.Context, items []Item, sourceLang, intermediateLang string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{ID: uuid.NewString(), Results: make([]Result, len(items))}
	r.logger.Info("Starting batch", "id", summary.ID, "items", len(items), "workers", r.workers)

	var g errgroup.Group
	g.SetLimit(r.workers)

	for i, item := range items {
		if ctx.Err() != nil {
			summary.Results[i] = Result{Item: item, Status: StatusCancelled, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			summary.Results[i] = r.process(ctx, item, sourceLang, intermediateLang)
			return nil
		})
	}
	_ = g.Wait()

	var bleuSum float64
	for _, res := range summary.Results {
		switch res.Status {
		case StatusOK:
			summary.Succeeded++
			bleuSum += res.Result.Quality.BLEUScore
		case StatusCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}
	}
	if summary.Succeeded > 0 {
		summary.AverageBLEU = bleuSum / float64(summary.Succeeded)
	}
	summary.Duration = time.Since(start)

	r.logger.Info("Batch finished", "id", summary.ID, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "cancelled", summary.Cancelled, "duration", summary.Duration)
	return summary, ctx.Err()
}

func (r *Runner) process(ctx context.Context, item Item, sourceLang, intermediateLang string) Result {
	res := Result{Item: item}
	if err := ctx.Err(); err != nil {
		res.Status, res.Err = StatusCancelled, err
		r.report(res)
		return res
	}

	lang := intermediateLang
	if item.IntermediateLang != "" {
		lang = item.IntermediateLang
	}

	start := time.Now()
	bt, err := r.client.BackTranslate(ctx, item.Text, sourceLang, lang)
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Status, res.Result = StatusOK, bt
	case translation.KindOf(err) == translation.KindCancelled:
		res.Status, res.Err = StatusCancelled, err
	default:
		res.Status, res.Err = StatusFailed, err
		r.logger.Warn("Batch item failed", "line", item.Line, "error", err)
	}
	r.report(res)
	return res
}

func (r *Runner) report(res Result) {
	if r.observer != nil {
		r.observer.ObserveBatchItem(res.Status)
	}
	if r.OnResult != nil {
		r.OnResult(res)
	}
}
