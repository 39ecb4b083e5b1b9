package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/work"
)

// Reloader refreshes the return series store from its sources.
type Reloader interface {
	Reload(ctx context.Context) error
}

// BatchRunner runs a full batch of fits.
type BatchRunner interface {
	Run(ctx context.Context, tickers []string, windows []int) (*work.Report, error)
}

// BatchJob reloads the data and runs the configured batch. Overlapping
// invocations are skipped.
type BatchJob struct {
	store   Reloader
	runner  BatchRunner
	tickers []string
	windows []int
	timeout time.Duration
	mu      sync.Mutex
	log     zerolog.Logger
}

// NewBatchJob creates a new batch job. A zero timeout means no deadline.
func NewBatchJob(store Reloader, runner BatchRunner, tickers []string, windows []int, timeout time.Duration, log zerolog.Logger) *BatchJob {
	return &BatchJob{
		store:   store,
		runner:  runner,
		tickers: tickers,
		windows: windows,
		timeout: timeout,
		log:     log.With().Str("job", "factor_batch").Logger(),
	}
}

// Name returns the job name
func (j *BatchJob) Name() string {
	return "factor_batch"
}

// Run executes the batch
func (j *BatchJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Previous batch still running, skipping")
		return nil
	}
	defer j.mu.Unlock()

	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	if err := j.store.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload data: %w", err)
	}

	report, err := j.runner.Run(ctx, j.tickers, j.windows)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", report.RunID).
		Int("succeeded", report.Stats.Succeeded).
		Int("skipped", report.Stats.Skipped).
		Int("failed", report.Stats.Failed).
		Msg("Scheduled batch finished")
	return nil
}
