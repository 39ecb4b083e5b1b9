package work

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/artifacts"
	"github.com/aristath/factorlab/internal/modules/calculations"
	"github.com/aristath/factorlab/internal/modules/pca"
	"github.com/aristath/factorlab/internal/modules/returns"
)

// ReportFile is the run report written next to the artifacts.
const ReportFile = "run_report.json"

// SnapshotSource hands out the current data snapshot. Implemented by *returns.Store.
type SnapshotSource interface {
	Snapshot() (*returns.Snapshot, error)
}

// FitterFactory builds an estimator bound to one snapshot.
type FitterFactory func(snap *returns.Snapshot) calculations.Fitter

// Publisher uploads a finished run's output directory.
type Publisher interface {
	Publish(ctx context.Context, runID, dir string) error
}

// Config controls a batch run.
type Config struct {
	OutputDir     string
	Workers       int  // <= 0 uses the CPU count
	Correlations  bool // also compute rolling correlations for every window
	PCAComponents int  // 0 skips the rolling PCA
	PCAWindow     int
}

// Runner fans whole-sample and rolling fits out over a worker pool and writes
// the artifacts. Expected failures are recorded per task and never abort a run.
type Runner struct {
	store     SnapshotSource
	newFitter FitterFactory
	publisher Publisher
	cfg       Config
	log       zerolog.Logger
}

// NewRunner creates a new batch runner. publisher may be nil.
func NewRunner(store SnapshotSource, newFitter FitterFactory, publisher Publisher, cfg Config, log zerolog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	return &Runner{
		store:     store,
		newFitter: newFitter,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With().Str("component", "batch_runner").Logger(),
	}
}

// DefaultWorkers returns the number of logical CPUs.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Tasks expands tickers and windows into the task list, in output order.
func Tasks(tickers []string, windows []int, correlations bool) []Task {
	tasks := make([]Task, 0, len(tickers)*(1+2*len(windows)))
	for _, ticker := range tickers {
		tasks = append(tasks, Task{Kind: TaskWholeSample, Instrument: ticker})
	}
	for _, ticker := range tickers {
		for _, w := range windows {
			tasks = append(tasks, Task{Kind: TaskRolling, Instrument: ticker, Window: w})
		}
	}
	if correlations {
		for _, ticker := range tickers {
			for _, w := range windows {
				tasks = append(tasks, Task{Kind: TaskCorrelations, Instrument: ticker, Window: w})
			}
		}
	}
	return tasks
}

// NormalizeTickers upper-cases, trims and de-duplicates tickers, keeping first-seen order.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		for _, field := range strings.Fields(t) {
			field = strings.ToUpper(strings.Trim(field, ","))
			if field == "" || seen[field] {
				continue
			}
			seen[field] = true
			out = append(out, field)
		}
	}
	return out
}

type taskResult struct {
	whole   *domain.WholeSampleLoadings
	rolling *domain.RollingResult
}

// Run executes every task against a single snapshot. An empty tickers list means
// every instrument in the snapshot. The returned error is non-nil only for
// infrastructure failures or cancellation; the report is returned either way.
func (r *Runner) Run(ctx context.Context, tickers []string, windows []int) (*Report, error) {
	started := time.Now()

	snap, err := r.store.Snapshot()
	if err != nil {
		return nil, err
	}

	tickers = NormalizeTickers(tickers)
	if len(tickers) == 0 {
		tickers = snap.Instruments()
	}

	report := &Report{
		RunID:       uuid.New().String(),
		Fingerprint: snap.Fingerprint(),
		StartedAt:   started.UTC(),
		Tickers:     tickers,
		Windows:     append([]int(nil), windows...),
	}
	runLog := r.log.With().Str("run_id", report.RunID).Logger()

	tasks := Tasks(tickers, windows, r.cfg.Correlations)
	fitter := r.newFitter(snap)
	outcomes := make([]Outcome, len(tasks))
	results := make([]taskResult, len(tasks))
	progress := NewProgressReporter(runLog, len(tasks))

	runLog.Info().
		Int("tasks", len(tasks)).
		Int("workers", r.cfg.Workers).
		Strs("tickers", tickers).
		Ints("windows", windows).
		Msg("Starting batch run")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	dispatched := 0
	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		i, task := i, task
		dispatched++
		g.Go(func() error {
			start := time.Now()
			res, records, err := execute(fitter, task)
			outcomes[i] = outcomeFor(task, err, records, time.Since(start))
			results[i] = res
			if outcomes[i].Status == StatusFailed {
				runLog.Error().Err(err).Str("task", task.ID()).Msg("Task failed")
			} else if err != nil {
				runLog.Debug().Str("task", task.ID()).Str("kind", string(outcomes[i].ErrorKind)).Msg("Task skipped")
			}
			progress.Done()
			return nil
		})
	}
	_ = g.Wait()

	for i := dispatched; i < len(tasks); i++ {
		outcomes[i] = Outcome{Task: tasks[i], Status: StatusCancelled}
	}
	report.Outcomes = outcomes

	if err := ctx.Err(); err != nil {
		r.finish(report, started)
		runLog.Warn().Err(err).Int("dispatched", dispatched).Msg("Batch run cancelled")
		return report, err
	}

	if err := r.writeArtifacts(ctx, report, snap, tasks, results); err != nil {
		r.finish(report, started)
		return report, err
	}

	r.finish(report, started)
	if err := r.writeReport(report); err != nil {
		return report, err
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, report.RunID, r.cfg.OutputDir); err != nil {
			runLog.Error().Err(err).Msg("Failed to publish run artifacts")
			return report, err
		}
		report.Published = true
	}

	runLog.Info().
		Int("succeeded", report.Stats.Succeeded).
		Int("skipped", report.Stats.Skipped).
		Int("failed", report.Stats.Failed).
		Dur("duration", report.Stats.Duration).
		Msg("Batch run complete")

	return report, nil
}

func execute(fitter calculations.Fitter, task Task) (taskResult, int, error) {
	switch task.Kind {
	case TaskWholeSample:
		res, err := fitter.FitWholeSample(task.Instrument)
		if err != nil {
			return taskResult{}, 0, err
		}
		return taskResult{whole: &res}, len(res.Order), nil
	case TaskRolling:
		res, err := fitter.FitRolling(task.Instrument, task.Window)
		if err != nil {
			return taskResult{}, 0, err
		}
		return taskResult{rolling: &res}, len(res.Loadings), nil
	case TaskCorrelations:
		res, err := fitter.FitRollingCorrelations(task.Instrument, task.Window)
		if err != nil {
			return taskResult{}, 0, err
		}
		return taskResult{rolling: &res}, len(res.Loadings), nil
	}
	return taskResult{}, 0, domain.NewError(domain.KindInvalidInput, task.Instrument, "unknown task kind %q", task.Kind)
}

func (r *Runner) writeArtifacts(ctx context.Context, report *Report, snap *returns.Snapshot, tasks []Task, results []taskResult) error {
	var whole []domain.WholeSampleLoadings
	var rolling, corr []domain.RollingResult
	for i, task := range tasks {
		res := results[i]
		switch {
		case res.whole != nil:
			whole = append(whole, *res.whole)
		case res.rolling != nil && task.Kind == TaskRolling:
			rolling = append(rolling, *res.rolling)
		case res.rolling != nil && task.Kind == TaskCorrelations:
			corr = append(corr, *res.rolling)
		}
	}

	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(r.cfg.OutputDir, name)
		if err := artifacts.WriteFile(path, fn); err != nil {
			return err
		}
		report.Artifacts = append(report.Artifacts, name)
		return nil
	}

	if err := write(artifacts.WholeSampleFile, func(w io.Writer) error {
		return artifacts.WriteWholeSample(w, whole)
	}); err != nil {
		return err
	}
	if err := write(artifacts.RollingFile, func(w io.Writer) error {
		return artifacts.WriteRolling(w, rolling)
	}); err != nil {
		return err
	}
	if r.cfg.Correlations {
		if err := write(artifacts.CorrelationsFile, func(w io.Writer) error {
			return artifacts.WriteRolling(w, corr)
		}); err != nil {
			return err
		}
	}

	if r.cfg.PCAComponents > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := pca.Rolling(snap.FactorPanel(), r.cfg.PCAComponents, r.cfg.PCAWindow)
		switch {
		case domain.IsExpected(err):
			r.log.Warn().Err(err).Msg("Skipping rolling PCA")
		case err != nil:
			return err
		default:
			if err := write(artifacts.PCAFile, func(w io.Writer) error {
				return artifacts.WritePCA(w, res)
			}); err != nil {
				return err
			}
		}
	}

	sort.Strings(report.Artifacts)
	return nil
}

func (r *Runner) writeReport(report *Report) error {
	path := filepath.Join(r.cfg.OutputDir, ReportFile)
	return artifacts.WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}

func (r *Runner) finish(report *Report, started time.Time) {
	report.FinishedAt = time.Now().UTC()

	stats := Stats{
		Tasks:    len(report.Outcomes),
		Workers:  r.cfg.Workers,
		CPUs:     DefaultWorkers(),
		Duration: time.Since(started),
	}
	for _, o := range report.Outcomes {
		switch o.Status {
		case StatusOK:
			stats.Succeeded++
		case StatusSkipped:
			stats.Skipped++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsedPercent = vm.UsedPercent
	} else {
		r.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	report.Stats = stats
}
