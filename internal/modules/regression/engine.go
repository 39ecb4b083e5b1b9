package regression

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/returns"
)

// SnapshotSource hands out the current immutable data snapshot.
// Implemented by *returns.Store.
type SnapshotSource interface {
	Snapshot() (*returns.Snapshot, error)
}

// Pinned serves one fixed snapshot, so every fit made through it sees the same data.
func Pinned(snap *returns.Snapshot) SnapshotSource {
	return pinned{snap}
}

type pinned struct{ snap *returns.Snapshot }

func (p pinned) Snapshot() (*returns.Snapshot, error) {
	return p.snap, nil
}

// Options configures the engine.
type Options struct {
	// WindowWorkers fans the windows of one rolling fit across goroutines
	WindowWorkers int
	// RollingInference keeps HAC statistics on each rolling record
	RollingInference bool
}

// Engine runs the estimators against a return series store. Every call takes one
// snapshot up front, so a concurrent reload never mixes data within a fit.
type Engine struct {
	store SnapshotSource
	opts  Options
	log   zerolog.Logger
}

// NewEngine creates a new regression engine
func NewEngine(store SnapshotSource, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		opts:  opts,
		log:   log.With().Str("component", "regression_engine").Logger(),
	}
}

// Design prepares the aligned (Y, X) for an instrument from the current snapshot.
func (e *Engine) Design(instrument string) (*Design, error) {
	snap, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return designFrom(snap, instrument)
}

func designFrom(snap *returns.Snapshot, instrument string) (*Design, error) {
	series, err := snap.ReturnSeries(instrument)
	if err != nil {
		return nil, err
	}
	return Prepare(series, snap.FactorPanel())
}

// FitWholeSample regresses the instrument's excess returns on the factors over its
// full overlapping history.
func (e *Engine) FitWholeSample(instrument string) (domain.WholeSampleLoadings, error) {
	start := time.Now()

	d, err := e.Design(instrument)
	if err != nil {
		return domain.WholeSampleLoadings{}, err
	}

	res, err := FitWholeSample(d)
	if err != nil {
		return domain.WholeSampleLoadings{}, err
	}

	e.log.Debug().
		Str("instrument", instrument).
		Int("observations", res.Observations).
		Float64("r_squared", res.Inference.RSquared).
		Dur("duration", time.Since(start)).
		Msg("Whole-sample fit complete")

	return res, nil
}

// FitRolling fits one regression per window of the given length.
func (e *Engine) FitRolling(instrument string, window int) (domain.RollingResult, error) {
	// Checked before touching any data
	if err := ValidateWindow(instrument, window); err != nil {
		return domain.RollingResult{}, err
	}

	start := time.Now()

	d, err := e.Design(instrument)
	if err != nil {
		return domain.RollingResult{}, err
	}

	res, err := FitRolling(d, window, RollingOptions{
		Workers:   e.opts.WindowWorkers,
		Inference: e.opts.RollingInference,
	})
	if err != nil {
		return domain.RollingResult{}, err
	}

	e.log.Debug().
		Str("instrument", instrument).
		Int("window", window).
		Int("records", len(res.Loadings)).
		Dur("duration", time.Since(start)).
		Msg("Rolling fit complete")

	return res, nil
}

// FitRollingCorrelations computes rolling correlations of excess returns with each factor.
func (e *Engine) FitRollingCorrelations(instrument string, window int) (domain.RollingResult, error) {
	if window <= 1 {
		return domain.RollingResult{}, domain.NewError(domain.KindInvalidWindow, instrument,
			"correlation window must be at least 2, got %d", window)
	}

	d, err := e.Design(instrument)
	if err != nil {
		return domain.RollingResult{}, err
	}
	return FitRollingCorrelations(d, window)
}
