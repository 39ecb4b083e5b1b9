package regression

import (
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/factorlab/internal/domain"
)

// RollingOptions tunes a rolling fit. Results never depend on Workers.
type RollingOptions struct {
	// Workers splits the windows into contiguous chunks fitted concurrently; <= 1 is sequential
	Workers int
	// Inference attaches HAC statistics to every window
	Inference bool
}

// ValidateWindow rejects non-positive window sizes. It needs no data.
func ValidateWindow(instrument string, window int) error {
	if window <= 0 {
		return domain.NewError(domain.KindInvalidWindow, instrument, "window size must be positive, got %d", window)
	}
	return nil
}

// FitRolling regresses every contiguous block of window aligned observations.
// Window i covers rows [i, i+window) and is labelled with the date of its last row.
// A window longer than the sample yields an empty result.
func FitRolling(d *Design, window int, opts RollingOptions) (domain.RollingResult, error) {
	if err := ValidateWindow(d.Instrument, window); err != nil {
		return domain.RollingResult{}, err
	}
	if window < d.Cols()+1 {
		return domain.RollingResult{}, domain.NewError(domain.KindInvalidWindow, d.Instrument,
			"window size %d is below the %d observations needed for %d regressors", window, d.Cols()+1, d.Cols())
	}

	result := domain.RollingResult{
		Instrument: d.Instrument,
		WindowSize: window,
		Order:      append([]string(nil), d.Names...),
		Loadings:   []domain.RollingLoadings{},
	}

	count := d.Rows() - window + 1
	if count <= 0 {
		return result, nil
	}

	result.Loadings = make([]domain.RollingLoadings, count)
	fitRange := func(from, to int) error {
		for i := from; i < to; i++ {
			loadings, err := fitWindow(d, i, window, opts.Inference)
			if err != nil {
				return err
			}
			result.Loadings[i] = loadings
		}
		return nil
	}

	workers := opts.Workers
	if workers <= 1 || count < 2*workers {
		if err := fitRange(0, count); err != nil {
			return domain.RollingResult{}, err
		}
		return result, nil
	}

	// Each chunk stops at its own first failure; the earliest failing chunk wins,
	// so the reported window matches a sequential run.
	chunk := (count + workers - 1) / workers
	errs := make([]error, workers)
	var g errgroup.Group
	g.SetLimit(workers)
	for c := 0; c < workers; c++ {
		from, to := c*chunk, min((c+1)*chunk, count)
		if from >= to {
			break
		}
		c := c
		g.Go(func() error {
			errs[c] = fitRange(from, to)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return domain.RollingResult{}, err
		}
	}
	return result, nil
}

func fitWindow(d *Design, start, window int, withInference bool) (domain.RollingLoadings, error) {
	end := start + window
	x := d.X.Slice(start, end, 0, d.Cols()).(*mat.Dense)
	date := d.Dates[end-1]

	fit, err := fitOLS(x, d.Y[start:end], HACMaxLags)
	if err != nil {
		return domain.RollingLoadings{}, wrapFitError(d.Instrument, date.Format(domain.DateLayout), err)
	}

	loadings := domain.RollingLoadings{
		Date:   date,
		Params: keyed(d.Names, fit.params),
	}
	if withInference {
		inf := inference(d.Names, fit)
		loadings.Inference = &inf
	}
	return loadings, nil
}
