package work

import (
	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/calculations"
)

// SnapshotFitter serves one-off fits against the live store. Each call takes the
// current snapshot once and fits through a fitter bound to it, so a cached result is
// always stored under the fingerprint of the data it was computed from.
type SnapshotFitter struct {
	store     SnapshotSource
	newFitter FitterFactory
}

// NewSnapshotFitter creates a fitter that pins a fresh snapshot per call
func NewSnapshotFitter(store SnapshotSource, newFitter FitterFactory) *SnapshotFitter {
	return &SnapshotFitter{store: store, newFitter: newFitter}
}

func (f *SnapshotFitter) current() (calculations.Fitter, error) {
	snap, err := f.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return f.newFitter(snap), nil
}

// FitWholeSample implements calculations.Fitter
func (f *SnapshotFitter) FitWholeSample(instrument string) (domain.WholeSampleLoadings, error) {
	fitter, err := f.current()
	if err != nil {
		return domain.WholeSampleLoadings{}, err
	}
	return fitter.FitWholeSample(instrument)
}

// FitRolling implements calculations.Fitter
func (f *SnapshotFitter) FitRolling(instrument string, window int) (domain.RollingResult, error) {
	fitter, err := f.current()
	if err != nil {
		return domain.RollingResult{}, err
	}
	return fitter.FitRolling(instrument, window)
}

// FitRollingCorrelations implements calculations.Fitter
func (f *SnapshotFitter) FitRollingCorrelations(instrument string, window int) (domain.RollingResult, error) {
	fitter, err := f.current()
	if err != nil {
		return domain.RollingResult{}, err
	}
	return fitter.FitRollingCorrelations(instrument, window)
}
