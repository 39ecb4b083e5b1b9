package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingCorrelation returns the Pearson correlation of x and y over every full
// window of the given length. Element i covers x[i:i+window]; the result has
// len(x)-window+1 elements, or none when the series is shorter than the window.
//
// The result does not depend on the scale of either input. A window where either
// side has no variance yields 0.
func RollingCorrelation(x, y []float64, window int) []float64 {
	if window < 2 || len(x) != len(y) || len(x) < window {
		return []float64{}
	}

	out := make([]float64, len(x)-window+1)
	zx, okx := standardize(x)
	zy, oky := standardize(y)
	if !okx || !oky {
		return out
	}

	// talib aligns output with input; the first window-1 values are padding.
	// Its flat-window cutoff is absolute, so windows it zeroes are recomputed exactly.
	corr := talib.Correl(zx, zy, window)
	runX, runY := constantRuns(x), constantRuns(y)
	for i := range out {
		end := i + window - 1
		if runX[end] >= window || runY[end] >= window {
			continue
		}
		c := corr[end]
		if c == 0 || math.IsNaN(c) {
			c = Correlation(x[i:i+window], y[i:i+window])
		}
		out[i] = math.Max(-1, math.Min(1, c))
	}
	return out
}

// standardize rescales data to zero mean and unit variance.
// It reports false when data has no variance.
func standardize(data []float64) ([]float64, bool) {
	sd := StdDev(data)
	if sd == 0 || math.IsNaN(sd) {
		return nil, false
	}
	mean := Mean(data)
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = (v - mean) / sd
	}
	return out, true
}

// constantRuns returns, for every index, how many values ending there are equal.
func constantRuns(data []float64) []int {
	runs := make([]int, len(data))
	for i, v := range data {
		runs[i] = 1
		if i > 0 && v == data[i-1] {
			runs[i] = runs[i-1] + 1
		}
	}
	return runs
}
