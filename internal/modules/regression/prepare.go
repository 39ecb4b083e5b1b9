// Package regression fits factor models of excess instrument returns.
//
// The design matrix always carries an intercept named "const" in its first column,
// followed by the factor panel columns in panel order (RF excluded). Every output is
// keyed by factor name; column positions are an implementation detail.
package regression

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/factorlab/internal/domain"
)

// Design is the aligned regression input for one instrument.
type Design struct {
	Instrument string
	Dates      []time.Time
	Names      []string   // column names of X, "const" first
	X          *mat.Dense // len(Dates) x len(Names)
	Y          []float64  // instrument return minus RF
}

// Rows returns the number of aligned observations.
func (d *Design) Rows() int {
	return len(d.Dates)
}

// Cols returns the number of regressors including the intercept.
func (d *Design) Cols() int {
	return len(d.Names)
}

// Prepare inner-joins an instrument's returns with the factor panel and builds (Y, X).
// Both inputs must have strictly ascending dates, as NewReturnSeries and
// NewFactorPanel guarantee; the join is then a single merge pass.
func Prepare(series domain.ReturnSeries, panel domain.FactorPanel) (*Design, error) {
	if len(panel.Factors) == 0 {
		return nil, domain.NewError(domain.KindInvalidInput, series.Instrument, "factor panel has no factor columns")
	}
	if i := unordered(series.Dates); i > 0 {
		return nil, domain.NewError(domain.KindInvalidInput, series.Instrument,
			"return dates not strictly ascending at %s", series.Dates[i].Format(domain.DateLayout))
	}
	if i := unordered(panel.Dates); i > 0 {
		return nil, domain.NewError(domain.KindInvalidInput, series.Instrument,
			"factor panel dates not strictly ascending at %s", panel.Dates[i].Format(domain.DateLayout))
	}

	type match struct{ s, p int }
	matches := make([]match, 0, min(series.Len(), panel.Len()))

	i, j := 0, 0
	for i < series.Len() && j < panel.Len() {
		sd, pd := series.Dates[i], panel.Dates[j]
		switch {
		case sd.Equal(pd):
			matches = append(matches, match{i, j})
			i++
			j++
		case sd.Before(pd):
			i++
		default:
			j++
		}
	}

	if len(matches) == 0 {
		return nil, domain.NewError(domain.KindNoOverlap, series.Instrument,
			"no dates shared with the factor panel")
	}

	k := len(panel.Factors) + 1
	names := make([]string, 0, k)
	names = append(names, domain.ConstName)
	names = append(names, panel.Factors...)

	n := len(matches)
	data := make([]float64, 0, n*k)
	dates := make([]time.Time, n)
	y := make([]float64, n)
	for r, m := range matches {
		data = append(data, 1.0)
		data = append(data, panel.Values[m.p]...)
		dates[r] = panel.Dates[m.p]
		y[r] = series.Values[m.s] - panel.RF[m.p]
	}

	return &Design{
		Instrument: series.Instrument,
		Dates:      dates,
		Names:      names,
		X:          mat.NewDense(n, k, data),
		Y:          y,
	}, nil
}

// unordered returns the first index whose date does not follow its predecessor, or 0.
func unordered(dates []time.Time) int {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return i
		}
	}
	return 0
}
