package regression

import (
	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/pkg/formulas"
)

// FitRollingCorrelations computes, for every window, the Pearson correlation of the
// excess return with each factor. Windows and labels follow FitRolling; the intercept
// column is left out of the output.
func FitRollingCorrelations(d *Design, window int) (domain.RollingResult, error) {
	if window <= 1 {
		return domain.RollingResult{}, domain.NewError(domain.KindInvalidWindow, d.Instrument,
			"correlation window must be at least 2, got %d", window)
	}

	factors := d.Names[1:]
	result := domain.RollingResult{
		Instrument: d.Instrument,
		WindowSize: window,
		Order:      append([]string(nil), factors...),
		Loadings:   []domain.RollingLoadings{},
	}

	count := d.Rows() - window + 1
	if count <= 0 {
		return result, nil
	}

	columns := make([][]float64, len(factors))
	for j := range factors {
		col := make([]float64, d.Rows())
		for t := range col {
			col[t] = d.X.At(t, j+1)
		}
		columns[j] = formulas.RollingCorrelation(d.Y, col, window)
	}

	result.Loadings = make([]domain.RollingLoadings, count)
	for i := 0; i < count; i++ {
		params := make(map[string]float64, len(factors))
		for j, name := range factors {
			params[name] = columns[j][i]
		}
		result.Loadings[i] = domain.RollingLoadings{
			Date:   d.Dates[i+window-1],
			Params: params,
		}
	}
	return result, nil
}
