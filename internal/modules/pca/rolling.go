// Package pca measures how concentrated factor variance is over rolling windows.
//
// The PCA runs on the factor columns only; RF is not a factor and is left out.
// Windows are labelled like the rolling regressions, by the date of their last row,
// so a panel of N dates yields N-w+1 windows. Output produced by tools that include
// RF or label each window with the following date is not directly comparable.
package pca

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/factorlab/internal/domain"
)

// OtherName labels the variance not captured by the retained components.
const OtherName = "other"

// Window is the explained-variance breakdown of one window, labelled by its last date.
// Ratios[i] belongs to Result.Components[i]; the final element is "other".
type Window struct {
	Date   time.Time `msgpack:"date" json:"date"`
	Ratios []float64 `msgpack:"ratios" json:"ratios"`
}

// Result is a rolling PCA over the factor panel.
type Result struct {
	WindowSize int      `msgpack:"window_size" json:"window_size"`
	Components []string `msgpack:"components" json:"components"` // PCA1..PCAn, other
	Windows    []Window `msgpack:"windows" json:"windows"`
}

// ComponentNames returns PCA1..PCAn followed by "other".
func ComponentNames(n int) []string {
	names := make([]string, 0, n+1)
	for i := 1; i <= n; i++ {
		names = append(names, fmt.Sprintf("PCA%d", i))
	}
	return append(names, OtherName)
}

// Analyzer runs rolling principal component analysis.
type Analyzer struct {
	log zerolog.Logger
}

// NewAnalyzer creates a new rolling PCA analyzer
func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "rolling_pca").Logger()}
}

// Rolling fits a PCA on every window of the factor columns (RF excluded) and
// records the share of variance explained by each of the first n components.
func (a *Analyzer) Rolling(panel domain.FactorPanel, n, window int) (Result, error) {
	res, err := Rolling(panel, n, window)
	if err != nil {
		return Result{}, err
	}
	a.log.Debug().Int("components", n).Int("window", window).Int("windows", len(res.Windows)).Msg("Rolling PCA complete")
	return res, nil
}

// Rolling is the stateless form of Analyzer.Rolling.
func Rolling(panel domain.FactorPanel, n, window int) (Result, error) {
	p := len(panel.Factors)
	if n <= 0 || n > p {
		return Result{}, domain.NewError(domain.KindInvalidInput, "", "components must be in [1, %d], got %d", p, n)
	}
	if window < 2 {
		return Result{}, domain.NewError(domain.KindInvalidWindow, "", "PCA window must be at least 2, got %d", window)
	}

	res := Result{
		WindowSize: window,
		Components: ComponentNames(n),
		Windows:    []Window{},
	}

	count := panel.Len() - window + 1
	if count <= 0 {
		return res, nil
	}

	data := make([]float64, 0, panel.Len()*p)
	for _, row := range panel.Values {
		data = append(data, row...)
	}
	all := mat.NewDense(panel.Len(), p, data)

	res.Windows = make([]Window, count)
	var pc stat.PC
	for i := 0; i < count; i++ {
		block := all.Slice(i, i+window, 0, p)
		if ok := pc.PrincipalComponents(block, nil); !ok {
			return Result{}, fmt.Errorf("PCA failed for window ending %s", panel.Dates[i+window-1].Format(domain.DateLayout))
		}
		res.Windows[i] = Window{
			Date:   panel.Dates[i+window-1],
			Ratios: explainedRatios(pc.VarsTo(nil), n),
		}
	}
	return res, nil
}

// explainedRatios returns the first n variance shares plus the remainder.
func explainedRatios(vars []float64, n int) []float64 {
	var total float64
	for _, v := range vars {
		total += v
	}

	out := make([]float64, n+1)
	if total <= 0 {
		out[n] = 1
		return out
	}

	var kept float64
	for i := 0; i < n && i < len(vars); i++ {
		out[i] = vars[i] / total
		kept += out[i]
	}
	out[n] = 1 - kept
	return out
}
