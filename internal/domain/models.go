// Package domain provides core domain models and types.
package domain

import (
	"time"
)

// DateLayout is the canonical date format used in files and logs.
const DateLayout = "2006-01-02"

// ConstName is the factor key of the intercept column.
const ConstName = "const"

// RiskFreeName is the factor panel column holding the risk-free rate.
const RiskFreeName = "RF"

// ReturnSeries is a daily return series for one instrument.
// Dates are ascending and unique; a missing date means no observation.
type ReturnSeries struct {
	Instrument string
	Dates      []time.Time
	Values     []float64
}

// Len returns the number of observations.
func (s ReturnSeries) Len() int {
	return len(s.Dates)
}

// FactorPanel holds factor returns and the risk-free rate on a shared date index.
// Values[i][j] is the return of Factors[j] on Dates[i]. Factors never contains RF.
type FactorPanel struct {
	Dates   []time.Time
	Factors []string
	Values  [][]float64
	RF      []float64
}

// Len returns the number of dates in the panel.
func (p FactorPanel) Len() int {
	return len(p.Dates)
}

// Column returns a copy of one factor column, or nil if the factor is unknown.
func (p FactorPanel) Column(factor string) []float64 {
	idx := -1
	for j, f := range p.Factors {
		if f == factor {
			idx = j
			break
		}
	}
	if idx < 0 {
		return nil
	}

	col := make([]float64, len(p.Values))
	for i, row := range p.Values {
		col[i] = row[idx]
	}
	return col
}

// Inference holds HAC standard errors and derived statistics, keyed by factor name.
type Inference struct {
	StdErrors map[string]float64 `msgpack:"std_errors" json:"std_errors"`
	ZStats    map[string]float64 `msgpack:"z_stats" json:"z_stats"`
	PValues   map[string]float64 `msgpack:"p_values" json:"p_values"`
	CILower   map[string]float64 `msgpack:"ci_lower" json:"ci_lower"`
	CIUpper   map[string]float64 `msgpack:"ci_upper" json:"ci_upper"`
	RSquared  float64            `msgpack:"r_squared" json:"r_squared"`
	MaxLags   int                `msgpack:"max_lags" json:"max_lags"`
}

// WholeSampleLoadings is the result of one OLS fit over an instrument's full overlapping history.
// Order lists the factor names in design-matrix order; consumers key by name.
type WholeSampleLoadings struct {
	Instrument   string             `msgpack:"instrument" json:"instrument"`
	Params       map[string]float64 `msgpack:"params" json:"params"`
	Order        []string           `msgpack:"order" json:"order"`
	MinDate      time.Time          `msgpack:"min_date" json:"min_date"`
	MaxDate      time.Time          `msgpack:"max_date" json:"max_date"`
	Observations int                `msgpack:"observations" json:"observations"`
	Inference    Inference          `msgpack:"inference" json:"inference"`
}

// RollingLoadings are the coefficients of one window, keyed by the window's end date.
type RollingLoadings struct {
	Date      time.Time          `msgpack:"date" json:"date"`
	Params    map[string]float64 `msgpack:"params" json:"params"`
	Inference *Inference         `msgpack:"inference,omitempty" json:"inference,omitempty"`
}

// RollingResult is the ordered output of a rolling fit for one (instrument, window) pair.
type RollingResult struct {
	Instrument string            `msgpack:"instrument" json:"instrument"`
	WindowSize int               `msgpack:"window_size" json:"window_size"`
	Order      []string          `msgpack:"order" json:"order"`
	Loadings   []RollingLoadings `msgpack:"loadings" json:"loadings"`
}
