// Package returns loads and holds the factor panel and the instrument return series.
package returns

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/factorlab/internal/domain"
)

// dateLayouts lists the accepted date spellings, most common first.
var dateLayouts = []string{
	domain.DateLayout,
	"20060102",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// ParseDate parses a date cell and normalizes it to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

type observation struct {
	date  time.Time
	value float64
}

// NewReturnSeries builds a series from unordered observations.
// NaN and infinite values are dropped, the rest are sorted ascending.
// Duplicate dates are rejected.
func NewReturnSeries(instrument string, dates []time.Time, values []float64) (domain.ReturnSeries, error) {
	if len(dates) != len(values) {
		return domain.ReturnSeries{}, domain.NewError(domain.KindInvalidInput, instrument,
			"dates and values differ in length (%d vs %d)", len(dates), len(values))
	}

	obs := make([]observation, 0, len(dates))
	for i, d := range dates {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		obs = append(obs, observation{date: d.UTC(), value: v})
	}

	sort.Slice(obs, func(i, j int) bool { return obs[i].date.Before(obs[j].date) })

	series := domain.ReturnSeries{
		Instrument: instrument,
		Dates:      make([]time.Time, len(obs)),
		Values:     make([]float64, len(obs)),
	}
	for i, o := range obs {
		if i > 0 && o.date.Equal(obs[i-1].date) {
			return domain.ReturnSeries{}, domain.NewError(domain.KindInvalidInput, instrument,
				"duplicate date %s", o.date.Format(domain.DateLayout))
		}
		series.Dates[i] = o.date
		series.Values[i] = o.value
	}

	return series, nil
}

type panelRow struct {
	date   time.Time
	values []float64
	rf     float64
}

// NewFactorPanel builds a panel from unordered rows. rows[i] holds one value per
// factor in the same order as factors. Rows with any non-finite value are dropped.
func NewFactorPanel(factors []string, dates []time.Time, rows [][]float64, rf []float64) (domain.FactorPanel, error) {
	if len(factors) == 0 {
		return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "", "factor panel has no factor columns")
	}
	if len(dates) != len(rows) || len(dates) != len(rf) {
		return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "",
			"factor panel columns differ in length")
	}

	seen := make(map[string]bool, len(factors))
	for _, f := range factors {
		if f == domain.RiskFreeName || f == domain.ConstName {
			return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "", "reserved factor name %q", f)
		}
		if seen[f] {
			return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "", "duplicate factor column %q", f)
		}
		seen[f] = true
	}

	kept := make([]panelRow, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(factors) {
			return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "",
				"row %d has %d values, expected %d", i, len(row), len(factors))
		}
		if !finite(rf[i]) || !allFinite(row) {
			continue
		}
		values := make([]float64, len(row))
		copy(values, row)
		kept = append(kept, panelRow{date: dates[i].UTC(), values: values, rf: rf[i]})
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].date.Before(kept[j].date) })

	panel := domain.FactorPanel{
		Dates:   make([]time.Time, len(kept)),
		Factors: append([]string(nil), factors...),
		Values:  make([][]float64, len(kept)),
		RF:      make([]float64, len(kept)),
	}
	for i, r := range kept {
		if i > 0 && r.date.Equal(kept[i-1].date) {
			return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "",
				"duplicate factor panel date %s", r.date.Format(domain.DateLayout))
		}
		panel.Dates[i] = r.date
		panel.Values[i] = r.values
		panel.RF[i] = r.rf
	}

	return panel, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}
