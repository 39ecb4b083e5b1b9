package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/metadata"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(w io.Writer, cells ...string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func date(t time.Time) string {
	return t.UTC().Format(domain.DateLayout)
}

// title is "TICKER" or "TICKER (Long Name)" when the resolver knows it
func title(names *metadata.Resolver, instrument string) string {
	if names != nil {
		if name, ok := names.DisplayName(instrument); ok && name != "" {
			return fmt.Sprintf("%s (%s)", instrument, name)
		}
	}
	return instrument
}

func writeWholeSample(w io.Writer, names *metadata.Resolver, res domain.WholeSampleLoadings) error {
	fmt.Fprintf(w, "%s  %s..%s  n=%d  R²=%s  HAC lags=%d\n",
		title(names, res.Instrument), date(res.MinDate), date(res.MaxDate),
		res.Observations, num(res.Inference.RSquared), res.Inference.MaxLags)

	tw := newTable(w)
	row(tw, "variable", "coef", "std_err", "z", "p", "ci_low", "ci_high")
	inf := res.Inference
	for _, name := range res.Order {
		row(tw, name, num(res.Params[name]), num(inf.StdErrors[name]), num(inf.ZStats[name]),
			num(inf.PValues[name]), num(inf.CILower[name]), num(inf.CIUpper[name]))
	}
	return tw.Flush()
}

// writeRolling prints the last n windows, or all when n <= 0
func writeRolling(w io.Writer, names *metadata.Resolver, res domain.RollingResult, n int) error {
	loadings := res.Loadings
	if n > 0 && len(loadings) > n {
		loadings = loadings[len(loadings)-n:]
	}
	fmt.Fprintf(w, "%s  window=%d  windows=%d\n", title(names, res.Instrument), res.WindowSize, len(res.Loadings))

	tw := newTable(w)
	row(tw, append([]string{"date"}, res.Order...)...)
	for _, l := range loadings {
		cells := []string{date(l.Date)}
		for _, name := range res.Order {
			cells = append(cells, num(l.Params[name]))
		}
		row(tw, cells...)
	}
	return tw.Flush()
}
