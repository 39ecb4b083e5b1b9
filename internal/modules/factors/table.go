// Package factors builds the factor panel from local Ken French and AQR data files.
package factors

import (
	"math"
	"sort"
	"time"
)

// Table is a date-indexed block of named columns, ascending by date.
type Table struct {
	Columns []string
	Dates   []time.Time
	Rows    [][]float64
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Dates)
}

// sortByDate orders rows ascending and keeps the first row of any repeated date.
func (t *Table) sortByDate() {
	idx := make([]int, len(t.Dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return t.Dates[idx[a]].Before(t.Dates[idx[b]]) })

	dates := make([]time.Time, 0, len(idx))
	rows := make([][]float64, 0, len(idx))
	for _, i := range idx {
		if n := len(dates); n > 0 && dates[n-1].Equal(t.Dates[i]) {
			continue
		}
		dates = append(dates, t.Dates[i])
		rows = append(rows, t.Rows[i])
	}
	t.Dates, t.Rows = dates, rows
}

// Scale multiplies every value by f.
func (t Table) Scale(f float64) Table {
	out := Table{Columns: t.Columns, Dates: t.Dates, Rows: make([][]float64, len(t.Rows))}
	for i, row := range t.Rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = v * f
		}
		out.Rows[i] = scaled
	}
	return out
}

// InnerJoin keeps the dates present in both tables; columns of a come first.
func InnerJoin(a, b Table) Table {
	out := Table{Columns: append(append([]string(nil), a.Columns...), b.Columns...)}

	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		switch {
		case a.Dates[i].Equal(b.Dates[j]):
			row := make([]float64, 0, len(out.Columns))
			row = append(row, a.Rows[i]...)
			row = append(row, b.Rows[j]...)
			out.Dates = append(out.Dates, a.Dates[i])
			out.Rows = append(out.Rows, row)
			i++
			j++
		case a.Dates[i].Before(b.Dates[j]):
			i++
		default:
			j++
		}
	}
	return out
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}
