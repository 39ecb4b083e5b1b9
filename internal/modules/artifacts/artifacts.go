// Package artifacts writes and reads the CSV outputs of the estimators.
//
// Every file starts with an unnamed positional column that restarts at 0 for each
// (instrument) or (instrument, window) block, matching the files existing
// dashboards already consume.
package artifacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/pca"
)

// Default file names inside an output directory.
const (
	WholeSampleFile  = "whole_sample_regressions_output.csv"
	RollingFile      = "rolling_regressions_output.csv"
	CorrelationsFile = "rolling_correlations_output.csv"
	PCAFile          = "rolling_pca_var_explained.csv"
)

var (
	wholeSampleHeader = []string{"", "index", "params", "ticker", "min_year", "max_year"}
	rollingHeader     = []string{"", "index", "variable", "value", "ticker", "window_size"}
	pcaHeader         = []string{"", "Dates", "variable", "value"}
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(domain.DateLayout)
}

// WriteWholeSample writes one row per coefficient per instrument, in design order.
func WriteWholeSample(w io.Writer, results []domain.WholeSampleLoadings) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(wholeSampleHeader); err != nil {
		return err
	}

	for _, res := range results {
		for i, name := range res.Order {
			record := []string{
				strconv.Itoa(i),
				name,
				formatFloat(res.Params[name]),
				res.Instrument,
				formatDate(res.MinDate),
				formatDate(res.MaxDate),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteRolling writes rolling loadings in long form: for each result, every date
// of the first variable, then every date of the next one.
func WriteRolling(w io.Writer, results []domain.RollingResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(rollingHeader); err != nil {
		return err
	}

	for _, res := range results {
		window := strconv.Itoa(res.WindowSize)
		pos := 0
		for _, name := range res.Order {
			for _, l := range res.Loadings {
				record := []string{
					strconv.Itoa(pos),
					formatDate(l.Date),
					name,
					formatFloat(l.Params[name]),
					res.Instrument,
					window,
				}
				if err := writer.Write(record); err != nil {
					return err
				}
				pos++
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// WritePCA writes the explained-variance shares in long form, component-major.
func WritePCA(w io.Writer, res pca.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(pcaHeader); err != nil {
		return err
	}

	pos := 0
	for c, name := range res.Components {
		for _, win := range res.Windows {
			record := []string{strconv.Itoa(pos), formatDate(win.Date), name, formatFloat(win.Ratios[c])}
			if err := writer.Write(record); err != nil {
				return err
			}
			pos++
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFile creates path (and its directory) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
