package returns

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/rs/zerolog"
)

// CSVFactorSource reads a factor panel from a CSV whose first column is the date
// and which has an RF column, e.g. the joined factors.csv:
//
//	Date,Mkt-RF,SMB,HML,RMW,CMA,RF,WML,QMJ,BAB
type CSVFactorSource struct {
	path string
	log  zerolog.Logger
}

// NewCSVFactorSource creates a factor panel source backed by a CSV file
func NewCSVFactorSource(path string, log zerolog.Logger) *CSVFactorSource {
	return &CSVFactorSource{
		path: path,
		log:  log.With().Str("component", "csv_factor_source").Logger(),
	}
}

// LoadFactorPanel implements domain.FactorPanelSource
func (s *CSVFactorSource) LoadFactorPanel(ctx context.Context) (domain.FactorPanel, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to open factor file: %w", err)
	}
	defer f.Close()

	panel, err := ReadFactorPanelCSV(ctx, f)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	s.log.Debug().
		Str("path", s.path).
		Int("dates", panel.Len()).
		Strs("factors", panel.Factors).
		Msg("Loaded factor panel")

	return panel, nil
}

// ReadFactorPanelCSV parses a factor panel from CSV.
func ReadFactorPanelCSV(ctx context.Context, r io.Reader) (domain.FactorPanel, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 3 {
		return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "", "factor header needs a date, RF and at least one factor")
	}

	rfIdx := -1
	var factors []string
	var factorIdx []int
	for j, name := range header[1:] {
		name = strings.TrimSpace(name)
		if name == domain.RiskFreeName {
			rfIdx = j + 1
			continue
		}
		factors = append(factors, name)
		factorIdx = append(factorIdx, j+1)
	}
	if rfIdx < 0 {
		return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "", "factor file has no %s column", domain.RiskFreeName)
	}

	var dates []time.Time
	var rows [][]float64
	var rf []float64
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.FactorPanel{}, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.FactorPanel{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		date, err := ParseDate(record[0])
		if err != nil {
			return domain.FactorPanel{}, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]float64, len(factors))
		for k, idx := range factorIdx {
			if row[k], err = parseCell(record, idx); err != nil {
				return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "",
					"line %d, column %s: %s", line, factors[k], err)
			}
		}
		rfValue, err := parseCell(record, rfIdx)
		if err != nil {
			return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "",
				"line %d, column %s: %s", line, domain.RiskFreeName, err)
		}

		dates = append(dates, date)
		rows = append(rows, row)
		rf = append(rf, rfValue)
	}

	return NewFactorPanel(factors, dates, rows, rf)
}

// CSVReturnSource reads instrument returns from a wide CSV: a date column followed by
// one column per instrument; empty cells are missing observations.
// The file is parsed once on first use.
type CSVReturnSource struct {
	path string
	log  zerolog.Logger

	once   sync.Once
	series map[string]domain.ReturnSeries
	err    error
}

// NewCSVReturnSource creates a return series source backed by a wide CSV file
func NewCSVReturnSource(path string, log zerolog.Logger) *CSVReturnSource {
	return &CSVReturnSource{
		path: path,
		log:  log.With().Str("component", "csv_return_source").Logger(),
	}
}

func (s *CSVReturnSource) load() {
	f, err := os.Open(s.path)
	if err != nil {
		s.err = fmt.Errorf("failed to open returns file: %w", err)
		return
	}
	defer f.Close()

	s.series, s.err = ReadWideReturnsCSV(f)
	if s.err == nil {
		s.log.Debug().Str("path", s.path).Int("instruments", len(s.series)).Msg("Loaded return series")
	}
}

// LoadReturnSeries implements domain.ReturnSeriesSource
func (s *CSVReturnSource) LoadReturnSeries(ctx context.Context, instrument string) (domain.ReturnSeries, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return domain.ReturnSeries{}, s.err
	}

	series, ok := s.series[instrument]
	if !ok || series.Len() == 0 {
		return domain.ReturnSeries{}, domain.NewError(domain.KindNotFound, instrument, "no return history")
	}
	return series, nil
}

// Instruments implements domain.ReturnSeriesSource
func (s *CSVReturnSource) Instruments(ctx context.Context) ([]string, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}

	ids := make([]string, 0, len(s.series))
	for id := range s.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadWideReturnsCSV parses a wide returns table into one series per column.
func ReadWideReturnsCSV(r io.Reader) (map[string]domain.ReturnSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, domain.NewError(domain.KindInvalidInput, "", "returns header needs a date and at least one instrument")
	}

	ids := make([]string, len(header)-1)
	for j, name := range header[1:] {
		ids[j] = strings.TrimSpace(name)
	}

	dates := make([]time.Time, 0)
	columns := make([][]float64, len(ids))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		date, err := ParseDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		dates = append(dates, date)
		for j, id := range ids {
			v, err := parseCell(record, j+1)
			if err != nil {
				return nil, domain.NewError(domain.KindInvalidInput, id, "line %d: %s", line, err)
			}
			columns[j] = append(columns[j], v)
		}
	}

	out := make(map[string]domain.ReturnSeries, len(ids))
	for j, id := range ids {
		series, err := NewReturnSeries(id, dates, columns[j])
		if err != nil {
			return nil, err
		}
		out[id] = series
	}
	return out, nil
}

// missingMarkers are the cell spellings read as a missing observation.
var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"#n/a": true,
	"nan":  true,
	"null": true,
	"none": true,
}

// parseCell returns NaN for missing cells and an error for cells that are not numbers.
func parseCell(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return math.NaN(), nil
	}
	cell := strings.TrimSpace(record[idx])
	if missingMarkers[strings.ToLower(cell)] {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", cell)
	}
	return v, nil
}

// WriteFactorPanelCSV writes the panel in the layout ReadFactorPanelCSV reads:
// Date, the factor columns in order, then RF.
func WriteFactorPanelCSV(w io.Writer, panel domain.FactorPanel) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(panel.Factors)+2)
	header = append(header, "Date")
	header = append(header, panel.Factors...)
	header = append(header, domain.RiskFreeName)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for i, date := range panel.Dates {
		record[0] = date.Format(domain.DateLayout)
		for j, v := range panel.Values[i] {
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[len(record)-1] = strconv.FormatFloat(panel.RF[i], 'g', -1, 64)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
