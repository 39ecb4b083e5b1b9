package artifacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/factorlab/internal/domain"
)

// WholeSampleRow is one line of the whole-sample file.
type WholeSampleRow struct {
	Factor  string
	Param   float64
	Ticker  string
	MinDate time.Time
	MaxDate time.Time
}

// RollingRow is one line of the rolling regression or correlation file.
type RollingRow struct {
	Date       time.Time
	Variable   string
	Value      float64
	Ticker     string
	WindowSize int
}

// PCARow is one line of the PCA file.
type PCARow struct {
	Date     time.Time
	Variable string
	Value    float64
}

// ReadWholeSample parses a whole-sample file.
func ReadWholeSample(r io.Reader) ([]WholeSampleRow, error) {
	var out []WholeSampleRow
	err := readRecords(r, wholeSampleHeader, func(line int, rec []string) error {
		param, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return fmt.Errorf("line %d: bad params value: %w", line, err)
		}
		minDate, err := time.Parse(domain.DateLayout, rec[4])
		if err != nil {
			return fmt.Errorf("line %d: bad min_year: %w", line, err)
		}
		maxDate, err := time.Parse(domain.DateLayout, rec[5])
		if err != nil {
			return fmt.Errorf("line %d: bad max_year: %w", line, err)
		}
		out = append(out, WholeSampleRow{Factor: rec[1], Param: param, Ticker: rec[3], MinDate: minDate, MaxDate: maxDate})
		return nil
	})
	return out, err
}

// ReadRolling parses a rolling regression or correlation file.
func ReadRolling(r io.Reader) ([]RollingRow, error) {
	var out []RollingRow
	err := readRecords(r, rollingHeader, func(line int, rec []string) error {
		date, err := time.Parse(domain.DateLayout, rec[1])
		if err != nil {
			return fmt.Errorf("line %d: bad date: %w", line, err)
		}
		value, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return fmt.Errorf("line %d: bad value: %w", line, err)
		}
		window, err := strconv.Atoi(rec[5])
		if err != nil {
			return fmt.Errorf("line %d: bad window_size: %w", line, err)
		}
		out = append(out, RollingRow{Date: date, Variable: rec[2], Value: value, Ticker: rec[4], WindowSize: window})
		return nil
	})
	return out, err
}

// ReadPCA parses a PCA file.
func ReadPCA(r io.Reader) ([]PCARow, error) {
	var out []PCARow
	err := readRecords(r, pcaHeader, func(line int, rec []string) error {
		date, err := time.Parse(domain.DateLayout, rec[1])
		if err != nil {
			return fmt.Errorf("line %d: bad date: %w", line, err)
		}
		value, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return fmt.Errorf("line %d: bad value: %w", line, err)
		}
		out = append(out, PCARow{Date: date, Variable: rec[2], Value: value})
		return nil
	})
	return out, err
}

// FilterWholeSample keeps the rows of one ticker.
func FilterWholeSample(rows []WholeSampleRow, ticker string) []WholeSampleRow {
	var out []WholeSampleRow
	for _, row := range rows {
		if strings.EqualFold(row.Ticker, ticker) {
			out = append(out, row)
		}
	}
	return out
}

// FilterRolling keeps the rows of one ticker and window; window <= 0 keeps every window.
func FilterRolling(rows []RollingRow, ticker string, window int) []RollingRow {
	var out []RollingRow
	for _, row := range rows {
		if !strings.EqualFold(row.Ticker, ticker) {
			continue
		}
		if window > 0 && row.WindowSize != window {
			continue
		}
		out = append(out, row)
	}
	return out
}

func readRecords(r io.Reader, header []string, fn func(line int, rec []string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	got, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	for i := 1; i < len(header); i++ {
		if strings.TrimSpace(got[i]) != header[i] {
			return domain.NewError(domain.KindInvalidInput, "", "unexpected header %v", got)
		}
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}
