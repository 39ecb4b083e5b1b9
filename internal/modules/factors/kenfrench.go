package factors

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/factorlab/internal/domain"
)

// Ken French files mark missing observations with these values.
var kenFrenchMissing = []float64{-99.99, -999}

// OpenKenFrench reads a Ken French daily file, either the CSV itself or the zip
// archive it is distributed in.
func OpenKenFrench(path string) (Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return openKenFrenchZip(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadKenFrench(f)
	if err != nil {
		return Table{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return t, nil
}

func openKenFrenchZip(path string) (Table, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if !strings.EqualFold(filepath.Ext(file.Name), ".csv") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return Table{}, fmt.Errorf("failed to open %s in %s: %w", file.Name, path, err)
		}
		t, err := ReadKenFrench(rc)
		rc.Close()
		if err != nil {
			return Table{}, fmt.Errorf("failed to parse %s in %s: %w", file.Name, path, err)
		}
		return t, nil
	}
	return Table{}, domain.NewError(domain.KindInvalidInput, "", "archive %s holds no csv file", path)
}

// ReadKenFrench parses the daily section of a Ken French CSV. The descriptive
// preamble is skipped up to the header row (empty first cell); data rows carry a
// YYYYMMDD date and the section ends at the first row without one. Values stay
// in percent.
func ReadKenFrench(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var t Table
	inData := false
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, err
		}

		if !inData {
			if isKenFrenchHeader(record) {
				for _, name := range record[1:] {
					t.Columns = append(t.Columns, strings.TrimSpace(name))
				}
				inData = true
			}
			continue
		}

		date, ok := parseCompactDate(record[0])
		if !ok {
			if t.Len() > 0 {
				break
			}
			continue
		}

		row := nanRow(len(t.Columns))
		for j := range t.Columns {
			if j+1 < len(record) {
				row[j] = parseKenFrenchValue(record[j+1])
			}
		}
		t.Dates = append(t.Dates, date)
		t.Rows = append(t.Rows, row)
	}

	if len(t.Columns) == 0 {
		return Table{}, domain.NewError(domain.KindInvalidInput, "", "no header row found")
	}
	if t.Len() == 0 {
		return Table{}, domain.NewError(domain.KindInvalidInput, "", "no daily rows found")
	}

	t.sortByDate()
	return t, nil
}

func isKenFrenchHeader(record []string) bool {
	if len(record) < 2 || strings.TrimSpace(record[0]) != "" {
		return false
	}
	for _, cell := range record[1:] {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}

func parseCompactDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return time.Time{}, false
	}
	d, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func parseKenFrenchValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	for _, m := range kenFrenchMissing {
		if v == m {
			return math.NaN()
		}
	}
	return v
}
