package factors

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aristath/factorlab/internal/domain"
)

// AQRRegion is the column read from AQR workbooks.
const AQRRegion = "Global"

// OpenAQR reads the Global series of one AQR daily factor workbook. The data lives
// on the sheet "<name> Factors" below a header row that starts with DATE. The
// resulting table has a single column called name.
func OpenAQR(path, name string) (Table, error) {
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheet := name + " Factors"
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, path, err)
	}

	dateCol, valueCol, headerRow := -1, -1, -1
	for i, row := range rows {
		dateCol, valueCol = -1, -1
		for j, cell := range row {
			switch strings.TrimSpace(cell) {
			case "DATE":
				dateCol = j
			case AQRRegion:
				valueCol = j
			}
		}
		if dateCol >= 0 {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return Table{}, domain.NewError(domain.KindInvalidInput, "", "sheet %q has no DATE header", sheet)
	}
	if valueCol < 0 {
		return Table{}, domain.NewError(domain.KindInvalidInput, "", "sheet %q has no %s column", sheet, AQRRegion)
	}

	t := Table{Columns: []string{name}}
	for _, row := range rows[headerRow+1:] {
		if dateCol >= len(row) {
			continue
		}
		date, ok := parseSheetDate(row[dateCol])
		if !ok {
			continue
		}
		value := math.NaN()
		if valueCol < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[valueCol]), 64); err == nil {
				value = v
			}
		}
		t.Dates = append(t.Dates, date)
		t.Rows = append(t.Rows, []float64{value})
	}

	if t.Len() == 0 {
		return Table{}, domain.NewError(domain.KindInvalidInput, "", "sheet %q has no dated rows", sheet)
	}
	t.sortByDate()
	return t, nil
}

// parseSheetDate accepts an Excel serial day number or a formatted date.
func parseSheetDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		d, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
	}
	for _, layout := range []string{"01/02/2006", "1/2/2006", "01-02-06", domain.DateLayout} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
