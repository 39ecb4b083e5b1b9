package testing

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// FixtureStart is the first date of every generated fixture
var FixtureStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// FixtureRF is the constant daily risk-free rate in generated fixtures
const FixtureRF = 0.0001

// MarketReturn is the deterministic Mkt-RF value of fixture row i
func MarketReturn(i int) float64 {
	return 0.01 * math.Sin(float64(i))
}

// StockReturn is a raw return with alpha 0.001 and the given beta on MarketReturn,
// plus a small deterministic wobble so the fit is not exact.
func StockReturn(i int, beta float64) float64 {
	return FixtureRF + 0.001 + beta*MarketReturn(i) + 0.0005*math.Cos(1.3*float64(i))
}

// CSVPaths are the files written by WriteReturnsCSV.
type CSVPaths struct {
	Factors string
	Stocks  string
}

// WriteReturnsCSV writes factors.csv (Mkt-RF, RF) and stocks.csv with one column
// per ticker into dir, over rows consecutive calendar days. betas maps ticker to beta.
func WriteReturnsCSV(t *testing.T, dir string, rows int, betas map[string]float64) CSVPaths {
	t.Helper()

	tickers := make([]string, 0, len(betas))
	for ticker := range betas {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var factors, stocks strings.Builder
	factors.WriteString("Date,Mkt-RF,RF\n")
	stocks.WriteString("Date," + strings.Join(tickers, ",") + "\n")

	for i := 0; i < rows; i++ {
		date := FixtureStart.AddDate(0, 0, i).Format("2006-01-02")
		fmt.Fprintf(&factors, "%s,%g,%g\n", date, MarketReturn(i), FixtureRF)

		stocks.WriteString(date)
		for _, ticker := range tickers {
			fmt.Fprintf(&stocks, ",%g", StockReturn(i, betas[ticker]))
		}
		stocks.WriteString("\n")
	}

	paths := CSVPaths{
		Factors: filepath.Join(dir, "factors.csv"),
		Stocks:  filepath.Join(dir, "stocks.csv"),
	}
	if err := os.WriteFile(paths.Factors, []byte(factors.String()), 0o644); err != nil {
		t.Fatalf("Failed to write factors fixture: %v", err)
	}
	if err := os.WriteFile(paths.Stocks, []byte(stocks.String()), 0o644); err != nil {
		t.Fatalf("Failed to write stocks fixture: %v", err)
	}
	return paths
}
