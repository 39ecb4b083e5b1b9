package artifacts

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/pca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func wholeSample() []domain.WholeSampleLoadings {
	return []domain.WholeSampleLoadings{
		{
			Instrument: "TSLA",
			Params:     map[string]float64{"const": 0.001, "Mkt-RF": 1.25},
			Order:      []string{"const", "Mkt-RF"},
			MinDate:    date("2010-06-30"),
			MaxDate:    date("2021-01-29"),
		},
		{
			Instrument: "AAPL",
			Params:     map[string]float64{"const": -0.0002, "Mkt-RF": 1e-05},
			Order:      []string{"const", "Mkt-RF"},
			MinDate:    date("1990-07-02"),
			MaxDate:    date("2021-01-29"),
		},
	}
}

func TestWriteWholeSample_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWholeSample(&buf, wholeSample()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, ",index,params,ticker,min_year,max_year", lines[0])
	assert.Equal(t, "0,const,0.001,TSLA,2010-06-30,2021-01-29", lines[1])
	assert.Equal(t, "1,Mkt-RF,1.25,TSLA,2010-06-30,2021-01-29", lines[2])
	assert.Equal(t, "0,const,-0.0002,AAPL,1990-07-02,2021-01-29", lines[3])
	assert.Equal(t, "1,Mkt-RF,1e-05,AAPL,1990-07-02,2021-01-29", lines[4])
}

func TestWholeSample_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWholeSample(&buf, wholeSample()))

	rows, err := ReadWholeSample(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	aapl := FilterWholeSample(rows, "aapl")
	require.Len(t, aapl, 2)
	assert.Equal(t, "Mkt-RF", aapl[1].Factor)
	assert.Equal(t, 1e-05, aapl[1].Param)
	assert.Equal(t, date("1990-07-02"), aapl[1].MinDate)
}

func rolling() []domain.RollingResult {
	loadings := func(vals ...float64) []domain.RollingLoadings {
		out := make([]domain.RollingLoadings, len(vals))
		for i, v := range vals {
			out[i] = domain.RollingLoadings{
				Date:   date("2021-01-04").AddDate(0, 0, i),
				Params: map[string]float64{"const": v / 10, "SMB": v},
			}
		}
		return out
	}
	return []domain.RollingResult{
		{Instrument: "TSLA", WindowSize: 60, Order: []string{"const", "SMB"}, Loadings: loadings(1, 2, 3)},
		{Instrument: "TSLA", WindowSize: 120, Order: []string{"const", "SMB"}, Loadings: loadings(4)},
		{Instrument: "AAPL", WindowSize: 60, Order: []string{"const", "SMB"}, Loadings: []domain.RollingLoadings{}},
	}
}

func TestWriteRolling_VariableMajor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRolling(&buf, rolling()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1+6+2)
	assert.Equal(t, ",index,variable,value,ticker,window_size", lines[0])
	assert.Equal(t, "0,2021-01-04,const,0.1,TSLA,60", lines[1])
	assert.Equal(t, "2,2021-01-06,const,0.3,TSLA,60", lines[3])
	assert.Equal(t, "3,2021-01-04,SMB,1,TSLA,60", lines[4])
	assert.Equal(t, "0,2021-01-04,const,0.4,TSLA,120", lines[7])
}

func TestRolling_RoundTripAndFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRolling(&buf, rolling()))

	rows, err := ReadRolling(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 8)

	// one row per factor per date per instrument per window
	tsla60 := FilterRolling(rows, "TSLA", 60)
	assert.Len(t, tsla60, 6)
	assert.Len(t, FilterRolling(rows, "TSLA", 0), 8)
	assert.Empty(t, FilterRolling(rows, "AAPL", 60))
	assert.Equal(t, 3.0, tsla60[5].Value)
	assert.Equal(t, date("2021-01-06"), tsla60[5].Date)
}

func TestPCA_RoundTrip(t *testing.T) {
	res := pca.Result{
		WindowSize: 250,
		Components: pca.ComponentNames(1),
		Windows: []pca.Window{
			{Date: date("2021-01-04"), Ratios: []float64{0.75, 0.25}},
			{Date: date("2021-01-05"), Ratios: []float64{0.5, 0.5}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePCA(&buf, res))
	assert.True(t, strings.HasPrefix(buf.String(), ",Dates,variable,value\n0,2021-01-04,PCA1,0.75\n1,2021-01-05,PCA1,0.5\n2,2021-01-04,other,0.25\n"))

	rows, err := ReadPCA(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "other", rows[3].Variable)
}

func TestRead_RejectsWrongHeader(t *testing.T) {
	_, err := ReadRolling(strings.NewReader(",a,b,c,d,e\n"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = ReadWholeSample(strings.NewReader(",index,params\n"))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", WholeSampleFile)
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		return WriteWholeSample(w, wholeSample())
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ",index,params"))

	err = WriteFile(path, func(w io.Writer) error { return errors.New("boom") })
	assert.Error(t, err)
	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))

	// a failed write leaves the previous file in place
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
