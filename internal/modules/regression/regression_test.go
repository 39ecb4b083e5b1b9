package regression

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/returns"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var origin = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func days(n int, from time.Time) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = from.AddDate(0, 0, i)
	}
	return out
}

// syntheticPanel has one factor oscillating around 0.01 and a zero risk-free rate.
func syntheticPanel(n int) domain.FactorPanel {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{0.01 + 0.005*math.Sin(float64(i))}
	}
	return domain.FactorPanel{
		Dates:   days(n, origin),
		Factors: []string{"MKT"},
		Values:  rows,
		RF:      make([]float64, n),
	}
}

func scaledSeries(id string, panel domain.FactorPanel, beta float64) domain.ReturnSeries {
	values := make([]float64, panel.Len())
	for i, row := range panel.Values {
		values[i] = beta*row[0] + panel.RF[i]
	}
	return domain.ReturnSeries{Instrument: id, Dates: panel.Dates, Values: values}
}

// noisyData draws two factors and a return with known loadings.
func noisyData(n int, seed int64) (domain.FactorPanel, domain.ReturnSeries) {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	rf := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		f1 := rng.NormFloat64() * 0.01
		f2 := rng.NormFloat64() * 0.01
		rows[i] = []float64{f1, f2}
		rf[i] = 0.0001
		values[i] = rf[i] + 0.001 + 1.5*f1 - 0.5*f2 + rng.NormFloat64()*0.001
	}
	dates := days(n, origin)
	return domain.FactorPanel{Dates: dates, Factors: []string{"F1", "F2"}, Values: rows, RF: rf},
		domain.ReturnSeries{Instrument: "NOISY", Dates: dates, Values: values}
}

func newStore(t *testing.T, panel domain.FactorPanel, series ...domain.ReturnSeries) *returns.Store {
	t.Helper()
	store, err := returns.NewStoreFromSnapshot(panel, series, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func newEngine(t *testing.T, panel domain.FactorPanel, series ...domain.ReturnSeries) *Engine {
	t.Helper()
	store := newStore(t, panel, series...)
	return NewEngine(store, Options{}, zerolog.Nop())
}

func TestPrepare_InnerJoin(t *testing.T) {
	panel := domain.FactorPanel{
		Dates:   days(5, origin),
		Factors: []string{"A", "B"},
		Values:  [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}},
		RF:      []float64{0.1, 0.1, 0.1, 0.1, 0.1},
	}
	series := domain.ReturnSeries{
		Instrument: "X",
		Dates:      []time.Time{origin.AddDate(0, 0, -1), origin.AddDate(0, 0, 1), origin.AddDate(0, 0, 3), origin.AddDate(0, 0, 9)},
		Values:     []float64{9, 1.1, 2.1, 9},
	}

	d, err := Prepare(series, panel)
	require.NoError(t, err)

	assert.Equal(t, []string{"const", "A", "B"}, d.Names)
	assert.Equal(t, []time.Time{origin.AddDate(0, 0, 1), origin.AddDate(0, 0, 3)}, d.Dates)
	assert.InDeltaSlice(t, []float64{1.0, 2.0}, d.Y, 1e-12)
	assert.Equal(t, []float64{1, 3, 4}, d.X.RawRowView(0))
	assert.Equal(t, []float64{1, 7, 8}, d.X.RawRowView(1))
}

func TestPrepare_NoOverlap(t *testing.T) {
	panel := syntheticPanel(10)
	series := domain.ReturnSeries{
		Instrument: "LATE",
		Dates:      days(10, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
		Values:     make([]float64, 10),
	}
	panel.Dates = days(10, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := Prepare(series, panel)
	assert.True(t, errors.Is(err, domain.ErrNoOverlap))
	assert.Equal(t, domain.KindNoOverlap, domain.KindOf(err))
}

func TestPrepare_RejectsUnsortedInput(t *testing.T) {
	panel := syntheticPanel(5)
	series := scaledSeries("X", panel, 1.0)
	series.Dates = append([]time.Time(nil), series.Dates...)
	series.Dates[1], series.Dates[2] = series.Dates[2], series.Dates[1]

	_, err := Prepare(series, panel)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	panel.Dates = append([]time.Time(nil), panel.Dates...)
	panel.Dates[3] = panel.Dates[2]
	_, err = Prepare(scaledSeries("X", syntheticPanel(5), 1.0), panel)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestFitWholeSample_RecoversLoading(t *testing.T) {
	panel := syntheticPanel(300)
	e := newEngine(t, panel, scaledSeries("SYN", panel, 2.0))

	res, err := e.FitWholeSample("SYN")
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Params["MKT"], 1e-6)
	assert.InDelta(t, 0.0, res.Params["const"], 1e-6)
	assert.Equal(t, []string{"const", "MKT"}, res.Order)
	assert.Equal(t, 300, res.Observations)
	assert.Equal(t, origin, res.MinDate)
	assert.Equal(t, origin.AddDate(0, 0, 299), res.MaxDate)
	assert.InDelta(t, 1.0, res.Inference.RSquared, 1e-9)
	assert.Equal(t, 1, res.Inference.MaxLags)
}

func TestFitWholeSample_ConstantFactorIsSingular(t *testing.T) {
	panel := syntheticPanel(300)
	for i := range panel.Values {
		panel.Values[i][0] = 0.01
	}
	e := newEngine(t, panel, scaledSeries("FLAT", panel, 2.0))

	_, err := e.FitWholeSample("FLAT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSingularDesign))
}

func TestFitWholeSample_NotFound(t *testing.T) {
	e := newEngine(t, syntheticPanel(10))

	_, err := e.FitWholeSample("NOPE")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFitWholeSample_TooFewRowsIsSingular(t *testing.T) {
	panel, series := noisyData(2, 1)
	d, err := Prepare(series, panel)
	require.NoError(t, err)

	_, err = FitWholeSample(d)
	assert.True(t, errors.Is(err, domain.ErrSingularDesign))
}

func TestFitWholeSample_MatchesNormalEquations(t *testing.T) {
	panel, series := noisyData(500, 42)
	d, err := Prepare(series, panel)
	require.NoError(t, err)

	res, err := FitWholeSample(d)
	require.NoError(t, err)

	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)
	var xty mat.VecDense
	xty.MulVec(d.X.T(), mat.NewVecDense(len(d.Y), d.Y))
	var want mat.VecDense
	require.NoError(t, want.SolveVec(&xtx, &xty))

	for i, name := range d.Names {
		assert.InDelta(t, want.AtVec(i), res.Params[name], 1e-8, name)
	}

	assert.InDelta(t, 1.5, res.Params["F1"], 0.05)
	assert.InDelta(t, -0.5, res.Params["F2"], 0.05)
	assert.InDelta(t, 0.001, res.Params["const"], 0.001)

	inf := res.Inference
	for _, name := range d.Names {
		se := inf.StdErrors[name]
		assert.Greater(t, se, 0.0, name)
		assert.InDelta(t, res.Params[name]/se, inf.ZStats[name], 1e-9, name)
		assert.Less(t, inf.CILower[name], res.Params[name], name)
		assert.Greater(t, inf.CIUpper[name], res.Params[name], name)
	}
	assert.Less(t, inf.PValues["F1"], 1e-6)
	assert.Greater(t, inf.RSquared, 0.9)
}

func TestFitWholeSample_KeyedByName(t *testing.T) {
	panel, series := noisyData(200, 7)

	swapped := domain.FactorPanel{Dates: panel.Dates, Factors: []string{"F2", "F1"}, RF: panel.RF}
	for _, row := range panel.Values {
		swapped.Values = append(swapped.Values, []float64{row[1], row[0]})
	}

	a, err := newEngine(t, panel, series).FitWholeSample("NOISY")
	require.NoError(t, err)
	b, err := newEngine(t, swapped, series).FitWholeSample("NOISY")
	require.NoError(t, err)

	for _, name := range []string{"const", "F1", "F2"} {
		assert.InDelta(t, a.Params[name], b.Params[name], 1e-10, name)
		assert.InDelta(t, a.Inference.StdErrors[name], b.Inference.StdErrors[name], 1e-10, name)
	}
	assert.Equal(t, []string{"const", "F2", "F1"}, b.Order)
}

func TestFitWholeSample_InvariantToRowOrder(t *testing.T) {
	panel, series := noisyData(300, 5)
	want, err := newEngine(t, panel, series).FitWholeSample("NOISY")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(99))
	shuffledPanel := domain.FactorPanel{Factors: panel.Factors}
	for _, i := range rng.Perm(panel.Len()) {
		shuffledPanel.Dates = append(shuffledPanel.Dates, panel.Dates[i])
		shuffledPanel.Values = append(shuffledPanel.Values, panel.Values[i])
		shuffledPanel.RF = append(shuffledPanel.RF, panel.RF[i])
	}
	shuffledSeries := domain.ReturnSeries{Instrument: series.Instrument}
	for i := series.Len() - 1; i >= 0; i-- {
		shuffledSeries.Dates = append(shuffledSeries.Dates, series.Dates[i])
		shuffledSeries.Values = append(shuffledSeries.Values, series.Values[i])
	}

	got, err := newEngine(t, shuffledPanel, shuffledSeries).FitWholeSample("NOISY")
	require.NoError(t, err)
	assert.Equal(t, want.Params, got.Params)
	assert.Equal(t, want.Observations, got.Observations)
	assert.Equal(t, want.MinDate, got.MinDate)
	assert.Equal(t, want.MaxDate, got.MaxDate)
}

func TestFitWholeSample_Deterministic(t *testing.T) {
	panel, series := noisyData(250, 3)
	e := newEngine(t, panel, series)

	first, err := e.FitWholeSample("NOISY")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.FitWholeSample("NOISY")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFitRolling_Synthetic(t *testing.T) {
	panel := syntheticPanel(300)
	e := newEngine(t, panel, scaledSeries("SYN", panel, 2.0))

	res, err := e.FitRolling("SYN", 60)
	require.NoError(t, err)

	require.Len(t, res.Loadings, 241)
	assert.Equal(t, 60, res.WindowSize)
	assert.Equal(t, origin.AddDate(0, 0, 59), res.Loadings[0].Date)
	assert.Equal(t, origin.AddDate(0, 0, 299), res.Loadings[240].Date)
	for _, l := range res.Loadings {
		assert.InDelta(t, 2.0, l.Params["MKT"], 1e-6)
		assert.Nil(t, l.Inference)
	}
}

func TestFitRolling_InvalidWindowBeforeDataAccess(t *testing.T) {
	// The store was never loaded, so any data access would fail differently
	e := NewEngine(returns.NewStore(nil, nil, zerolog.Nop()), Options{}, zerolog.Nop())

	for _, w := range []int{0, -5} {
		_, err := e.FitRolling("ANY", w)
		assert.True(t, errors.Is(err, domain.ErrInvalidWindow), "window %d", w)
	}
}

func TestFitRolling_WindowBelowColumns(t *testing.T) {
	panel := syntheticPanel(50)
	e := newEngine(t, panel, scaledSeries("SYN", panel, 2.0))

	_, err := e.FitRolling("SYN", 2)
	assert.True(t, errors.Is(err, domain.ErrInvalidWindow))

	res, err := e.FitRolling("SYN", 3)
	require.NoError(t, err)
	assert.Len(t, res.Loadings, 48)
}

func TestFitRolling_Length(t *testing.T) {
	panel, series := noisyData(120, 11)
	e := newEngine(t, panel, series)

	for _, w := range []int{4, 10, 60, 119, 120, 121, 500} {
		res, err := e.FitRolling("NOISY", w)
		require.NoError(t, err, "window %d", w)
		assert.Len(t, res.Loadings, max(0, 120-w+1), "window %d", w)
		assert.NotNil(t, res.Loadings)
	}
}

func TestFitRolling_SingularWindowNamesDate(t *testing.T) {
	panel := syntheticPanel(100)
	// rows 40..59 make the factor flat
	for i := 40; i < 60; i++ {
		panel.Values[i][0] = 0.01
	}
	e := newEngine(t, panel, scaledSeries("SYN", panel, 2.0))

	_, err := e.FitRolling("SYN", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSingularDesign))
	assert.True(t, strings.Contains(err.Error(), origin.AddDate(0, 0, 49).Format(domain.DateLayout)), err.Error())
}

func TestFitRolling_ParallelMatchesSequential(t *testing.T) {
	panel, series := noisyData(400, 5)
	d, err := Prepare(series, panel)
	require.NoError(t, err)

	seq, err := FitRolling(d, 50, RollingOptions{Inference: true})
	require.NoError(t, err)
	par, err := FitRolling(d, 50, RollingOptions{Workers: 4, Inference: true})
	require.NoError(t, err)

	assert.Equal(t, seq, par)
	require.NotNil(t, seq.Loadings[0].Inference)
}

func TestFitRolling_ParallelReportsEarliestSingularWindow(t *testing.T) {
	panel := syntheticPanel(400)
	for _, span := range [][2]int{{100, 120}, {300, 320}} {
		for i := span[0]; i < span[1]; i++ {
			panel.Values[i][0] = 0.01
		}
	}
	d, err := Prepare(scaledSeries("SYN", panel, 2.0), panel)
	require.NoError(t, err)

	_, seqErr := FitRolling(d, 10, RollingOptions{})
	_, parErr := FitRolling(d, 10, RollingOptions{Workers: 8})
	require.Error(t, seqErr)
	assert.Equal(t, seqErr.Error(), parErr.Error())
}

func TestFitRollingCorrelations(t *testing.T) {
	panel := syntheticPanel(100)
	e := newEngine(t, panel, scaledSeries("SYN", panel, 2.0))

	res, err := e.FitRollingCorrelations("SYN", 20)
	require.NoError(t, err)
	require.Len(t, res.Loadings, 81)
	assert.Equal(t, []string{"MKT"}, res.Order)
	for _, l := range res.Loadings {
		assert.InDelta(t, 1.0, l.Params["MKT"], 1e-9)
		assert.NotContains(t, l.Params, "const")
	}

	_, err = e.FitRollingCorrelations("SYN", 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidWindow))
}

func TestFitRollingCorrelations_LowVarianceFactor(t *testing.T) {
	n := 100
	panel := domain.FactorPanel{
		Dates:   days(n, origin),
		Factors: []string{"LOW"},
		Values:  make([][]float64, n),
		RF:      make([]float64, n),
	}
	for i := range panel.Values {
		panel.Values[i] = []float64{1e-4 + 5e-5*math.Sin(float64(i))}
	}
	e := newEngine(t, panel, scaledSeries("S", panel, 2.0))

	whole, err := e.FitWholeSample("S")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, whole.Params["LOW"], 1e-6)

	res, err := e.FitRollingCorrelations("S", 20)
	require.NoError(t, err)
	require.Len(t, res.Loadings, n-20+1)
	for _, l := range res.Loadings {
		assert.InDelta(t, 1.0, l.Params["LOW"], 1e-9)
	}
}

func TestHACMeat(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, 1, 1, 2, 1, 3})
	resid := []float64{1, -1, 2}

	white := hacMeat(x, resid, 0)
	assert.Equal(t, []float64{6, 15, 15, 41}, white.RawMatrix().Data)

	nw := hacMeat(x, resid, 1)
	assert.InDeltaSlice(t, []float64{3, 8.5, 8.5, 27}, nw.RawMatrix().Data, 1e-12)
}

func TestPValue(t *testing.T) {
	assert.InDelta(t, 1.0, pValue(0), 1e-12)
	assert.InDelta(t, 0.05, pValue(1.959963984540054), 1e-9)
	assert.InDelta(t, 0.05, pValue(-1.959963984540054), 1e-9)
	assert.InDelta(t, 1.959963984540054, ci95, 1e-9)
}

// swappableData serves whatever panel and series it currently holds.
type swappableData struct {
	panel  domain.FactorPanel
	series domain.ReturnSeries
}

func (d *swappableData) LoadFactorPanel(ctx context.Context) (domain.FactorPanel, error) {
	return d.panel, nil
}

func (d *swappableData) LoadReturnSeries(ctx context.Context, instrument string) (domain.ReturnSeries, error) {
	if instrument != d.series.Instrument {
		return domain.ReturnSeries{}, domain.NewError(domain.KindNotFound, instrument, "no return history")
	}
	return d.series, nil
}

func (d *swappableData) Instruments(ctx context.Context) ([]string, error) {
	return []string{d.series.Instrument}, nil
}

func TestPinned_IgnoresReload(t *testing.T) {
	ctx := context.Background()
	panel := syntheticPanel(100)
	data := &swappableData{panel: panel, series: scaledSeries("SYN", panel, 2.0)}
	store := returns.NewStore(data, data, zerolog.Nop())
	require.NoError(t, store.Load(ctx))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	pinned := NewEngine(Pinned(snap), Options{}, zerolog.Nop())
	live := NewEngine(store, Options{}, zerolog.Nop())

	data.series = scaledSeries("SYN", panel, -1.0)
	require.NoError(t, store.Reload(ctx))

	res, err := pinned.FitWholeSample("SYN")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Params["MKT"], 1e-6)

	res, err = live.FitWholeSample("SYN")
	require.NoError(t, err)
	assert.InDelta(t, -1.0, res.Params["MKT"], 1e-6)
}
