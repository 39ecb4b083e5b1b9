package work

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/calculations"
	"github.com/aristath/factorlab/internal/modules/regression"
	"github.com/aristath/factorlab/internal/modules/returns"
	testingpkg "github.com/aristath/factorlab/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reloadableData serves a single-factor panel and one instrument with the current beta.
type reloadableData struct {
	beta float64
}

func (d *reloadableData) panel() domain.FactorPanel {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	p := domain.FactorPanel{Factors: []string{"MKT"}}
	for i := 0; i < 120; i++ {
		p.Dates = append(p.Dates, start.AddDate(0, 0, i))
		p.Values = append(p.Values, []float64{0.01 + 0.005*math.Sin(float64(i))})
		p.RF = append(p.RF, 0)
	}
	return p
}

func (d *reloadableData) LoadFactorPanel(ctx context.Context) (domain.FactorPanel, error) {
	return d.panel(), nil
}

func (d *reloadableData) LoadReturnSeries(ctx context.Context, instrument string) (domain.ReturnSeries, error) {
	p := d.panel()
	rs := domain.ReturnSeries{Instrument: instrument, Dates: p.Dates}
	for _, row := range p.Values {
		rs.Values = append(rs.Values, d.beta*row[0])
	}
	return rs, nil
}

func (d *reloadableData) Instruments(ctx context.Context) ([]string, error) {
	return []string{"SYN"}, nil
}

func TestSnapshotFitter_CachesUnderFittedSnapshot(t *testing.T) {
	ctx := context.Background()
	data := &reloadableData{beta: 2}
	store := returns.NewStore(data, data, zerolog.Nop())
	require.NoError(t, store.Load(ctx))

	cache := calculations.NewCache(testingpkg.NewTestDB(t, "cache").Conn(), zerolog.Nop())
	var pinned []string
	fitter := NewSnapshotFitter(store, func(snap *returns.Snapshot) calculations.Fitter {
		pinned = append(pinned, snap.Fingerprint())
		engine := regression.NewEngine(regression.Pinned(snap), regression.Options{}, zerolog.Nop())
		return calculations.NewCachedEngine(engine, cache, snap, time.Hour, zerolog.Nop())
	})

	res, err := fitter.FitWholeSample("SYN")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Params["MKT"], 1e-6)
	first := store.Fingerprint()

	data.beta = -1
	require.NoError(t, store.Reload(ctx))

	res, err = fitter.FitWholeSample("SYN")
	require.NoError(t, err)
	assert.InDelta(t, -1.0, res.Params["MKT"], 1e-6)
	assert.Equal(t, []string{first, store.Fingerprint()}, pinned)

	// Each result sits under the fingerprint it was computed from
	var cached domain.WholeSampleLoadings
	ok, err := cache.GetIfFresh(calculations.KindWholeSample, calculations.Key(first, "SYN", 0), &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0, cached.Params["MKT"], 1e-6)

	ok, err = cache.GetIfFresh(calculations.KindWholeSample, calculations.Key(store.Fingerprint(), "SYN", 0), &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -1.0, cached.Params["MKT"], 1e-6)

	rolling, err := fitter.FitRolling("SYN", 30)
	require.NoError(t, err)
	assert.Len(t, rolling.Loadings, 91)

	corr, err := fitter.FitRollingCorrelations("SYN", 30)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, corr.Loadings[0].Params["MKT"], 1e-9)
}

func TestSnapshotFitter_StoreNotLoaded(t *testing.T) {
	fitter := NewSnapshotFitter(returns.NewStore(nil, nil, zerolog.Nop()), engineFactory)
	_, err := fitter.FitWholeSample("SYN")
	assert.Error(t, err)
	_, err = fitter.FitRolling("SYN", 10)
	assert.Error(t, err)
	_, err = fitter.FitRollingCorrelations("SYN", 10)
	assert.Error(t, err)
}
