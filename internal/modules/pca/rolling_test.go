package pca

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPanel(n int, seed int64) domain.FactorPanel {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	panel := domain.FactorPanel{Factors: []string{"A", "B", "C"}}
	for i := 0; i < n; i++ {
		common := rng.NormFloat64()
		panel.Dates = append(panel.Dates, start.AddDate(0, 0, i))
		panel.Values = append(panel.Values, []float64{
			common + 0.1*rng.NormFloat64(),
			common + 0.1*rng.NormFloat64(),
			rng.NormFloat64(),
		})
		panel.RF = append(panel.RF, 0.0001)
	}
	return panel
}

func TestComponentNames(t *testing.T) {
	assert.Equal(t, []string{"PCA1", "PCA2", "other"}, ComponentNames(2))
}

func TestRolling_RatiosSumToOne(t *testing.T) {
	panel := randomPanel(100, 1)

	res, err := NewAnalyzer(zerolog.Nop()).Rolling(panel, 2, 30)
	require.NoError(t, err)

	require.Len(t, res.Windows, 71)
	assert.Equal(t, panel.Dates[29], res.Windows[0].Date)
	assert.Equal(t, panel.Dates[99], res.Windows[70].Date)

	for _, w := range res.Windows {
		require.Len(t, w.Ratios, 3)
		var sum float64
		for _, r := range w.Ratios {
			sum += r
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
		assert.GreaterOrEqual(t, w.Ratios[0], w.Ratios[1])
		// two of three factors share a driver, so the first component dominates
		assert.Greater(t, w.Ratios[0], 0.45)
	}
}

func TestRolling_AllComponentsLeaveNothing(t *testing.T) {
	res, err := Rolling(randomPanel(40, 2), 3, 20)
	require.NoError(t, err)
	for _, w := range res.Windows {
		assert.InDelta(t, 0.0, w.Ratios[3], 1e-9)
	}
}

func TestRolling_Validation(t *testing.T) {
	panel := randomPanel(20, 3)

	_, err := Rolling(panel, 0, 10)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = Rolling(panel, 4, 10)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = Rolling(panel, 2, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidWindow))

	res, err := Rolling(panel, 2, 21)
	require.NoError(t, err)
	assert.Empty(t, res.Windows)
}

func TestExplainedRatios_ZeroVariance(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 1}, explainedRatios([]float64{0, 0, 0}, 2))
	got := explainedRatios([]float64{3, 1}, 1)
	assert.InDelta(t, 0.75, got[0], 1e-12)
	assert.InDelta(t, 0.25, got[1], 1e-12)
	assert.False(t, math.IsNaN(got[1]))
}
