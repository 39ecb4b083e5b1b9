package factors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/returns"
)

// Sources are the local files the panel is built from.
type Sources struct {
	FiveFactors        string // Ken French developed 5 factors, daily (csv or zip)
	Momentum           string // Ken French developed momentum, daily (csv or zip)
	Quality            string // AQR quality minus junk, daily (xlsx)
	BettingAgainstBeta string // AQR betting against beta, daily (xlsx)
}

// Builder assembles factors.csv from Ken French and AQR downloads.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a new factor panel builder
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log.With().Str("component", "factor_builder").Logger()}
}

// Build reads every source and joins them into one panel.
func (b *Builder) Build(ctx context.Context, src Sources) (domain.FactorPanel, error) {
	start := time.Now()

	ff5, err := OpenKenFrench(src.FiveFactors)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("five factors: %w", err)
	}
	mom, err := OpenKenFrench(src.Momentum)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("momentum: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.FactorPanel{}, err
	}

	qmj, err := OpenAQR(src.Quality, "QMJ")
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("quality: %w", err)
	}
	bab, err := OpenAQR(src.BettingAgainstBeta, "BAB")
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("betting against beta: %w", err)
	}

	panel, err := BuildPanel(ff5, mom, qmj, bab)
	if err != nil {
		return domain.FactorPanel{}, err
	}

	b.log.Info().
		Int("dates", panel.Len()).
		Strs("factors", panel.Factors).
		Dur("duration", time.Since(start)).
		Msg("Built factor panel")

	return panel, nil
}

// BuildTo builds the panel and writes it as a factors CSV at path.
func (b *Builder) BuildTo(ctx context.Context, src Sources, path string) (domain.FactorPanel, error) {
	panel, err := b.Build(ctx, src)
	if err != nil {
		return domain.FactorPanel{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := returns.WriteFactorPanelCSV(f, panel); err != nil {
		f.Close()
		return domain.FactorPanel{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return panel, nil
}

// BuildPanel joins the tables the way the published factors.csv is built:
// Ken French five factors with momentum, converted from percent; AQR quality
// with betting against beta; then the two blocks on their common dates.
func BuildPanel(ff5, mom, qmj, bab Table) (domain.FactorPanel, error) {
	ff := InnerJoin(ff5, mom).Scale(0.01)
	aqr := InnerJoin(qmj, bab)
	all := InnerJoin(ff, aqr)

	rfIdx := -1
	var factors []string
	var factorIdx []int
	for j, name := range all.Columns {
		if name == domain.RiskFreeName {
			rfIdx = j
			continue
		}
		factors = append(factors, name)
		factorIdx = append(factorIdx, j)
	}
	if rfIdx < 0 {
		return domain.FactorPanel{}, domain.NewError(domain.KindInvalidInput, "", "five factor file has no %s column", domain.RiskFreeName)
	}
	if all.Len() == 0 {
		return domain.FactorPanel{}, domain.NewError(domain.KindNoOverlap, "", "factor sources share no dates")
	}

	rows := make([][]float64, all.Len())
	rf := make([]float64, all.Len())
	for i, row := range all.Rows {
		out := make([]float64, len(factorIdx))
		for k, j := range factorIdx {
			out[k] = row[j]
		}
		rows[i] = out
		rf[i] = row[rfIdx]
	}

	return returns.NewFactorPanel(factors, all.Dates, rows, rf)
}
