package returns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/factorlab/internal/domain"
)

// ImportSummary reports what an import wrote.
type ImportSummary struct {
	FactorDates  int
	Instruments  int
	Skipped      []string // instruments with no observations
	Observations int
}

// Import copies the factor panel and every instrument series from the given
// sources into the repository. Instruments without history are skipped.
func (r *Repository) Import(ctx context.Context, factors domain.FactorPanelSource, series domain.ReturnSeriesSource) (ImportSummary, error) {
	var summary ImportSummary

	panel, err := factors.LoadFactorPanel(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load factor panel: %w", err)
	}
	if err := r.SaveFactorPanel(ctx, panel); err != nil {
		return summary, err
	}
	summary.FactorDates = len(panel.Dates)

	ids, err := series.Instruments(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list instruments: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		s, err := series.LoadReturnSeries(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			summary.Skipped = append(summary.Skipped, id)
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("failed to load %s: %w", id, err)
		}
		if err := r.SaveReturnSeries(ctx, s); err != nil {
			return summary, err
		}
		summary.Instruments++
		summary.Observations += s.Len()
	}

	r.log.Info().
		Int("factor_dates", summary.FactorDates).
		Int("instruments", summary.Instruments).
		Int("skipped", len(summary.Skipped)).
		Int("observations", summary.Observations).
		Msg("Import complete")

	return summary, nil
}
