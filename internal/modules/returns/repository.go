package returns

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/factorlab/internal/database"
	"github.com/aristath/factorlab/internal/domain"
	"github.com/rs/zerolog"
)

// Repository stores the factor panel and instrument returns in returns.db.
// It implements both domain.FactorPanelSource and domain.ReturnSeriesSource.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new returns repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "returns_repository").Logger(),
	}
}

// SaveFactorPanel replaces the stored factor panel.
func (r *Repository) SaveFactorPanel(ctx context.Context, panel domain.FactorPanel) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM factor_returns`); err != nil {
			return fmt.Errorf("failed to clear factor returns: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM factor_columns`); err != nil {
			return fmt.Errorf("failed to clear factor columns: %w", err)
		}

		columns := append(append([]string(nil), panel.Factors...), domain.RiskFreeName)
		for pos, name := range columns {
			if _, err := tx.ExecContext(ctx, `INSERT INTO factor_columns (factor, position) VALUES (?, ?)`, name, pos); err != nil {
				return fmt.Errorf("failed to insert factor column %s: %w", name, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO factor_returns (date, factor, value) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare factor insert: %w", err)
		}
		defer stmt.Close()

		for i, date := range panel.Dates {
			unix := date.Unix()
			for j, name := range panel.Factors {
				if _, err := stmt.ExecContext(ctx, unix, name, panel.Values[i][j]); err != nil {
					return fmt.Errorf("failed to insert %s on %s: %w", name, date.Format(domain.DateLayout), err)
				}
			}
			if _, err := stmt.ExecContext(ctx, unix, domain.RiskFreeName, panel.RF[i]); err != nil {
				return fmt.Errorf("failed to insert RF on %s: %w", date.Format(domain.DateLayout), err)
			}
		}

		r.log.Info().
			Int("dates", panel.Len()).
			Int("factors", len(panel.Factors)).
			Msg("Saved factor panel")
		return nil
	})
}

// LoadFactorPanel implements domain.FactorPanelSource
func (r *Repository) LoadFactorPanel(ctx context.Context) (domain.FactorPanel, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT factor FROM factor_columns ORDER BY position`)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to query factor columns: %w", err)
	}
	var factors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return domain.FactorPanel{}, fmt.Errorf("failed to scan factor column: %w", err)
		}
		if name != domain.RiskFreeName {
			factors = append(factors, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.FactorPanel{}, fmt.Errorf("error iterating factor columns: %w", err)
	}
	if len(factors) == 0 {
		return domain.FactorPanel{}, domain.NewError(domain.KindNotFound, "", "no factor panel stored")
	}

	position := make(map[string]int, len(factors))
	for j, f := range factors {
		position[f] = j
	}

	rows, err = r.db.QueryContext(ctx, `SELECT date, factor, value FROM factor_returns ORDER BY date`)
	if err != nil {
		return domain.FactorPanel{}, fmt.Errorf("failed to query factor returns: %w", err)
	}
	defer rows.Close()

	byDate := make(map[int64][]float64)
	rfByDate := make(map[int64]float64)
	for rows.Next() {
		var unix int64
		var name string
		var value float64
		if err := rows.Scan(&unix, &name, &value); err != nil {
			return domain.FactorPanel{}, fmt.Errorf("failed to scan factor return: %w", err)
		}

		row, ok := byDate[unix]
		if !ok {
			row = nanRow(len(factors))
			byDate[unix] = row
			rfByDate[unix] = math.NaN()
		}
		if name == domain.RiskFreeName {
			rfByDate[unix] = value
		} else if j, ok := position[name]; ok {
			row[j] = value
		}
	}
	if err := rows.Err(); err != nil {
		return domain.FactorPanel{}, fmt.Errorf("error iterating factor returns: %w", err)
	}

	dates := make([]time.Time, 0, len(byDate))
	values := make([][]float64, 0, len(byDate))
	rf := make([]float64, 0, len(byDate))
	for unix, row := range byDate {
		dates = append(dates, time.Unix(unix, 0).UTC())
		values = append(values, row)
		rf = append(rf, rfByDate[unix])
	}

	// Dates missing any column become NaN rows and are dropped here
	return NewFactorPanel(factors, dates, values, rf)
}

// SaveReturnSeries upserts the observations of one instrument.
func (r *Repository) SaveReturnSeries(ctx context.Context, series domain.ReturnSeries) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO instrument_returns (instrument, date, value) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare return insert: %w", err)
		}
		defer stmt.Close()

		for i, date := range series.Dates {
			if _, err := stmt.ExecContext(ctx, series.Instrument, date.Unix(), series.Values[i]); err != nil {
				return fmt.Errorf("failed to insert return for %s on %s: %w",
					series.Instrument, date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
}

// LoadReturnSeries implements domain.ReturnSeriesSource
func (r *Repository) LoadReturnSeries(ctx context.Context, instrument string) (domain.ReturnSeries, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, value
		FROM instrument_returns
		WHERE instrument = ?
		ORDER BY date ASC
	`, instrument)
	if err != nil {
		return domain.ReturnSeries{}, fmt.Errorf("failed to query returns for %s: %w", instrument, err)
	}
	defer rows.Close()

	var dates []time.Time
	var values []float64
	for rows.Next() {
		var unix int64
		var value float64
		if err := rows.Scan(&unix, &value); err != nil {
			return domain.ReturnSeries{}, fmt.Errorf("failed to scan return: %w", err)
		}
		dates = append(dates, time.Unix(unix, 0).UTC())
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return domain.ReturnSeries{}, fmt.Errorf("error iterating returns: %w", err)
	}

	series, err := NewReturnSeries(instrument, dates, values)
	if err != nil {
		return domain.ReturnSeries{}, err
	}
	if series.Len() == 0 {
		return domain.ReturnSeries{}, domain.NewError(domain.KindNotFound, instrument, "no return history")
	}
	return series, nil
}

// Instruments implements domain.ReturnSeriesSource
func (r *Repository) Instruments(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT instrument FROM instrument_returns`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}
