package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/database"
	"github.com/aristath/factorlab/internal/domain"
)

// Repository persists instrument metadata in the instrument_metadata table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new metadata repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "metadata_repository").Logger(),
	}
}

// Upsert stores or replaces metadata entries.
func (r *Repository) Upsert(ctx context.Context, entries []Metadata) error {
	now := time.Now().Unix()
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, m := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO instrument_metadata (instrument, long_name, short_name, updated_at)
				VALUES (?, ?, ?, ?)
			`, m.Instrument, m.LongName, m.ShortName, now)
			if err != nil {
				return fmt.Errorf("failed to upsert metadata for %s: %w", m.Instrument, err)
			}
		}
		r.log.Debug().Int("count", len(entries)).Msg("Upserted instrument metadata")
		return nil
	})
}

// Get returns one instrument's metadata, or a KindNotFound error.
func (r *Repository) Get(ctx context.Context, instrument string) (Metadata, error) {
	var m Metadata
	var updated int64
	err := r.db.QueryRowContext(ctx, `
		SELECT instrument, long_name, short_name, updated_at
		FROM instrument_metadata
		WHERE instrument = ?
	`, instrument).Scan(&m.Instrument, &m.LongName, &m.ShortName, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, domain.NewError(domain.KindNotFound, instrument, "no metadata")
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	m.UpdatedAt = time.Unix(updated, 0).UTC()
	return m, nil
}

// All returns every stored entry ordered by instrument.
func (r *Repository) All(ctx context.Context) ([]Metadata, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument, long_name, short_name, updated_at
		FROM instrument_metadata
		ORDER BY instrument
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var updated int64
		if err := rows.Scan(&m.Instrument, &m.LongName, &m.ShortName, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		m.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Resolver loads every entry into an in-memory resolver.
func (r *Repository) Resolver(ctx context.Context) (*Resolver, error) {
	entries, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	return NewResolver(entries), nil
}
