package domain

import "context"

// FactorPanelSource loads the factor panel (factor columns plus RF) keyed by date.
// Implemented by the CSV loader and the SQLite repository in the returns module.
type FactorPanelSource interface {
	LoadFactorPanel(ctx context.Context) (FactorPanel, error)
}

// ReturnSeriesSource loads instrument return series.
// LoadReturnSeries returns an error of kind KindNotFound when the instrument has no history.
type ReturnSeriesSource interface {
	LoadReturnSeries(ctx context.Context, instrument string) (ReturnSeries, error)

	// Instruments lists every instrument the source can serve
	Instruments(ctx context.Context) ([]string, error)
}

// MetadataResolver maps an instrument identifier to a human-readable name.
// The bool is false when the instrument is unknown.
type MetadataResolver interface {
	DisplayName(instrument string) (string, bool)
}
