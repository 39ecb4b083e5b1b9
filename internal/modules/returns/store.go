package returns

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/rs/zerolog"
)

// Snapshot is an immutable view of the loaded data. Estimators take one snapshot per
// request so a concurrent Reload never mixes old and new series.
type Snapshot struct {
	panel       domain.FactorPanel
	series      map[string]domain.ReturnSeries
	instruments []string
	fingerprint string
	loadedAt    time.Time
}

// FactorPanel returns the factor panel.
func (s *Snapshot) FactorPanel() domain.FactorPanel {
	return s.panel
}

// ReturnSeries returns the series of one instrument, or a KindNotFound error.
func (s *Snapshot) ReturnSeries(instrument string) (domain.ReturnSeries, error) {
	series, ok := s.series[instrument]
	if !ok || series.Len() == 0 {
		return domain.ReturnSeries{}, domain.NewError(domain.KindNotFound, instrument, "no return history")
	}
	return series, nil
}

// Instruments lists the instruments with at least one observation.
func (s *Snapshot) Instruments() []string {
	return append([]string(nil), s.instruments...)
}

// Fingerprint identifies the exact data in the snapshot.
func (s *Snapshot) Fingerprint() string {
	return s.fingerprint
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Store holds the current snapshot. Data is loaded once and replaced only by Reload.
type Store struct {
	factors domain.FactorPanelSource
	returns domain.ReturnSeriesSource
	log     zerolog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore creates a store over the given sources. Call Load before use.
func NewStore(factors domain.FactorPanelSource, returns domain.ReturnSeriesSource, log zerolog.Logger) *Store {
	return &Store{
		factors: factors,
		returns: returns,
		log:     log.With().Str("component", "return_series_store").Logger(),
	}
}

// NewStoreFromSnapshot wraps already-built data, mainly for tests and embedding.
// The panel and every series are normalized as NewFactorPanel and NewReturnSeries do,
// so rows may arrive in any order.
func NewStoreFromSnapshot(panel domain.FactorPanel, series []domain.ReturnSeries, log zerolog.Logger) (*Store, error) {
	normalized, err := NewFactorPanel(panel.Factors, panel.Dates, panel.Values, panel.RF)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.ReturnSeries, len(series))
	for _, rs := range series {
		if _, dup := byID[rs.Instrument]; dup {
			return nil, domain.NewError(domain.KindInvalidInput, rs.Instrument, "instrument given twice")
		}
		clean, err := NewReturnSeries(rs.Instrument, rs.Dates, rs.Values)
		if err != nil {
			return nil, err
		}
		byID[rs.Instrument] = clean
	}

	s := &Store{log: log.With().Str("component", "return_series_store").Logger()}
	s.snap = buildSnapshot(normalized, byID)
	return s, nil
}

// Load reads every source and installs a fresh snapshot.
func (s *Store) Load(ctx context.Context) error {
	if s.factors == nil || s.returns == nil {
		return fmt.Errorf("store has no sources configured")
	}

	start := time.Now()

	panel, err := s.factors.LoadFactorPanel(ctx)
	if err != nil {
		return fmt.Errorf("failed to load factor panel: %w", err)
	}

	ids, err := s.returns.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instruments: %w", err)
	}

	series := make(map[string]domain.ReturnSeries, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		rs, err := s.returns.LoadReturnSeries(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Debug().Str("instrument", id).Msg("No history, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load returns for %s: %w", id, err)
		}
		series[id] = rs
	}

	snap := buildSnapshot(panel, series)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.log.Info().
		Int("factor_dates", panel.Len()).
		Strs("factors", panel.Factors).
		Int("instruments", len(series)).
		Str("fingerprint", snap.fingerprint[:12]).
		Dur("duration", time.Since(start)).
		Msg("Loaded return series store")

	return nil
}

// Reload is Load under its explicit name; on failure the previous snapshot stays active.
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// Snapshot returns the current snapshot, or an error if nothing was loaded yet.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, fmt.Errorf("return series store not loaded")
	}
	return s.snap, nil
}

// ReturnSeries returns one instrument's series from the current snapshot.
func (s *Store) ReturnSeries(instrument string) (domain.ReturnSeries, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return domain.ReturnSeries{}, err
	}
	return snap.ReturnSeries(instrument)
}

func buildSnapshot(panel domain.FactorPanel, series map[string]domain.ReturnSeries) *Snapshot {
	ids := make([]string, 0, len(series))
	for id, rs := range series {
		if rs.Len() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return &Snapshot{
		panel:       panel,
		series:      series,
		instruments: ids,
		fingerprint: fingerprint(panel, series, ids),
		loadedAt:    time.Now(),
	}
}

// fingerprint hashes dates and values in a fixed order.
func fingerprint(panel domain.FactorPanel, series map[string]domain.ReturnSeries, ids []string) string {
	h := sha256.New()
	buf := make([]byte, 8)

	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}

	for _, f := range panel.Factors {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	for i, d := range panel.Dates {
		writeInt(d.Unix())
		for _, v := range panel.Values[i] {
			writeFloat(v)
		}
		writeFloat(panel.RF[i])
	}

	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		rs := series[id]
		for i, d := range rs.Dates {
			writeInt(d.Unix())
			writeFloat(rs.Values[i])
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// FactorPanel returns the factor panel of the current snapshot.
func (s *Store) FactorPanel() (domain.FactorPanel, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return domain.FactorPanel{}, err
	}
	return snap.FactorPanel(), nil
}

// Instruments lists the instruments of the current snapshot; empty before Load.
func (s *Store) Instruments() []string {
	snap, err := s.Snapshot()
	if err != nil {
		return nil
	}
	return snap.Instruments()
}

// Fingerprint identifies the currently loaded data; empty before Load.
func (s *Store) Fingerprint() string {
	snap, err := s.Snapshot()
	if err != nil {
		return ""
	}
	return snap.Fingerprint()
}
