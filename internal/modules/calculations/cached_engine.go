package calculations

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/domain"
)

// Fitter is the estimator surface shared by the engine and its cached wrapper.
type Fitter interface {
	FitWholeSample(instrument string) (domain.WholeSampleLoadings, error)
	FitRolling(instrument string, window int) (domain.RollingResult, error)
	FitRollingCorrelations(instrument string, window int) (domain.RollingResult, error)
}

// Fingerprinter identifies the data currently loaded.
type Fingerprinter interface {
	Fingerprint() string
}

// CachedEngine serves fits from the cache and computes the misses.
// Only successful fits are cached; cache failures fall through to the engine.
type CachedEngine struct {
	engine Fitter
	cache  *Cache
	data   Fingerprinter
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedEngine wraps engine with cache. A zero ttl uses the per-kind defaults.
func NewCachedEngine(engine Fitter, cache *Cache, data Fingerprinter, ttl time.Duration, log zerolog.Logger) *CachedEngine {
	return &CachedEngine{
		engine: engine,
		cache:  cache,
		data:   data,
		ttl:    ttl,
		log:    log.With().Str("component", "cached_engine").Logger(),
	}
}

func (c *CachedEngine) ttlOr(def time.Duration) time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return def
}

// FitWholeSample implements Fitter
func (c *CachedEngine) FitWholeSample(instrument string) (domain.WholeSampleLoadings, error) {
	key := Key(c.data.Fingerprint(), instrument, 0)

	var cached domain.WholeSampleLoadings
	if c.lookup(KindWholeSample, key, &cached) {
		cached.MinDate = cached.MinDate.UTC()
		cached.MaxDate = cached.MaxDate.UTC()
		return cached, nil
	}

	res, err := c.engine.FitWholeSample(instrument)
	if err != nil {
		return res, err
	}
	c.store(KindWholeSample, key, res, c.ttlOr(TTLWholeSample))
	return res, nil
}

// FitRolling implements Fitter
func (c *CachedEngine) FitRolling(instrument string, window int) (domain.RollingResult, error) {
	return c.rolling(KindRolling, instrument, window, c.engine.FitRolling)
}

// FitRollingCorrelations implements Fitter
func (c *CachedEngine) FitRollingCorrelations(instrument string, window int) (domain.RollingResult, error) {
	return c.rolling(KindCorrelations, instrument, window, c.engine.FitRollingCorrelations)
}

func (c *CachedEngine) rolling(kind, instrument string, window int, fit func(string, int) (domain.RollingResult, error)) (domain.RollingResult, error) {
	key := Key(c.data.Fingerprint(), instrument, window)

	var cached domain.RollingResult
	if c.lookup(kind, key, &cached) {
		if cached.Loadings == nil {
			cached.Loadings = []domain.RollingLoadings{}
		}
		for i := range cached.Loadings {
			cached.Loadings[i].Date = cached.Loadings[i].Date.UTC()
		}
		return cached, nil
	}

	res, err := fit(instrument, window)
	if err != nil {
		return res, err
	}
	c.store(kind, key, res, c.ttlOr(TTLRolling))
	return res, nil
}

func (c *CachedEngine) lookup(kind, key string, out interface{}) bool {
	ok, err := c.cache.GetIfFresh(kind, key, out)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("Cache read failed, recomputing")
		return false
	}
	if ok {
		c.log.Debug().Str("kind", kind).Str("key", key).Msg("Cache hit")
	}
	return ok
}

func (c *CachedEngine) store(kind, key string, v interface{}, ttl time.Duration) {
	if err := c.cache.Store(kind, key, v, ttl); err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("Failed to cache result")
	}
}
