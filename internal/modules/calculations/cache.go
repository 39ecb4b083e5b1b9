// Package calculations caches fit results in cache.db.
// Results are stored as msgpack blobs with expiration timestamps.
package calculations

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Kinds of cached results.
const (
	KindWholeSample  = "whole_sample"
	KindRolling      = "rolling"
	KindCorrelations = "correlations"
	KindPCA          = "pca"
)

// validKinds is a set for O(1) kind validation.
var validKinds = map[string]bool{
	KindWholeSample:  true,
	KindRolling:      true,
	KindCorrelations: true,
	KindPCA:          true,
}

// Cache provides TTL cache operations over the fit_results table.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a new fit result cache.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "fit_cache").Logger(),
	}
}

func validateKind(kind string) error {
	if !validKinds[kind] {
		return fmt.Errorf("invalid cache kind: %s", kind)
	}
	return nil
}

// Key joins the parts of a cache key. The store fingerprint should always be one
// of them so a reload never serves fits of older data.
func Key(fingerprint, instrument string, window int) string {
	return strings.Join([]string{fingerprint, instrument, strconv.Itoa(window)}, "|")
}

// Store saves v with expiration = now + ttl, replacing any existing entry.
func (c *Cache) Store(kind, key string, v interface{}, ttl time.Duration) error {
	if err := validateKind(kind); err != nil {
		return err
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s result: %w", kind, err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO fit_results (kind, cache_key, data, expires_at) VALUES (?, ?, ?, ?)`,
		kind, key, data, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store %s result: %w", kind, err)
	}
	return nil
}

// GetIfFresh decodes a fresh entry into out. It reports false when the key is
// missing or expired.
func (c *Cache) GetIfFresh(kind, key string, out interface{}) (bool, error) {
	if err := validateKind(kind); err != nil {
		return false, err
	}

	var data []byte
	err := c.db.QueryRow(
		`SELECT data FROM fit_results WHERE kind = ? AND cache_key = ? AND expires_at > ?`,
		kind, key, time.Now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s result: %w", kind, err)
	}

	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s result: %w", kind, err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (c *Cache) Delete(kind, key string) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if _, err := c.db.Exec(`DELETE FROM fit_results WHERE kind = ? AND cache_key = ?`, kind, key); err != nil {
		return fmt.Errorf("failed to delete %s result: %w", kind, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at <= now and returns how many went.
func (c *Cache) DeleteExpired() (int64, error) {
	result, err := c.db.Exec(`DELETE FROM fit_results WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired results: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
