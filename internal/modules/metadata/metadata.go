// Package metadata maps instrument identifiers to display names.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metadata describes one instrument.
type Metadata struct {
	Instrument string    `json:"-"`
	LongName   string    `json:"longName,omitempty"`
	ShortName  string    `json:"shortName,omitempty"`
	UpdatedAt  time.Time `json:"-"`
}

// DisplayName prefers the long name.
func (m Metadata) DisplayName() string {
	if m.LongName != "" {
		return m.LongName
	}
	return m.ShortName
}

// Resolver is an in-memory domain.MetadataResolver.
type Resolver struct {
	mu      sync.RWMutex
	entries map[string]Metadata
}

// NewResolver creates a resolver over the given entries.
func NewResolver(entries []Metadata) *Resolver {
	r := &Resolver{entries: make(map[string]Metadata, len(entries))}
	for _, m := range entries {
		r.entries[strings.ToUpper(m.Instrument)] = m
	}
	return r
}

// DisplayName implements domain.MetadataResolver. Lookups are case-insensitive.
func (r *Resolver) DisplayName(instrument string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.entries[strings.ToUpper(instrument)]
	if !ok {
		return "", false
	}
	name := m.DisplayName()
	return name, name != ""
}

// Replace swaps the resolver's entries.
func (r *Resolver) Replace(entries []Metadata) {
	next := make(map[string]Metadata, len(entries))
	for _, m := range entries {
		next[strings.ToUpper(m.Instrument)] = m
	}
	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
}

// ReadJSON parses {"TSLA": {"longName": "Tesla, Inc."}}; entries come back sorted.
func ReadJSON(rd io.Reader) ([]Metadata, error) {
	var raw map[string]Metadata
	if err := json.NewDecoder(rd).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	out := make([]Metadata, 0, len(raw))
	for id, m := range raw {
		m.Instrument = id
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out, nil
}

// LoadJSONFile reads a metadata JSON file into a resolver.
func LoadJSONFile(path string) (*Resolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	entries, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewResolver(entries), nil
}
