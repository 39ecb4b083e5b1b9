package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/factorlab/internal/database"
	"github.com/aristath/factorlab/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataJSON = `{
	"TSLA": {"longName": "Tesla, Inc.", "shortName": "Tesla"},
	"SPY": {"shortName": "SPDR S&P 500"},
	"BLANK": {}
}`

var _ domain.MetadataResolver = (*Resolver)(nil)

func TestReadJSON(t *testing.T) {
	entries, err := ReadJSON(strings.NewReader(metadataJSON))
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "BLANK", entries[0].Instrument)
	assert.Equal(t, "Tesla, Inc.", entries[2].LongName)
}

func TestResolver_DisplayName(t *testing.T) {
	entries, err := ReadJSON(strings.NewReader(metadataJSON))
	require.NoError(t, err)
	r := NewResolver(entries)

	name, ok := r.DisplayName("TSLA")
	assert.True(t, ok)
	assert.Equal(t, "Tesla, Inc.", name)

	name, ok = r.DisplayName("spy")
	assert.True(t, ok)
	assert.Equal(t, "SPDR S&P 500", name)

	_, ok = r.DisplayName("BLANK")
	assert.False(t, ok)

	name, ok = r.DisplayName("NOPE")
	assert.False(t, ok)
	assert.Empty(t, name)

	r.Replace(nil)
	_, ok = r.DisplayName("TSLA")
	assert.False(t, ok)
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(metadataJSON), 0o644))

	r, err := LoadJSONFile(path)
	require.NoError(t, err)
	name, ok := r.DisplayName("TSLA")
	assert.True(t, ok)
	assert.Equal(t, "Tesla, Inc.", name)

	_, err = LoadJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRepository(t *testing.T) {
	db, err := database.New(database.Config{Path: ":memory:", Name: "returns"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	defer db.Close()

	ctx := context.Background()
	repo := NewRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(ctx, []Metadata{
		{Instrument: "TSLA", LongName: "Tesla"},
		{Instrument: "AAPL", LongName: "Apple Inc."},
	}))
	require.NoError(t, repo.Upsert(ctx, []Metadata{{Instrument: "TSLA", LongName: "Tesla, Inc."}}))

	m, err := repo.Get(ctx, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "Tesla, Inc.", m.LongName)
	assert.False(t, m.UpdatedAt.IsZero())

	_, err = repo.Get(ctx, "MSFT")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Instrument)

	r, err := repo.Resolver(ctx)
	require.NoError(t, err)
	name, ok := r.DisplayName("AAPL")
	assert.True(t, ok)
	assert.Equal(t, "Apple Inc.", name)
}
