package manifest

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	m := Manifest{
		RunID:       "run-1",
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Entries: []Entry{
			{URL: "https://github.com/undefcc", File: "github-com.png", Bytes: 48_000, Status: "fetched", Hash: "abc"},
			{URL: "https://www.npmjs.com", File: "www-npmjs-com.png", Status: "failed", Error: "http 429"},
		},
	}
	require.NoError(t, Write(fs, "/out/manifest.yaml", m))

	raw, err := afero.ReadFile(fs, "/out/manifest.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "run_id: run-1")
	assert.Contains(t, string(raw), "  - url: https://github.com/undefcc")
	assert.NotContains(t, string(raw), "blob_uri")

	got, err := Read(fs, "/out/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	entry, ok := got.Lookup("https://www.npmjs.com")
	require.True(t, ok)
	assert.Equal(t, "http 429", entry.Error)
	_, ok = got.Lookup("https://nope.example")
	assert.False(t, ok)
}

func TestWriteLeavesNoTemp(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, Write(fs, "/out/manifest.yaml", Manifest{RunID: "a"}))
	require.NoError(t, Write(fs, "/out/manifest.yaml", Manifest{RunID: "b"}))

	entries, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := Read(fs, "/out/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, "b", got.RunID)
}

func TestReadErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	_, err := Read(fs, "/missing.yaml")
	require.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("entries: [unterminated"), 0o600))
	_, err = Read(fs, "/bad.yaml")
	require.ErrorContains(t, err, "decode manifest")
}
