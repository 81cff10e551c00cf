package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingDocument(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	data, err := s.Load(context.Background(), "gift_lots")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "session_stats", []byte(`{"stars_1": {}}`)))
	require.NoError(t, s.Save(ctx, "session_stats", []byte(`{"stars_2": {}}`)))

	data, err := s.Load(ctx, "session_stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stars_2": {}}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session_stats.json", entries[0].Name())
}
