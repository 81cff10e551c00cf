package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := listMigrations(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].version)
	assert.Equal(t, "001_documents.sql", migrations[0].name)
	assert.Equal(t, 2, migrations[1].version)
}

func TestListMigrationsOrdersByNumber(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 1;")},
		"migrations/002_second.sql": {Data: []byte("SELECT 1;")},
		"migrations/README.md":      {Data: []byte("docs")},
	}
	migrations, err := listMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].version)
	assert.Equal(t, 10, migrations[1].version)
}

func TestListMigrationsRejectsBadName(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/init.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := listMigrations(fsys)
	require.Error(t, err)
}
