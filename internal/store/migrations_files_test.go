package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingDownFiles(t *testing.T) {
	migrations := os.DirFS(migrationsDir)

	ups, err := pendingCandidates(migrations)
	require.NoError(t, err)
	require.NotEmpty(t, ups, "no migrations discovered")

	downs, err := fs.Glob(migrations, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, downs, len(ups))

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(migrations, down)
		assert.NoError(t, err, "%s has no down migration", up)
	}
}

func TestPendingCandidatesOrdersUpFiles(t *testing.T) {
	migrations := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"0001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":       {Data: []byte("notes")},
		"0003_c/x.up.sql": {Data: []byte("SELECT 3")},
	}

	got, err := pendingCandidates(migrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, got)
}
