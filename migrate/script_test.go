/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion int
		wantErr     bool
	}{
		{filename: "1.sql", wantVersion: 1},
		{filename: "2_add_index.sql", wantVersion: 2},
		{filename: "10_x.sql", wantVersion: 10},
		{filename: "0003_users.sql", wantVersion: 3},
		{filename: "V12__create_orders_2.sql", wantVersion: 12},
		{filename: "create_users.sql", wantErr: true},
		{filename: "0_init.sql", wantErr: true},
		{filename: "99999999999999999999999_overflow.sql", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, err := Version(tt.filename)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrFilename)
				require.Contains(t, err.Error(), tt.filename)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestChecksum(t *testing.T) {
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Checksum(nil))
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", Checksum([]byte("hello")))
	require.NotEqual(t, Checksum([]byte("CREATE TABLE a (id INT);")), Checksum([]byte("CREATE TABLE a (id INT); ")))
}

func TestLoadScripts(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/9_a.sql":            {Data: []byte("SELECT 9;")},
		"migrations/10_b.sql":           {Data: []byte("SELECT 10;")},
		"migrations/README.md":          {Data: []byte("docs")},
		"migrations/nested/11_c.sql":    {Data: []byte("SELECT 11;")},
		"migrations/8_initial.down.sql": {Data: []byte("SELECT 8;")},
		"migrations/12_dxsql":           {Data: []byte("SELECT 12;")},
		"not_a_dir.sql":                 {Data: []byte("SELECT 1;")},
		"bad/create_users.sql":          {Data: []byte("SELECT 1;")},
		"empty/README.md":               {Data: []byte("docs")},
	}

	t.Run("sorted by version, other files skipped", func(t *testing.T) {
		scripts, err := LoadScripts(fsys, "migrations", ".sql")
		require.NoError(t, err)
		require.Len(t, scripts, 3)
		require.Equal(t, "8_initial.down.sql", scripts[0].Filename)
		require.Equal(t, "9_a.sql", scripts[1].Filename)
		require.Equal(t, "10_b.sql", scripts[2].Filename)
		require.Equal(t, 10, scripts[2].Version)
		require.Equal(t, "SELECT 10;", scripts[2].SQL)
		require.Equal(t, Checksum([]byte("SELECT 10;")), scripts[2].Checksum)
	})

	t.Run("custom extension", func(t *testing.T) {
		scripts, err := LoadScripts(fsys, "migrations", ".down.sql")
		require.NoError(t, err)
		require.Len(t, scripts, 1)
		require.Equal(t, 8, scripts[0].Version)
	})

	t.Run("extension without leading dot", func(t *testing.T) {
		scripts, err := LoadScripts(fsys, "migrations", "sql")
		require.NoError(t, err)
		require.Len(t, scripts, 3)
		for _, script := range scripts {
			require.NotEqual(t, "12_dxsql", script.Filename)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadScripts(fsys, "missing", ".sql")
		require.ErrorIs(t, err, ErrNoDir)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		_, err := LoadScripts(fsys, "not_a_dir.sql", ".sql")
		require.ErrorIs(t, err, ErrNoDir)
	})

	t.Run("script without version", func(t *testing.T) {
		_, err := LoadScripts(fsys, "bad", ".sql")
		require.ErrorIs(t, err, ErrFilename)
	})

	t.Run("no scripts", func(t *testing.T) {
		scripts, err := LoadScripts(fsys, "empty", ".sql")
		require.NoError(t, err)
		require.Empty(t, scripts)
	})
}

func TestErrorIs(t *testing.T) {
	err := newError(ErrorCodeVersionSeq, "order: 1, 2, 4", nil)
	require.ErrorIs(t, err, ErrVersionSeq)
	require.NotErrorIs(t, err, ErrChecksum)
	require.EqualError(t, err, "a version was not incremented by 1: order: 1, 2, 4")
	require.Equal(t, "NO_DIR", string(ErrNoDir.Code))
	require.EqualError(t, newError(ErrorCodeInTransaction, "", nil), "migrations cannot run inside a transaction")
}
