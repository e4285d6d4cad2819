package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig(t *testing.T) {
	t.Run("missing default file yields defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := LoadFileConfig("")
		require.NoError(t, err)
		assert.Equal(t, 128, cfg.MaxOpenFiles)
		assert.Empty(t, cfg.DirPath)
	})

	t.Run("explicit missing config is an error", func(t *testing.T) {
		_, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("parses fields and applies defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fdstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dir_path: /var/lib/fdstore\nlogging: debug\n"), 0o644))

		cfg, err := LoadFileConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/fdstore", cfg.DirPath)
		assert.Equal(t, "debug", cfg.Logging)
		assert.Equal(t, 128, cfg.MaxOpenFiles, "default budget")
	})

	t.Run("explicit budget wins over default", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fdstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dir_path: d\nmax_open_files: 7\n"), 0o644))

		cfg, err := LoadFileConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.MaxOpenFiles)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fdstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dir_path: [\n"), 0o644))

		_, err := LoadFileConfig(path)
		assert.Error(t, err)
	})
}
