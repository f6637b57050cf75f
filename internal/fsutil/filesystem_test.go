package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	var fsys FileSystem = OSFileSystem{}

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))

	assert.True(t, fsys.Exists(path))
	assert.False(t, fsys.Exists(filepath.Join(dir, "missing")))

	entries, err := fsys.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "lines.txt", entries[0].Name())
	assert.True(t, entries[1].IsDir())
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("/apps/scale/index.html", []byte("<html>"))
	m.WriteFile("/apps/scale/app.js", []byte("x"))
	m.WriteFile("/apps/readme.txt", []byte("hi"))
	m.Mkdir("/apps/empty")

	data, err := m.ReadFile("/apps/scale/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>", string(data))

	_, err = m.ReadFile("/apps/missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	info, err := m.Stat("/apps/scale")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := m.ReadDir("/apps")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"empty", "readme.txt", "scale"}, names)
	assert.True(t, entries[0].IsDir())
	assert.False(t, entries[1].IsDir())

	_, err = m.ReadDir("/nowhere")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
