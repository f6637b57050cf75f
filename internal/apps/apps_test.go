package apps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kiosk/internal/fsutil"
	"github.com/banshee-data/kiosk/internal/security"
	"github.com/banshee-data/kiosk/internal/testutil"
)

func TestScan_Memory(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.WriteFile("/apps/speed/index.html", []byte("<html></html>"))
	mfs.WriteFile("/apps/speed/app.js", []byte(""))
	mfs.WriteFile("/apps/counter/index.html", []byte("<html></html>"))
	mfs.WriteFile("/apps/assets/logo.png", []byte{0x89})
	mfs.WriteFile("/apps/readme.txt", []byte("not an app"))
	mfs.WriteFile("/apps/.hidden/index.html", []byte(""))
	mfs.Mkdir("/apps/empty")

	got, err := NewDirectoryFS("/apps", mfs).Scan()
	require.NoError(t, err)
	assert.Equal(t, []Info{
		{Name: "counter", Path: "/apps/counter"},
		{Name: "speed", Path: "/apps/speed"},
	}, got)
}

func TestScan_MissingRoot(t *testing.T) {
	got, err := NewDirectoryFS("/nowhere", fsutil.NewMemoryFileSystem()).Scan()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got, "an empty list encodes as [] rather than null")
}

func TestScanAndResolve_Disk(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "speed"), IndexFile, "<html></html>")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o755))

	got, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []Info{{Name: "speed", Path: filepath.Join(root, "speed")}}, got)

	app, err := Resolve(root, "speed")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "speed"), app.Path)

	_, err = Resolve(root, "broken")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = Resolve(root, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"", "..", "../etc", "a/b", "/etc", ".hidden", "speed\x00"} {
		_, err := Resolve(root, name)
		assert.ErrorIs(t, err, security.ErrInvalidName, "name %q", name)
	}
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	testutil.WriteFile(t, outside, IndexFile, "<html></html>")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	_, err := Resolve(root, "escape")
	assert.ErrorIs(t, err, security.ErrPathTraversal)
}
