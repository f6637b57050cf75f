// Package apps finds the mini-apps bundled with the kiosk. An app is a
// directory under the apps root that contains an index.html.
package apps

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/kiosk/internal/fsutil"
	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/security"
)

// IndexFile is the entry point every app must provide.
const IndexFile = "index.html"

// ErrNotFound is returned by Resolve for a name with no app behind it.
var ErrNotFound = errors.New("app not found")

// Info describes one app.
type Info struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Directory lists and resolves apps under Root.
type Directory struct {
	Root string
	fs   fsutil.FileSystem
}

// NewDirectory returns a Directory over root on the real filesystem.
func NewDirectory(root string) *Directory {
	return NewDirectoryFS(root, fsutil.OSFileSystem{})
}

// NewDirectoryFS returns a Directory over root on fsys.
func NewDirectoryFS(root string, fsys fsutil.FileSystem) *Directory {
	return &Directory{Root: root, fs: fsys}
}

// Scan returns every app under d.Root in name order. A missing root yields
// an empty list.
func (d *Directory) Scan() ([]Info, error) {
	if !d.fs.Exists(d.Root) {
		monitoring.Logf("apps: directory not found: %s", d.Root)
		return []Info{}, nil
	}
	entries, err := d.fs.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps directory: %w", err)
	}

	apps := []Info{}
	for _, e := range entries {
		if !e.IsDir() || security.ValidateAppName(e.Name()) != nil {
			continue
		}
		path := filepath.Join(d.Root, e.Name())
		if d.hasIndex(path) {
			apps = append(apps, Info{Name: e.Name(), Path: path})
		}
	}
	return apps, nil
}

// Resolve returns the app called name, or ErrNotFound. Names that could
// escape the root are rejected with security.ErrInvalidName.
func (d *Directory) Resolve(name string) (Info, error) {
	if err := security.ValidateAppName(name); err != nil {
		return Info{}, err
	}
	path, err := security.ResolveWithin(d.Root, name)
	if err != nil {
		return Info{}, err
	}
	if !d.hasIndex(path) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Info{Name: name, Path: path}, nil
}

func (d *Directory) hasIndex(dir string) bool {
	info, err := d.fs.Stat(filepath.Join(dir, IndexFile))
	return err == nil && info.Mode().IsRegular()
}

// Scan lists the apps under dir on the real filesystem.
func Scan(dir string) ([]Info, error) {
	return NewDirectory(dir).Scan()
}

// Resolve finds the app called name under dir on the real filesystem.
func Resolve(dir, name string) (Info, error) {
	return NewDirectory(dir).Resolve(name)
}
