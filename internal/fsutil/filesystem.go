// Package fsutil provides filesystem abstractions for testability.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSystem abstracts the read-side filesystem operations used by the mock
// transport and the app directory scanner.
// Use OSFileSystem for production; MemoryFileSystem for testing.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// Stat returns a FileInfo describing the named file.
	Stat(name string) (fs.FileInfo, error)

	// ReadDir lists the named directory sorted by file name.
	ReadDir(name string) ([]fs.DirEntry, error)

	// Exists checks if a file or directory exists.
	Exists(name string) bool
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// ReadFile reads the named file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Stat returns file info for the named file.
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// ReadDir lists the named directory.
func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

// Exists checks if a file exists.
func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MemoryFileSystem provides an in-memory filesystem for testing. Parent
// directories are created implicitly by WriteFile.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemoryFileSystem creates a new in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true, ".": true},
	}
}

// WriteFile stores data under name.
func (m *MemoryFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	m.files[name] = append([]byte(nil), data...)
	for dir := filepath.Dir(name); ; dir = filepath.Dir(dir) {
		m.dirs[dir] = true
		if dir == filepath.Dir(dir) {
			break
		}
	}
}

// Mkdir records an empty directory.
func (m *MemoryFileSystem) Mkdir(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[filepath.Clean(name)] = true
}

// ReadFile returns a copy of the stored file.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

// Stat returns info for a stored file or directory.
func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if data, ok := m.files[name]; ok {
		return &memFileInfo{name: filepath.Base(name), size: int64(len(data))}, nil
	}
	if m.dirs[name] {
		return &memFileInfo{name: filepath.Base(name), isDir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadDir lists the direct children of a directory.
func (m *MemoryFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if !m.dirs[name] {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}

	seen := make(map[string]fs.DirEntry)
	for path, data := range m.files {
		if child, ok := directChild(name, path); ok {
			seen[child] = fs.FileInfoToDirEntry(&memFileInfo{name: child, size: int64(len(data))})
		}
	}
	for path := range m.dirs {
		if child, ok := directChild(name, path); ok {
			seen[child] = fs.FileInfoToDirEntry(&memFileInfo{name: child, isDir: true})
		}
	}

	entries := make([]fs.DirEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Exists checks if a file or directory exists.
func (m *MemoryFileSystem) Exists(name string) bool {
	_, err := m.Stat(name)
	return err == nil
}

// directChild reports the first path element of path below dir.
func directChild(dir, path string) (string, bool) {
	if path == dir || filepath.Dir(path) != dir {
		return "", false
	}
	base := filepath.Base(path)
	if base == "" || strings.ContainsRune(base, filepath.Separator) {
		return "", false
	}
	return base, true
}

type memFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (i *memFileInfo) Name() string { return i.name }
func (i *memFileInfo) Size() int64  { return i.size }
func (i *memFileInfo) Mode() os.FileMode {
	if i.isDir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (i *memFileInfo) ModTime() time.Time { return time.Time{} }
func (i *memFileInfo) IsDir() bool        { return i.isDir }
func (i *memFileInfo) Sys() any           { return nil }
