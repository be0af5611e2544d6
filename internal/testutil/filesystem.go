package testutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pushback/internal/pushback"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Size        int64
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
	// Unreadable makes ReadDir fail for this directory.
	Unreadable bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file of the given size, creating missing parent directories.
func (m *MockFilesystemManager) AddFile(path string, size int64) {
	m.addParents(path)
	m.files[path] = &MockFile{
		Size:        size,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddDirectory adds a directory, creating missing parent directories.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.addParents(path)
	if _, ok := m.files[path]; ok {
		return
	}
	m.files[path] = &MockFile{
		Permissions: fs.ModeDir | 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

// AddSymlink adds a symlink entry; it is listed but never followed.
func (m *MockFilesystemManager) AddSymlink(path string) {
	m.addParents(path)
	m.files[path] = &MockFile{
		Permissions: fs.ModeSymlink | 0777,
		ModTime:     time.Now(),
	}
}

// SetUnreadable makes ReadDir fail for the directory at path.
func (m *MockFilesystemManager) SetUnreadable(path string) {
	m.AddDirectory(path)
	m.files[path].Unreadable = true
}

func (m *MockFilesystemManager) addParents(path string) {
	dir := filepath.Dir(path)
	if dir == path || dir == "/" || dir == "." {
		return
	}
	if _, ok := m.files[dir]; !ok {
		m.AddDirectory(dir)
	}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*pushback.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return pushback.NewPath(absPath, file.IsDirectory), nil
}

func (m *MockFilesystemManager) ReadDir(absPath string) ([]fs.FileInfo, error) {
	dir, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("directory not found: %s", absPath)
	}
	if !dir.IsDirectory {
		return nil, fmt.Errorf("not a directory: %s", absPath)
	}
	if dir.Unreadable {
		return nil, fmt.Errorf("permission denied: %s", absPath)
	}

	prefix := strings.TrimSuffix(absPath, "/") + "/"
	var entries []fs.FileInfo
	for path, file := range m.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		name := path[len(prefix):]
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		entries = append(entries, &mockFileInfo{name: name, file: file})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name string
	file *MockFile
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.file.Size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.file.Permissions }
func (m *mockFileInfo) ModTime() time.Time { return m.file.ModTime }
func (m *mockFileInfo) IsDir() bool        { return m.file.IsDirectory }
func (m *mockFileInfo) Sys() any           { return m.file }

// Compile-time check
var _ pushback.FilesystemManager = (*MockFilesystemManager)(nil)
